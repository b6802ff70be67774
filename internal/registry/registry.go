// Package registry owns the single live entry (challenge or game) of every
// conversation and serializes all read-modify-write operations per conversation.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/park285/groupchess-bot/internal/domain"
)

// ErrContention is returned when a store gives up after repeated optimistic conflicts.
var ErrContention = errors.New("registry: too much contention on conversation")

// UpdateFunc computes the next slot from the current one. It may run more than once
// for a single Update call (optimistic stores retry on conflict), so it must not have
// side effects. Returning an error aborts the update without writing.
type UpdateFunc func(cur domain.Slot) (domain.Slot, error)

// Store persists slots. Implementations must run Update calls for the same
// conversation one at a time; different conversations are independent.
type Store interface {
	Load(ctx context.Context, conv domain.ConversationID) (domain.Slot, error)
	Update(ctx context.Context, conv domain.ConversationID, fn UpdateFunc) (domain.Slot, error)
	// Reset drops every slot. Called once at startup: state never outlives the process.
	Reset(ctx context.Context) error
	Close() error
}

// Registry implements the session registry contract on top of a Store.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Registry)

// WithChallengeTTL makes challenges older than d read as an empty slot. Zero disables expiry.
func WithChallengeTTL(d time.Duration) Option {
	return func(r *Registry) { r.ttl = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// Get returns the current slot of conv.
func (r *Registry) Get(ctx context.Context, conv domain.ConversationID) (domain.Slot, error) {
	s, err := r.store.Load(ctx, conv)
	if err != nil {
		return domain.Slot{}, err
	}
	return r.live(s), nil
}

// Update runs fn under the conversation's lock. Expired challenges are presented as empty.
func (r *Registry) Update(ctx context.Context, conv domain.ConversationID, fn UpdateFunc) (domain.Slot, error) {
	return r.store.Update(ctx, conv, func(cur domain.Slot) (domain.Slot, error) {
		return fn(r.live(cur))
	})
}

// TryCreateChallenge stores a new challenge when nothing occupies conv.
func (r *Registry) TryCreateChallenge(ctx context.Context, conv domain.ConversationID, from, to domain.User) (*domain.Challenge, error) {
	if from.ID == to.ID {
		return nil, domain.ErrSelfChallenge
	}
	next, err := r.Update(ctx, conv, func(cur domain.Slot) (domain.Slot, error) {
		if !cur.Empty() {
			return cur, domain.ErrAlreadyActive
		}
		return domain.Slot{Challenge: &domain.Challenge{Challenger: from, Challenged: to, IssuedAt: r.now()}}, nil
	})
	if err != nil {
		return nil, err
	}
	return next.Challenge, nil
}

// PromoteToGame atomically replaces the pending challenge from challengerID to
// challengedID with a new game. White is the challenger, black the challenged user.
func (r *Registry) PromoteToGame(ctx context.Context, conv domain.ConversationID, challengerID, challengedID, gameID string) (*domain.Game, error) {
	next, err := r.Update(ctx, conv, func(cur domain.Slot) (domain.Slot, error) {
		if !cur.Challenge.Matches(challengerID, challengedID) {
			return cur, domain.ErrStaleChallenge
		}
		now := r.now()
		return domain.Slot{Game: &domain.Game{
			ID:        gameID,
			White:     cur.Challenge.Challenger,
			Black:     cur.Challenge.Challenged,
			Moves:     []string{},
			StartedAt: now,
			UpdatedAt: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return next.Game, nil
}

// Clear removes whatever occupies conv.
func (r *Registry) Clear(ctx context.Context, conv domain.ConversationID) error {
	_, err := r.store.Update(ctx, conv, func(domain.Slot) (domain.Slot, error) {
		return domain.Slot{}, nil
	})
	return err
}

func (r *Registry) live(s domain.Slot) domain.Slot {
	if s.Challenge != nil && s.Challenge.Expired(r.now(), r.ttl) {
		return domain.Slot{}
	}
	return s
}

func cloneSlot(s domain.Slot) domain.Slot {
	var out domain.Slot
	if s.Challenge != nil {
		c := *s.Challenge
		out.Challenge = &c
	}
	if s.Game != nil {
		g := *s.Game
		g.Moves = append([]string{}, s.Game.Moves...)
		out.Game = &g
	}
	return out
}
