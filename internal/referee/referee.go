// Package referee implements challenge negotiation and game play for one live
// entry per conversation. Every state change runs inside a single registry update,
// so turn checks and move application see a consistent game.
package referee

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/internal/registry"
	"github.com/park285/groupchess-bot/internal/rules"
)

type Service struct {
	reg    *registry.Registry
	engine rules.Engine
	newID  func() string
}

type Option func(*Service)

// WithIDGenerator overrides uuid game ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(reg *registry.Registry, engine rules.Engine, opts ...Option) *Service {
	s := &Service{reg: reg, engine: engine, newID: func() string { return uuid.NewString() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge records a challenge from issuer to target. target is nil when the
// command did not name anyone.
func (s *Service) IssueChallenge(ctx context.Context, conv domain.ConversationID, issuer domain.User, target *domain.User) (*domain.Challenge, error) {
	if target == nil || target.ID == "" {
		return nil, domain.ErrMissingTarget
	}
	if issuer.ID == target.ID {
		return nil, domain.ErrSelfChallenge
	}
	ch, err := s.reg.TryCreateChallenge(ctx, conv, issuer, *target)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_issue",
		zap.String("conversation", conv.String()),
		zap.String("challenger_id", issuer.ID),
		zap.String("challenged_id", target.ID),
	)
	return ch, nil
}

// Accept turns the pending challenge named by a into a game. Only the challenged
// user may accept.
func (s *Service) Accept(ctx context.Context, conv domain.ConversationID, responder domain.User, a action.Accept) (*domain.Game, rules.Board, error) {
	if responder.ID != a.Challenged {
		return nil, nil, domain.ErrNotAddressedToYou
	}
	g, err := s.reg.PromoteToGame(ctx, conv, a.Challenger, a.Challenged, s.newID())
	if err != nil {
		return nil, nil, err
	}
	obslog.L().Info("game_start",
		zap.String("conversation", conv.String()),
		zap.String("game_id", g.ID),
		zap.String("white_id", g.White.ID),
		zap.String("black_id", g.Black.ID),
	)
	return g, s.engine.NewBoard(), nil
}

// Decline drops the pending challenge named by a. Only the challenged user may decline,
// and only a challenge that is still pending between the encoded pair is removed.
func (s *Service) Decline(ctx context.Context, conv domain.ConversationID, responder domain.User, a action.Decline) (*domain.Challenge, error) {
	if responder.ID != a.Challenged {
		return nil, domain.ErrNotAddressedToYou
	}
	var declined *domain.Challenge
	_, err := s.reg.Update(ctx, conv, func(cur domain.Slot) (domain.Slot, error) {
		declined = nil
		if !cur.Challenge.Matches(a.Challenger, a.Challenged) {
			return cur, domain.ErrStaleChallenge
		}
		declined = cur.Challenge
		return domain.Slot{}, nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_decline",
		zap.String("conversation", conv.String()),
		zap.String("challenger_id", a.Challenger),
		zap.String("challenged_id", a.Challenged),
	)
	return declined, nil
}

// MoveResult describes an applied move. Outcome is nil while the game continues;
// when set, the game has been removed from the registry.
type MoveResult struct {
	Game    domain.Game
	Move    action.Move
	Mover   domain.Color
	Board   rules.Board
	Outcome *Outcome
}

// PlayMove applies m for actor in the active game of conv.
func (s *Service) PlayMove(ctx context.Context, conv domain.ConversationID, actor domain.User, m action.Move) (*MoveResult, error) {
	var res *MoveResult
	_, err := s.reg.Update(ctx, conv, func(cur domain.Slot) (domain.Slot, error) {
		res = nil
		if cur.Game == nil {
			return cur, domain.ErrNoActiveGame
		}
		board, err := s.engine.Restore(cur.Game.Moves)
		if err != nil {
			return cur, fmt.Errorf("restore game %s: %w", cur.Game.ID, err)
		}
		mover := board.Turn()
		if cur.Game.Player(mover).ID != actor.ID {
			return cur, domain.ErrNotYourTurn
		}
		if err := board.Apply(m.From, m.To); err != nil {
			if errors.Is(err, rules.ErrIllegal) {
				return cur, domain.Wrap(domain.CodeIllegalMove, "move "+m.UCI(), err)
			}
			return cur, err
		}

		g := *cur.Game
		g.Moves = board.Moves()
		g.UpdatedAt = s.reg.Now()
		res = &MoveResult{Game: g, Move: m, Mover: mover, Board: board, Outcome: Judge(board, mover, g)}
		if res.Outcome != nil {
			return domain.Slot{}, nil
		}
		return domain.Slot{Game: &g}, nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("conversation", conv.String()),
		zap.String("game_id", res.Game.ID),
		zap.String("user_id", actor.ID),
		zap.String("move", m.UCI()),
		zap.Int("ply", len(res.Game.Moves)),
	}
	if res.Outcome != nil {
		obslog.L().Info("game_end", append(fields, zap.String("reason", string(res.Outcome.Reason)))...)
	} else {
		obslog.L().Debug("game_move", fields...)
	}
	return res, nil
}

// Current returns the active game of conv with its rebuilt board.
func (s *Service) Current(ctx context.Context, conv domain.ConversationID) (*domain.Game, rules.Board, error) {
	slot, err := s.reg.Get(ctx, conv)
	if err != nil {
		return nil, nil, err
	}
	if slot.Game == nil {
		return nil, nil, domain.ErrNoActiveGame
	}
	board, err := s.engine.Restore(slot.Game.Moves)
	if err != nil {
		return nil, nil, fmt.Errorf("restore game %s: %w", slot.Game.ID, err)
	}
	return slot.Game, board, nil
}
