// Package action encodes the payloads attached to chat buttons.
//
// Payloads travel through the chat platform and come back verbatim on a press, so
// Decode treats them as untrusted: it only checks shape, and callers re-validate
// every decoded action against live state before acting.
package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/groupchess-bot/internal/domain"
)

// Kind tags an action variant.
type Kind string

const (
	KindAccept  Kind = "accept"
	KindDecline Kind = "decline"
	KindMove    Kind = "move"
)

const sep = ":"

// MaxPayload is the largest payload the Telegram Bot API accepts as callback data.
const MaxPayload = 64

// Action is one of Accept, Decline or Move.
type Action interface {
	Kind() Kind
	Encode() string
	sealed()
}

// Accept answers a challenge positively.
type Accept struct {
	Challenger string
	Challenged string
}

// Decline answers a challenge negatively.
type Decline struct {
	Challenger string
	Challenged string
}

// Move is a move token: origin and destination squares. Promotion is always to a queen.
type Move struct {
	From string
	To   string
}

func (Accept) Kind() Kind  { return KindAccept }
func (Decline) Kind() Kind { return KindDecline }
func (Move) Kind() Kind    { return KindMove }

func (Accept) sealed()  {}
func (Decline) sealed() {}
func (Move) sealed()    {}

func (a Accept) Encode() string {
	return string(KindAccept) + sep + a.Challenger + sep + a.Challenged
}

func (d Decline) Encode() string {
	return string(KindDecline) + sep + d.Challenger + sep + d.Challenged
}

func (m Move) Encode() string { return string(KindMove) + sep + m.UCI() }

// UCI returns the move as <from><to>, which is also its button label.
func (m Move) UCI() string { return m.From + m.To }

func (m Move) String() string { return m.UCI() }

// Decode parses a payload produced by Encode. Anything else yields domain.ErrUnknownAction.
func Decode(data string) (Action, error) {
	data = strings.TrimSpace(data)
	if data == "" || len(data) > MaxPayload {
		return nil, unknown(data, "empty or oversized payload")
	}
	tag, rest, ok := strings.Cut(data, sep)
	if !ok {
		return nil, unknown(data, "missing tag separator")
	}
	switch Kind(tag) {
	case KindAccept, KindDecline:
		challenger, challenged, ok := strings.Cut(rest, sep)
		if !ok || !ValidUserID(challenger) || !ValidUserID(challenged) {
			return nil, unknown(data, "malformed challenge payload")
		}
		if Kind(tag) == KindAccept {
			return Accept{Challenger: challenger, Challenged: challenged}, nil
		}
		return Decline{Challenger: challenger, Challenged: challenged}, nil
	case KindMove:
		m, err := ParseMove(rest)
		if err != nil {
			return nil, unknown(data, err.Error())
		}
		return m, nil
	default:
		return nil, unknown(data, "unknown tag "+tag)
	}
}

// ParseMove parses a four-character <from><to> token such as "e2e4".
func ParseMove(s string) (Move, error) {
	if len(s) != 4 {
		return Move{}, fmt.Errorf("move token %q: want 4 characters", s)
	}
	m := Move{From: s[:2], To: s[2:]}
	if !ValidSquare(m.From) || !ValidSquare(m.To) {
		return Move{}, fmt.Errorf("move token %q: bad square", s)
	}
	return m, nil
}

// ValidSquare reports whether s names a board square in lowercase algebraic form.
func ValidSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// ValidUserID reports whether id can be embedded in a challenge payload.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, sep) && strings.TrimSpace(id) == id
}

func unknown(data, reason string) error {
	return domain.Wrap(domain.CodeUnknownAction, fmt.Sprintf("decode action %q", data), errors.New(reason))
}
