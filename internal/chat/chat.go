// Package chat defines the boundary between the referee and a chat platform:
// the inbound events a transport delivers and the outbound calls it must support.
package chat

import (
	"context"

	"github.com/park285/groupchess-bot/internal/domain"
)

// MessageRef addresses a message previously sent by the bot.
type MessageRef struct {
	Conversation domain.ConversationID `json:"conversation"`
	ID           string                `json:"id"`
}

// Button is one inline action. Data is an encoded action payload.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Format selects how SendText bodies are shown.
type Format int

const (
	Plain Format = iota
	// Monospace renders the body as a fixed-width block.
	Monospace
)

// ChallengeCommand is a /challenge message. Target is nil when the command did
// not reply to another user.
type ChallengeCommand struct {
	Conversation domain.ConversationID
	Issuer       domain.User
	Target       *domain.User
}

// ActionPress is a button press. ID is used to acknowledge the press.
type ActionPress struct {
	ID           string
	Conversation domain.ConversationID
	Actor        domain.User
	Data         string
	Message      MessageRef
}

// Transport is implemented by every chat platform adapter.
type Transport interface {
	SendText(ctx context.Context, conv domain.ConversationID, text string, format Format) (MessageRef, error)
	SendWithActions(ctx context.Context, conv domain.ConversationID, text string, rows [][]Button) (MessageRef, error)
	// EditMessage replaces the text of ref and drops its buttons.
	EditMessage(ctx context.Context, ref MessageRef, text string) error
	// Acknowledge answers a press with a short notice shown only to the presser.
	Acknowledge(ctx context.Context, pressID, text string) error
	SendImage(ctx context.Context, conv domain.ConversationID, png []byte, caption string) (MessageRef, error)
}

// Handler consumes inbound events.
type Handler interface {
	HandleChallenge(ctx context.Context, cmd ChallengeCommand)
	HandlePress(ctx context.Context, press ActionPress)
}

// Runner is a transport that also pulls inbound events until ctx ends.
type Runner interface {
	Transport
	Run(ctx context.Context, h Handler) error
}
