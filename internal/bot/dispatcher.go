// Package bot routes chat events to the referee and turns results into
// outbound chat calls.
package bot

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/msgcat"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/internal/referee"
)

// Dispatcher implements chat.Handler.
type Dispatcher struct {
	ref     *referee.Service
	tr      chat.Transport
	cat     *msgcat.Catalog
	present *Presenter
	allowed func(domain.ConversationID) bool
}

type Option func(*Dispatcher)

// WithChatFilter drops events from conversations for which allow returns false.
func WithChatFilter(allow func(domain.ConversationID) bool) Option {
	return func(d *Dispatcher) { d.allowed = allow }
}

func NewDispatcher(ref *referee.Service, tr chat.Transport, cat *msgcat.Catalog, present *Presenter, opts ...Option) *Dispatcher {
	d := &Dispatcher{ref: ref, tr: tr, cat: cat, present: present}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ chat.Handler = (*Dispatcher)(nil)

func (d *Dispatcher) allow(conv domain.ConversationID) bool {
	if d.allowed == nil || d.allowed(conv) {
		return true
	}
	obslog.L().Debug("chat_ignored", zap.String("conversation", conv.String()))
	return false
}

func (d *Dispatcher) HandleChallenge(ctx context.Context, cmd chat.ChallengeCommand) {
	if !d.allow(cmd.Conversation) {
		return
	}
	ch, err := d.ref.IssueChallenge(ctx, cmd.Conversation, cmd.Issuer, cmd.Target)
	if err != nil {
		d.send(ctx, cmd.Conversation, d.errorText(err, cmd.Conversation))
		return
	}
	data := map[string]string{
		"Challenger": ch.Challenger.Display(),
		"Challenged": ch.Challenged.Display(),
	}
	rows := [][]chat.Button{{
		{Label: d.cat.Text("challenge.accept_button", nil), Data: action.Accept{Challenger: ch.Challenger.ID, Challenged: ch.Challenged.ID}.Encode()},
		{Label: d.cat.Text("challenge.decline_button", nil), Data: action.Decline{Challenger: ch.Challenger.ID, Challenged: ch.Challenged.ID}.Encode()},
	}}
	if _, err := d.tr.SendWithActions(ctx, cmd.Conversation, d.cat.Text("challenge.invite", data), rows); err != nil {
		logTransport("send_invite", cmd.Conversation, err)
	}
}

func (d *Dispatcher) HandlePress(ctx context.Context, p chat.ActionPress) {
	if !d.allow(p.Conversation) {
		return
	}
	act, err := action.Decode(p.Data)
	if err != nil {
		d.ack(ctx, p, d.errorText(err, p.Conversation))
		return
	}
	switch a := act.(type) {
	case action.Accept:
		d.accept(ctx, p, a)
	case action.Decline:
		d.decline(ctx, p, a)
	case action.Move:
		d.move(ctx, p, a)
	default:
		d.ack(ctx, p, d.errorText(domain.ErrUnknownAction, p.Conversation))
	}
}

func (d *Dispatcher) accept(ctx context.Context, p chat.ActionPress, a action.Accept) {
	g, board, err := d.ref.Accept(ctx, p.Conversation, p.Actor, a)
	if err != nil {
		d.ack(ctx, p, d.errorText(err, p.Conversation))
		return
	}
	d.ack(ctx, p, "")
	d.edit(ctx, p.Message, d.cat.Text("game.started", map[string]string{
		"White": g.White.Display(),
		"Black": g.Black.Display(),
	}))
	d.present.Board(ctx, p.Conversation, g, board, nil)
}

func (d *Dispatcher) decline(ctx context.Context, p chat.ActionPress, a action.Decline) {
	ch, err := d.ref.Decline(ctx, p.Conversation, p.Actor, a)
	if err != nil {
		d.ack(ctx, p, d.errorText(err, p.Conversation))
		return
	}
	d.ack(ctx, p, "")
	d.edit(ctx, p.Message, d.cat.Text("challenge.declined", map[string]string{
		"Challenger": ch.Challenger.Display(),
		"Challenged": ch.Challenged.Display(),
	}))
}

func (d *Dispatcher) move(ctx context.Context, p chat.ActionPress, m action.Move) {
	res, err := d.ref.PlayMove(ctx, p.Conversation, p.Actor, m)
	if err != nil {
		d.ack(ctx, p, d.errorText(err, p.Conversation))
		return
	}
	if res.Outcome != nil {
		d.ack(ctx, p, "")
		d.edit(ctx, p.Message, d.present.OutcomeText(res.Outcome))
		return
	}
	d.ack(ctx, p, d.cat.Text("game.move_ok", map[string]string{"Move": m.UCI()}))
	d.edit(ctx, p.Message, d.cat.Text("game.played", map[string]string{
		"Player": p.Actor.Display(),
		"Move":   m.UCI(),
	}))
	d.present.Board(ctx, p.Conversation, &res.Game, res.Board, &res.Move)
}

// errorText maps rejections to catalog text; anything else is logged and reported generically.
func (d *Dispatcher) errorText(err error, conv domain.ConversationID) string {
	if code, ok := domain.CodeOf(err); ok {
		return d.cat.Text("errors."+string(code), nil)
	}
	level := obslog.L().Error
	if errors.Is(err, context.Canceled) {
		level = obslog.L().Warn
	}
	level("referee_failure", zap.String("conversation", conv.String()), zap.Error(err))
	return d.cat.Text("errors.generic", nil)
}

func (d *Dispatcher) ack(ctx context.Context, p chat.ActionPress, text string) {
	if err := d.tr.Acknowledge(ctx, p.ID, text); err != nil {
		logTransport("acknowledge", p.Conversation, err)
	}
}

func (d *Dispatcher) edit(ctx context.Context, ref chat.MessageRef, text string) {
	if ref.ID == "" {
		d.send(ctx, ref.Conversation, text)
		return
	}
	if err := d.tr.EditMessage(ctx, ref, text); err != nil {
		logTransport("edit_message", ref.Conversation, err)
	}
}

func (d *Dispatcher) send(ctx context.Context, conv domain.ConversationID, text string) {
	if _, err := d.tr.SendText(ctx, conv, text, chat.Plain); err != nil {
		logTransport("send_text", conv, err)
	}
}

func logTransport(op string, conv domain.ConversationID, err error) {
	obslog.L().Warn("transport_failure",
		zap.String("op", op),
		zap.String("conversation", conv.String()),
		zap.Error(err),
	)
}
