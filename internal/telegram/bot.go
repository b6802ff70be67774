package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/obslog"
)

const challengeCommand = "/challenge"

// Bot adapts the Bot API client to chat.Runner.
type Bot struct {
	client      *Client
	pollTimeout time.Duration
	username    string

	wg sync.WaitGroup
}

var _ chat.Runner = (*Bot)(nil)

func NewBot(client *Client, pollTimeout time.Duration) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{client: client, pollTimeout: pollTimeout}
}

// Run identifies the bot, then long-polls updates until ctx ends. Each event is
// handled on its own goroutine; Run waits for them before returning.
func (b *Bot) Run(ctx context.Context, h chat.Handler) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	b.username = me.Username
	obslog.L().Info("telegram_ready", zap.String("bot", me.Username))
	defer b.wg.Wait()

	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			obslog.L().Warn("telegram_poll_failed", zap.Error(err))
			if sleepWithContext(ctx, 2*time.Second) != nil {
				return nil
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			ev := ParseUpdate(u, b.username)
			if ev == nil {
				continue
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				dispatch(ctx, h, ev)
			}()
		}
	}
}

func dispatch(ctx context.Context, h chat.Handler, ev any) {
	switch e := ev.(type) {
	case chat.ChallengeCommand:
		h.HandleChallenge(ctx, e)
	case chat.ActionPress:
		h.HandlePress(ctx, e)
	}
}

// ParseUpdate converts an update into chat.ChallengeCommand or chat.ActionPress.
// Anything else yields nil.
func ParseUpdate(u Update, botUsername string) any {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.Message == nil {
			return nil
		}
		conv := conversationID(q.Message.Chat.ID)
		return chat.ActionPress{
			ID:           q.ID,
			Conversation: conv,
			Actor:        toUser(q.From),
			Data:         q.Data,
			Message:      chat.MessageRef{Conversation: conv, ID: strconv.FormatInt(q.Message.MessageID, 10)},
		}
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		if !isChallenge(m.Text, botUsername) {
			return nil
		}
		cmd := chat.ChallengeCommand{
			Conversation: conversationID(m.Chat.ID),
			Issuer:       toUser(*m.From),
		}
		if r := m.ReplyToMessage; r != nil && r.From != nil {
			target := toUser(*r.From)
			cmd.Target = &target
		}
		return cmd
	}
	return nil
}

// isChallenge accepts "/challenge" and "/challenge@<bot>" as the first token.
func isChallenge(text, botUsername string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	name, at, hasAt := strings.Cut(fields[0], "@")
	if !strings.EqualFold(name, challengeCommand) {
		return false
	}
	return !hasAt || botUsername == "" || strings.EqualFold(at, botUsername)
}

func toUser(u User) domain.User {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		name = "@" + u.Username
	}
	return domain.User{ID: strconv.FormatInt(u.ID, 10), Name: name}
}

func conversationID(chatID int64) domain.ConversationID {
	return domain.ConversationID(strconv.FormatInt(chatID, 10))
}

func parseChatID(conv domain.ConversationID) (int64, error) {
	id, err := strconv.ParseInt(string(conv), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id %q: %w", conv, err)
	}
	return id, nil
}

func (b *Bot) ref(conv domain.ConversationID, m *Message) chat.MessageRef {
	return chat.MessageRef{Conversation: conv, ID: strconv.FormatInt(m.MessageID, 10)}
}

func (b *Bot) SendText(ctx context.Context, conv domain.ConversationID, text string, format chat.Format) (chat.MessageRef, error) {
	id, err := parseChatID(conv)
	if err != nil {
		return chat.MessageRef{}, err
	}
	parseMode := ""
	if format == chat.Monospace {
		text, parseMode = "<pre>"+html.EscapeString(text)+"</pre>", "HTML"
	}
	m, err := b.client.SendMessage(ctx, id, text, parseMode, nil)
	if err != nil {
		return chat.MessageRef{}, err
	}
	return b.ref(conv, m), nil
}

func (b *Bot) SendWithActions(ctx context.Context, conv domain.ConversationID, text string, rows [][]chat.Button) (chat.MessageRef, error) {
	id, err := parseChatID(conv)
	if err != nil {
		return chat.MessageRef{}, err
	}
	m, err := b.client.SendMessage(ctx, id, text, "", Keyboard(rows))
	if err != nil {
		return chat.MessageRef{}, err
	}
	return b.ref(conv, m), nil
}

func (b *Bot) EditMessage(ctx context.Context, ref chat.MessageRef, text string) error {
	id, err := parseChatID(ref.Conversation)
	if err != nil {
		return err
	}
	msgID, err := strconv.ParseInt(ref.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram message id %q: %w", ref.ID, err)
	}
	return b.client.EditMessageText(ctx, id, msgID, text)
}

func (b *Bot) Acknowledge(ctx context.Context, pressID, text string) error {
	return b.client.AnswerCallbackQuery(ctx, pressID, text)
}

func (b *Bot) SendImage(ctx context.Context, conv domain.ConversationID, png []byte, caption string) (chat.MessageRef, error) {
	id, err := parseChatID(conv)
	if err != nil {
		return chat.MessageRef{}, err
	}
	m, err := b.client.SendPhoto(ctx, id, png, caption)
	if err != nil {
		return chat.MessageRef{}, err
	}
	return b.ref(conv, m), nil
}

// Keyboard converts button rows to an inline keyboard.
func Keyboard(rows [][]chat.Button) *InlineKeyboardMarkup {
	kb := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			out = append(out, InlineKeyboardButton{Text: btn.Label, CallbackData: btn.Data})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}
