// Package relay connects to a chat relay over a websocket and speaks the
// relaywire frames in both directions.
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/pkg/relaywire"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrNotConnected = errors.New("relay: not connected")

// HeaderProvider injects handshake headers (e.g. a session token).
type HeaderProvider func() map[string]string

type Client struct {
	url          string
	headers      HeaderProvider
	pingInterval time.Duration
	maxReconnect int
	writeTimeout time.Duration
	newID        func() string
	onState      func(State)

	writeM sync.Mutex
	conn   *websocket.Conn

	stateM sync.RWMutex
	state  State

	wg sync.WaitGroup
}

var _ chat.Runner = (*Client)(nil)

type Option func(*Client)

func WithHeaderProvider(h HeaderProvider) Option { return func(c *Client) { c.headers = h } }

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

// WithMaxReconnect bounds consecutive failed dials; 0 retries forever.
func WithMaxReconnect(n int) Option { return func(c *Client) { c.maxReconnect = n } }

func WithStateListener(fn func(State)) Option { return func(c *Client) { c.onState = fn } }

func WithIDGenerator(fn func() string) Option { return func(c *Client) { c.newID = fn } }

func NewClient(wsURL string, opts ...Option) *Client {
	c := &Client{
		url:          wsURL,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		newID:        func() string { return uuid.NewString() },
		state:        StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateM.Lock()
	changed := c.state != s
	c.state = s
	c.stateM.Unlock()
	if changed {
		obslog.L().Info("relay_state", zap.String("state", string(s)))
		if c.onState != nil {
			c.onState(s)
		}
	}
}

// Run keeps a connection open until ctx ends, reconnecting with backoff, and
// hands inbound frames to h on their own goroutines.
func (c *Client) Run(ctx context.Context, h chat.Handler) error {
	defer c.wg.Wait()
	failures := 0
	for {
		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return nil
			}
			failures++
			if c.maxReconnect > 0 && failures > c.maxReconnect {
				c.setState(StateFailed)
				return fmt.Errorf("relay dial %s: %w", c.url, err)
			}
			obslog.L().Warn("relay_dial_failed", zap.Int("attempt", failures), zap.Error(err))
			c.setState(StateReconnecting)
			if sleepWithContext(ctx, backoffDuration(failures)) != nil {
				c.setState(StateDisconnected)
				return nil
			}
			continue
		}
		failures = 0
		c.setConn(conn)
		c.setState(StateConnected)

		err = c.serve(ctx, conn, h)
		c.setConn(nil)
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "close")
			c.setState(StateDisconnected)
			return nil
		}
		_ = conn.Close(websocket.StatusGoingAway, "reconnect")
		obslog.L().Warn("relay_connection_lost", zap.Error(err))
		c.setState(StateReconnecting)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	return conn, err
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn, h chat.Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.listen(gctx, ctx, conn, h) })
	g.Go(func() error { return c.pingLoop(gctx, conn) })
	return g.Wait()
}

// listen reads until the connection fails. Handlers run under handlerCtx so a
// dropped connection does not cancel work already in flight.
func (c *Client) listen(ctx, handlerCtx context.Context, conn *websocket.Conn, h chat.Handler) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		in, err := relaywire.DecodeInbound(raw)
		if err != nil {
			obslog.L().Warn("relay_bad_frame", zap.Error(err))
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			dispatch(handlerCtx, h, in)
		}()
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				consecutiveFailures = 0
				continue
			}
			consecutiveFailures++
			if consecutiveFailures >= 2 {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func dispatch(ctx context.Context, h chat.Handler, in relaywire.Inbound) {
	conv := domain.ConversationID(in.Room)
	actor := domain.User{ID: in.User.ID, Name: in.User.Name}
	switch in.Type {
	case relaywire.TypeCommand:
		cmd := chat.ChallengeCommand{Conversation: conv, Issuer: actor}
		if in.Target != nil {
			cmd.Target = &domain.User{ID: in.Target.ID, Name: in.Target.Name}
		}
		h.HandleChallenge(ctx, cmd)
	case relaywire.TypePress:
		h.HandlePress(ctx, chat.ActionPress{
			ID:           in.PressID,
			Conversation: conv,
			Actor:        actor,
			Data:         in.Data,
			Message:      chat.MessageRef{Conversation: conv, ID: in.MessageID},
		})
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.writeM.Lock()
	c.conn = conn
	c.writeM.Unlock()
}

// write serializes frames; wsjson.Write is not safe for concurrent use.
func (c *Client) write(ctx context.Context, v relaywire.Outbound) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.conn, v)
}

func (c *Client) SendText(ctx context.Context, conv domain.ConversationID, text string, format chat.Format) (chat.MessageRef, error) {
	f := relaywire.FormatPlain
	if format == chat.Monospace {
		f = relaywire.FormatMono
	}
	id := c.newID()
	err := c.write(ctx, relaywire.Outbound{Type: relaywire.TypeSend, Room: conv.String(), MessageID: id, Text: text, Format: f})
	return chat.MessageRef{Conversation: conv, ID: id}, err
}

func (c *Client) SendWithActions(ctx context.Context, conv domain.ConversationID, text string, rows [][]chat.Button) (chat.MessageRef, error) {
	buttons := make([][]relaywire.Button, len(rows))
	for i, row := range rows {
		buttons[i] = make([]relaywire.Button, len(row))
		for j, b := range row {
			buttons[i][j] = relaywire.Button{Label: b.Label, Data: b.Data}
		}
	}
	id := c.newID()
	err := c.write(ctx, relaywire.Outbound{Type: relaywire.TypeSend, Room: conv.String(), MessageID: id, Text: text, Format: relaywire.FormatPlain, Buttons: buttons})
	return chat.MessageRef{Conversation: conv, ID: id}, err
}

func (c *Client) EditMessage(ctx context.Context, ref chat.MessageRef, text string) error {
	return c.write(ctx, relaywire.Outbound{Type: relaywire.TypeEdit, Room: ref.Conversation.String(), MessageID: ref.ID, Text: text})
}

func (c *Client) Acknowledge(ctx context.Context, pressID, text string) error {
	return c.write(ctx, relaywire.Outbound{Type: relaywire.TypeAck, PressID: pressID, Text: text})
}

func (c *Client) SendImage(ctx context.Context, conv domain.ConversationID, png []byte, caption string) (chat.MessageRef, error) {
	id := c.newID()
	err := c.write(ctx, relaywire.Outbound{
		Type:      relaywire.TypeImage,
		Room:      conv.String(),
		MessageID: id,
		Text:      caption,
		Image:     base64.StdEncoding.EncodeToString(png),
	})
	return chat.MessageRef{Conversation: conv, ID: id}, err
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headers == nil {
		return hdr
	}
	for k, v := range c.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}
