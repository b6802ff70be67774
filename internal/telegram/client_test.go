package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/groupchess-bot/internal/chat"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return NewClient("http://telegram.test", "TOKEN",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(2*time.Second),
	)
}

func reply(ctx *fasthttp.RequestCtx, status int, body string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(body)
}

func TestSendMessageWithKeyboard(t *testing.T) {
	var gotPath string
	var got sendMessageRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		_ = json.Unmarshal(ctx.PostBody(), &got)
		reply(ctx, 200, `{"ok":true,"result":{"message_id":42,"chat":{"id":-1,"type":"group"}}}`)
	})
	b := NewBot(c, time.Second)
	ref, err := b.SendWithActions(context.Background(), "-1", "Turn: White", [][]chat.Button{{{Label: "e2e4", Data: "move:e2e4"}}})
	require.NoError(t, err)
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.EqualValues(t, -1, got.ChatID)
	require.NotNil(t, got.ReplyMarkup)
	assert.Equal(t, "move:e2e4", got.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, chat.MessageRef{Conversation: "-1", ID: "42"}, ref)
}

func TestMonospaceEscapesHTML(t *testing.T) {
	var got sendMessageRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		_ = json.Unmarshal(ctx.PostBody(), &got)
		reply(ctx, 200, `{"ok":true,"result":{"message_id":1,"chat":{"id":5}}}`)
	})
	_, err := NewBot(c, time.Second).SendText(context.Background(), "5", "a<b & c", chat.Monospace)
	require.NoError(t, err)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Equal(t, "<pre>a&lt;b &amp; c</pre>", got.Text)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			reply(ctx, 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
			return
		}
		reply(ctx, 200, `{"ok":true,"result":{"id":9,"is_bot":true,"first_name":"Ref","username":"refbot"}}`)
	})
	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refbot", me.Username)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		reply(ctx, 400, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`)
	})
	err := c.EditMessageText(context.Background(), 1, 2, "same")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)
	assert.Contains(t, apiErr.Description, "not modified")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSendPhotoMultipart(t *testing.T) {
	var contentType string
	var chatID, fileName string
	var size int
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		contentType = string(ctx.Request.Header.ContentType())
		if form, err := ctx.MultipartForm(); err == nil {
			chatID = strings.Join(form.Value["chat_id"], "")
			if fh := form.File["photo"]; len(fh) == 1 {
				fileName = fh[0].Filename
				size = int(fh[0].Size)
			}
		}
		reply(ctx, 200, `{"ok":true,"result":{"message_id":3,"chat":{"id":-7}}}`)
	})
	ref, err := NewBot(c, time.Second).SendImage(context.Background(), "-7", []byte("\x89PNG-data"), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data"))
	assert.Equal(t, "-7", chatID)
	assert.Equal(t, "board.png", fileName)
	assert.Equal(t, 9, size)
	assert.Equal(t, "3", ref.ID)
}

func TestGetUpdates(t *testing.T) {
	var got getUpdatesRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		_ = json.Unmarshal(ctx.PostBody(), &got)
		reply(ctx, 200, `{"ok":true,"result":[{"update_id":11,"callback_query":{"id":"q","from":{"id":1,"first_name":"A"},"data":"move:e2e4","message":{"message_id":2,"chat":{"id":-3}}}}]}`)
	})
	ups, err := c.GetUpdates(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.EqualValues(t, 10, got.Offset)
	assert.Equal(t, 1, got.Timeout)
	assert.Equal(t, "move:e2e4", ups[0].CallbackQuery.Data)
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(0))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(3))
	assert.Equal(t, backoffDuration(6), backoffDuration(10))
}
