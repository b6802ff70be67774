package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Status      int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status=%d code=%d %s", e.Method, e.Status, e.Code, e.Description)
}

// Client calls the Telegram Bot API over fasthttp.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithDial replaces the TCP dialer (used by tests with an in-memory listener).
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(apiURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(apiURL, "/") + "/bot" + token,
		http:           &fasthttp.Client{ReadTimeout: 90 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u, callOpts{retry: true}); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for up to wait.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(wait / time.Second),
		AllowedUpdates: []string{"message", "callback_query"},
	}
	var out []Update
	if err := c.call(ctx, "getUpdates", req, &out, callOpts{timeout: wait + c.defaultTimeout}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string, markup *InlineKeyboardMarkup) (*Message, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode, ReplyMarkup: markup}
	var m Message
	if err := c.call(ctx, "sendMessage", req, &m, callOpts{retry: true}); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageText replaces the text; omitting reply_markup removes the inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	req := editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: text}
	return c.call(ctx, "editMessageText", req, nil, callOpts{retry: true})
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	req := answerCallbackQueryRequest{CallbackQueryID: id, Text: text}
	return c.call(ctx, "answerCallbackQuery", req, nil, callOpts{})
}

// SendPhoto uploads png as multipart/form-data.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) (*Message, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("photo", "board.png")
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	var m Message
	raw := rawBody{contentType: w.FormDataContentType(), data: body.Bytes()}
	if err := c.call(ctx, "sendPhoto", raw, &m, callOpts{retry: true}); err != nil {
		return nil, err
	}
	return &m, nil
}

type rawBody struct {
	contentType string
	data        []byte
}

type callOpts struct {
	retry   bool
	timeout time.Duration
}

func (c *Client) call(ctx context.Context, method string, in any, out any, opts callOpts) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/" + method)
	switch v := in.(type) {
	case nil:
	case rawBody:
		req.Header.SetContentType(v.contentType)
		req.SetBody(v.data)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	attempts := 1
	if opts.retry && c.retryMax > 1 {
		attempts = c.retryMax
	}
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, computeDeadline(ctx, timeout)); err != nil {
			lastErr = fmt.Errorf("telegram %s: request failed: %w", method, err)
			if attempt == attempts || ctx.Err() != nil {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			lastErr = fmt.Errorf("telegram %s: decode response (status=%d): %w", method, resp.StatusCode(), err)
			if attempt == attempts || !shouldRetryStatus(resp.StatusCode()) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}
		if !env.OK {
			apiErr := &APIError{Method: method, Status: resp.StatusCode(), Code: env.ErrorCode, Description: env.Description}
			if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
				apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
			}
			lastErr = apiErr
			if attempt == attempts || !shouldRetryStatus(resp.StatusCode()) {
				return apiErr
			}
			wait := backoffDuration(attempt)
			if apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			if sleepErr := sleepWithContext(ctx, wait); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("telegram %s: decode result: %w", method, err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func computeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	clientDL := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
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

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
