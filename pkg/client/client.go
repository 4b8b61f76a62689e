package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/model"
)

const (
	PathLogin         = "/auth/login"
	PathValidateToken = "/auth/validate-token"
	PathMessages      = "/messages"
	PathUnreadCount   = "/messages/unread-count"
	PathReadAll       = "/messages/read-all"
	PathConversations = "/conversations"
	PathHealth        = "/v1/health"
)

// Client talks to the counseling REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is what came back from one call. On a non-200 status it is
// returned together with a *StatusError so the caller can still print Body.
type Response[T any] struct {
	StatusCode int
	Body       []byte
	Value      T
	Duration   time.Duration
}

// NoContent marks calls whose body is not decoded.
type NoContent struct{}

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*Response[model.LoginResponse], error) {
	const op = "Client.Login"
	resp, err := send[model.LoginResponse](ctx, c, op, http.MethodPost, PathLogin, nil, req)
	if err != nil {
		return resp, err
	}

	// An empty token is still a token; only an absent or null one is missing.
	var present struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &present); err != nil || present.Token == nil {
		return resp, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	return resp, nil
}

func (c *Client) SendMessage(ctx context.Context, token string, req model.MessageRequest) (*Response[json.RawMessage], error) {
	return send[json.RawMessage](ctx, c, "Client.SendMessage", http.MethodPost, PathMessages, &token, req)
}

func (c *Client) UnreadCount(ctx context.Context, token string) (*Response[json.RawMessage], error) {
	return send[json.RawMessage](ctx, c, "Client.UnreadCount", http.MethodGet, PathUnreadCount, &token, nil)
}

func (c *Client) MarkAllRead(ctx context.Context, token string) (*Response[NoContent], error) {
	return send[NoContent](ctx, c, "Client.MarkAllRead", http.MethodPut, PathReadAll, &token, nil)
}

func (c *Client) Conversations(ctx context.Context, token string) (*Response[[]model.Conversation], error) {
	return send[[]model.Conversation](ctx, c, "Client.Conversations", http.MethodGet, PathConversations, &token, nil)
}

func (c *Client) ValidateToken(ctx context.Context, token string) (*Response[model.TokenValidation], error) {
	return send[model.TokenValidation](ctx, c, "Client.ValidateToken", http.MethodGet, PathValidateToken, &token, nil)
}

func (c *Client) Health(ctx context.Context) (*Response[json.RawMessage], error) {
	return send[json.RawMessage](ctx, c, "Client.Health", http.MethodGet, PathHealth, nil, nil)
}

// send performs one call. A nil token means the call is anonymous; a non-nil
// one is always sent as a bearer header, even when empty.
func send[T any](ctx context.Context, c *Client, op, method, path string, token *string, in any) (*Response[T], error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		req.Header.Set("Authorization", auth.BearerHeader(*token))
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", httpResp.StatusCode),
		zap.Duration("duration", duration))

	resp := &Response[T]{
		StatusCode: httpResp.StatusCode,
		Body:       raw,
		Duration:   duration,
	}

	if httpResp.StatusCode != http.StatusOK {
		return resp, &StatusError{Op: op, StatusCode: httpResp.StatusCode, Body: string(raw)}
	}

	if _, skip := any(resp.Value).(NoContent); skip {
		return resp, nil
	}
	if err := json.Unmarshal(raw, &resp.Value); err != nil {
		return resp, fmt.Errorf("%s: %w: %v", op, ErrInvalidJSON, err)
	}
	return resp, nil
}
