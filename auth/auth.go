// Package auth implements the HTTP login and registration exchange that
// produces the session token the websocket connection authenticates with.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/storage"
)

// Storage keys.
const (
	tokenKey  = "token"
	playerKey = "player"
)

// Kind classifies a failed request.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindTimeout  Kind = "timeout"
	KindHTTP     Kind = "http"
	KindParse    Kind = "parse"
	KindAuth     Kind = "auth"
	KindProtocol Kind = "protocol"
)

// RequestError is returned for any failed auth request.
type RequestError struct {
	Message    string
	Kind       Kind
	StatusCode int
	TraceID    string
}

func (e *RequestError) Error() string { return e.Message }

// LoginRequest are the credentials for an existing account.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest creates a new account; Name is the character name.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// PlayerInfo is the player summary returned by the auth API.
type PlayerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Response is the auth API response body.
type Response struct {
	Success bool `json:"success"`
	Data    *struct {
		Token     string     `json:"token"`
		ExpiresIn int        `json:"expires_in"`
		Player    PlayerInfo `json:"player"`
	} `json:"data"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client performs the auth exchange and manages the stored token.
type Client struct {
	baseURL string
	http    *http.Client
	store   *storage.Store
	log     *logging.Logger
}

// NewClient builds an auth client against baseURL, persisting tokens in
// store.
func NewClient(baseURL string, store *storage.Store, log *logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
		log:     log,
	}
}

// Login authenticates and, on success, stores the session token and the
// returned player record.
func (c *Client) Login(ctx context.Context, creds LoginRequest) (*Response, error) {
	resp, err := c.request(ctx, "/auth/login", creds)
	if err != nil {
		return nil, err
	}
	c.storeSession(resp)
	if resp.Data != nil {
		c.log.Info("auth.login.success",
			"trace_id", c.log.EnsureTraceID(),
			"phase", logging.PhaseAuth,
			"player_id", resp.Data.Player.ID,
		)
	}
	return resp, nil
}

// Register creates an account and, on success, stores the session token
// and the returned player record.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Response, error) {
	resp, err := c.request(ctx, "/auth/register", req)
	if err != nil {
		return nil, err
	}
	c.storeSession(resp)
	if resp.Data != nil {
		c.log.Info("auth.register.success",
			"trace_id", c.log.EnsureTraceID(),
			"phase", logging.PhaseAuth,
			"player_id", resp.Data.Player.ID,
		)
	}
	return resp, nil
}

// Logout discards the stored token and player record.
func (c *Client) Logout() {
	_ = c.store.Delete(tokenKey)
	_ = c.store.Delete(playerKey)
}

// Token returns the stored session token, or "".
func (c *Client) Token() string {
	token, _ := c.store.Get(tokenKey)
	return token
}

// IsLoggedIn reports whether a session token is stored.
func (c *Client) IsLoggedIn() bool {
	return c.Token() != ""
}

// CachedPlayer returns the player record saved by the last successful
// login, if any.
func (c *Client) CachedPlayer() (PlayerInfo, bool) {
	raw, ok := c.store.Get(playerKey)
	if !ok {
		return PlayerInfo{}, false
	}
	var p PlayerInfo
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return PlayerInfo{}, false
	}
	return p, true
}

func (c *Client) storeSession(resp *Response) {
	if !resp.Success || resp.Data == nil || resp.Data.Token == "" {
		return
	}
	if err := c.store.Set(tokenKey, resp.Data.Token); err != nil {
		c.log.Error("auth.storage.write_failed", err, "phase", logging.PhaseAuth)
	}
	if raw, err := json.Marshal(resp.Data.Player); err == nil {
		if err := c.store.Set(playerKey, string(raw)); err != nil {
			c.log.Error("auth.storage.write_failed", err, "phase", logging.PhaseAuth)
		}
	}
}

func (c *Client) request(ctx context.Context, endpoint string, body any) (*Response, error) {
	traceID := c.log.EnsureTraceID()
	requestID := c.log.NewRequestID()
	start := time.Now()

	c.log.Info("auth.http.request",
		"trace_id", traceID,
		"request_id", requestID,
		"phase", logging.PhaseAuth,
		"endpoint", endpoint,
		"method", http.MethodPost,
	)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-ID", traceID)
	req.Header.Set("X-Request-ID", requestID)

	httpResp, err := c.http.Do(req)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		c.log.Error("auth.http.error", err,
			"trace_id", traceID,
			"request_id", requestID,
			"phase", logging.PhaseAuth,
			"endpoint", endpoint,
			"error_kind", string(kind),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &RequestError{Message: "could not reach the server", Kind: kind, TraceID: traceID}
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		c.log.Error("auth.http.error", err,
			"trace_id", traceID,
			"request_id", requestID,
			"phase", logging.PhaseAuth,
			"endpoint", endpoint,
			"status_code", httpResp.StatusCode,
			"error_kind", string(KindParse),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &RequestError{
			Message:    "the server returned an invalid response",
			Kind:       KindParse,
			StatusCode: httpResp.StatusCode,
			TraceID:    traceID,
		}
	}

	c.log.Info("auth.http.response",
		"trace_id", traceID,
		"request_id", requestID,
		"phase", logging.PhaseAuth,
		"endpoint", endpoint,
		"status_code", httpResp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	ok := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	if !ok || !resp.Success {
		message := resp.Message
		if message == "" {
			message = resp.Error
		}
		if message == "" {
			message = "API request failed"
		}
		kind := KindHTTP
		if ok {
			kind = KindAuth
		}
		c.log.Error("auth.http.error", errors.New(message),
			"trace_id", traceID,
			"request_id", requestID,
			"phase", logging.PhaseAuth,
			"endpoint", endpoint,
			"status_code", httpResp.StatusCode,
			"error_kind", string(kind),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &RequestError{
			Message:    message,
			Kind:       kind,
			StatusCode: httpResp.StatusCode,
			TraceID:    traceID,
		}
	}

	return &resp, nil
}
