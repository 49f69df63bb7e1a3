package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrServerURLUnset   = errors.New("server url not configured")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Error is a failure reported by the remote API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote api error %d: %s", e.Status, e.Message)
}

// ServerURLSource yields the API server base URL.
type ServerURLSource interface {
	ServerURL(ctx context.Context) (string, error)
}

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the hackathon API.
type Client struct {
	urls    ServerURLSource
	prefix  string
	tokens  TokenSource
	HTTP    *http.Client
	observe func(endpoint, result string)
}

// New creates a client. prefix is joined between server URL and paths.
func New(urls ServerURLSource, prefix string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		urls:   urls,
		prefix: "/" + strings.Trim(prefix, "/"),
		tokens: tokens,
		HTTP:   &http.Client{Timeout: timeout},
	}
}

// WithObserver registers a per-request outcome hook.
func (c *Client) WithObserver(fn func(endpoint, result string)) *Client {
	c.observe = fn
	return c
}

// ListUsers returns every user.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, "users.list", http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser returns one user with points and attendance detail.
func (c *Client) GetUser(ctx context.Context, id int) (*UserDetail, error) {
	var out UserDetail
	if err := c.do(ctx, "users.get", http.MethodGet, "/users/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents returns the event schedule.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := c.do(ctx, "events.list", http.MethodGet, "/events", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAttendance records that a user attended an event.
func (c *Client) MarkAttendance(ctx context.Context, userID, eventID int) error {
	body := AttendanceRequest{UserID: userID, EventID: eventID}
	return c.do(ctx, "attendance.mark", http.MethodPost, "/attendance/mark", body, nil)
}

// AwardPoints grants points to a user.
func (c *Client) AwardPoints(ctx context.Context, req AwardRequest) error {
	return c.do(ctx, "points.award", http.MethodPost, "/points/award", req, nil)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) (err error) {
	defer func() {
		if c.observe == nil {
			return
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		c.observe(endpoint, result)
	}()

	base, err := c.urls.ServerURL(ctx)
	if err != nil {
		return err
	}
	if base == "" {
		return ErrServerURLUnset
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if token == "" {
		return ErrNotAuthenticated
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	url := strings.TrimRight(base, "/") + c.prefix + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", endpoint, err)
		}
	}
	return nil
}

// StaticURL is a fixed ServerURLSource.
type StaticURL string

func (s StaticURL) ServerURL(context.Context) (string, error) { return string(s), nil }
