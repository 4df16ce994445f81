// Package client talks to the chat proxy's POST /api/chat endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gemini-chat/internal/models"
)

const (
	chatPath     = "/api/chat"
	maxBodyBytes = 4 << 20
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrEmptyResponse is returned when the proxy answers 2xx without any text.
var ErrEmptyResponse = errors.New("The response was empty")

// APIError is a non-2xx JSON reply from the proxy. Error() is the server's
// own error text so it can be shown to the user as is.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	return e.Message
}

// UnexpectedResponseError is a reply whose body is not JSON.
type UnexpectedResponseError struct {
	StatusCode int
	Body       string
}

func (e *UnexpectedResponseError) Error() string {
	return "Unexpected response: " + e.Body
}

// TimeoutError is returned when Config.Timeout elapses before the proxy answers.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.After)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// =============================================================================
// CLIENT
// =============================================================================

type Config struct {
	// BaseURL of the proxy, e.g. http://localhost:8080
	BaseURL string

	// Timeout per request; zero leaves the caller's context in charge.
	Timeout time.Duration

	// HTTPClient defaults to a client without its own timeout.
	HTTPClient *http.Client
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
	}
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    httpClient,
	}
}

// Send posts one message and returns the assistant's Markdown reply.
// Cancelling ctx aborts the HTTP call and Send returns ctx.Err().
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(models.ChatRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", c.transportError(ctx, reqCtx, err)
	}

	return parseReply(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func (c *Client) transportError(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: c.timeout}
	}
	return fmt.Errorf("chat request failed: %w", err)
}

func parseReply(status int, contentType string, body []byte) (string, error) {
	if !strings.Contains(contentType, "application/json") || !gjson.ValidBytes(body) {
		return "", &UnexpectedResponseError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	}

	if status < 200 || status > 299 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = fmt.Sprintf("Error %d: Something went wrong", status)
		}
		return "", &APIError{
			StatusCode: status,
			Message:    msg,
			Details:    gjson.GetBytes(body, "details").String(),
		}
	}

	text := gjson.GetBytes(body, "text")
	if text.Type != gjson.String || text.String() == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
