// Package backend is the HTTP client for the hotel REST service.
//
// It executes validated tool calls: path arguments are substituted into the
// endpoint template, the remaining arguments become the JSON body, and the
// caller's bearer token is forwarded untouched. Calls are not retried; the
// orchestrator decides what a failure means for the conversation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grandhotel/concierge/internal/tools"
)

// ErrorClass partitions call failures by what the orchestrator should do
// about them.
type ErrorClass string

const (
	// ClassTimeout means the backend did not answer within the call budget.
	ClassTimeout ErrorClass = "timeout"
	// ClassNetwork means the backend could not be reached at all.
	ClassNetwork ErrorClass = "network"
	// ClassBackend4xx means the backend rejected the request.
	ClassBackend4xx ErrorClass = "backend_4xx"
	// ClassBackend5xx means the backend failed internally.
	ClassBackend5xx ErrorClass = "backend_5xx"
)

// Error is a classified call failure. For 4xx/5xx classes Status and Body
// carry the backend's response so the model can relay the reason.
type Error struct {
	Class  ErrorClass
	Status int
	Body   []byte
	cause  error
}

func (e *Error) Error() string {
	switch e.Class {
	case ClassBackend4xx, ClassBackend5xx:
		return fmt.Sprintf("backend: status %d: %s", e.Status, truncate(e.Body, 200))
	default:
		return fmt.Sprintf("backend: %s: %v", e.Class, e.cause)
	}
}

func (e *Error) Unwrap() error { return e.cause }

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Client calls the hotel REST service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ tools.Runner = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 10 second per-call budget.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the service at baseURL. logger may be nil, in
// which case slog.Default() is used.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call implements tools.Runner. args must already be validated against spec;
// path arguments are consumed by the URL template and everything else is sent
// as the JSON body. On success the raw response body is returned as-is, the
// backend's JSON shape is opaque here.
func (c *Client) Call(ctx context.Context, spec *tools.Spec, args map[string]any, bearer string) ([]byte, error) {
	path := spec.Path
	body := make(map[string]any, len(args))
	for k, v := range args {
		body[k] = v
	}
	for _, name := range spec.PathArgs() {
		path = strings.Replace(path, "{"+name+"}", pathValue(body[name]), 1)
		delete(body, name)
	}

	var reqBody io.Reader
	if len(body) > 0 && spec.Method != http.MethodGet && spec.Method != http.MethodDelete {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body for %s: %w", spec.Name, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("backend: build request for %s: %w", spec.Name, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Class: ClassNetwork, cause: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &Error{Class: ClassBackend5xx, Status: resp.StatusCode, Body: payload}
	case resp.StatusCode >= 400:
		return nil, &Error{Class: ClassBackend4xx, Status: resp.StatusCode, Body: payload}
	}
	return payload, nil
}

func classifyTransport(err error) *Error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &Error{Class: ClassTimeout, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, cause: err}
	}
	return &Error{Class: ClassNetwork, cause: err}
}

func pathValue(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%d", int64(n))
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case string:
		return url.PathEscape(n)
	default:
		return url.PathEscape(fmt.Sprint(v))
	}
}
