// Package api is the HTTP client for the transcription server's control
// endpoints: language registration, the language catalog and worker
// control.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	addLangPath   = "/api/addLang"
	languagesPath = "/api/languages"
	startPath     = "/api/start"
	stopPath      = "/api/stop"
	statePath     = "/api/state_json"

	maxBody = 1 << 20
)

// DefaultTimeout bounds every request when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// Error is a non-2xx response. Detail is the server's "detail" field.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Values of WorkerState.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WorkerState is the transcriber worker status. Control endpoints answer
// with the same shape.
type WorkerState struct {
	Status  string `json:"transcriber_status"`
	Message string `json:"message"`
}

// Client talks to one server.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for baseURL (http or https).
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// RegisterLanguage asks the server to produce translations for lang and
// returns the server's message. A 200 response whose transcriber_status is
// "error" is reported as an *Error as well.
func (c *Client) RegisterLanguage(ctx context.Context, lang string) (string, error) {
	var out WorkerState
	if err := c.do(ctx, http.MethodPost, addLangPath, map[string]string{"lang": lang}, &out); err != nil {
		return "", fmt.Errorf("register language %s: %w", lang, err)
	}
	if out.Status == StatusError {
		return "", fmt.Errorf("register language %s: %w", lang, &Error{Status: http.StatusOK, Detail: out.Message})
	}
	return out.Message, nil
}

// Languages returns the supported language codes.
func (c *Client) Languages(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, languagesPath, nil, &out); err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return out, nil
}

// StartWorker starts the server's transcriber worker.
func (c *Client) StartWorker(ctx context.Context) (string, error) {
	return c.control(ctx, startPath)
}

// StopWorker stops the server's transcriber worker.
func (c *Client) StopWorker(ctx context.Context) (string, error) {
	return c.control(ctx, stopPath)
}

// WorkerState returns the transcriber worker status.
func (c *Client) WorkerState(ctx context.Context) (WorkerState, error) {
	var out WorkerState
	if err := c.do(ctx, http.MethodGet, statePath, nil, &out); err != nil {
		return WorkerState{}, fmt.Errorf("worker state: %w", err)
	}
	return out, nil
}

func (c *Client) control(ctx context.Context, path string) (string, error) {
	var out WorkerState
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimPrefix(path, "/api/"), err)
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.base
	u.Path += path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Detail any `json:"detail"`
		}
		apiErr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(data, &e) == nil {
			apiErr.Detail = detailText(e.Detail)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detailText flattens a detail field, which is a string for application
// errors and a list of objects for request validation errors.
func detailText(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					parts = append(parts, msg)
					continue
				}
			}
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; ")
	}
	data, _ := json.Marshal(v)
	return string(data)
}
