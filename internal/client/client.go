// Package client talks to a running octo server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/orchestrator"
	"github.com/harshul/octo-preview/internal/server"
	"github.com/harshul/octo-preview/internal/store"
)

// APIError is a non-2xx reply from the server
type APIError struct {
	StatusCode int
	Message    string
	Logs       []string
	StderrTail []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the octo API
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the server listening on addr, which may be a
// bare host:port or a full URL.
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	// requests are bounded by the caller's context
	return &Client{httpClient: &http.Client{}, baseURL: base}
}

// BaseURL returns the server URL the client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach octo server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp server.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &errResp) != nil || errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(data))
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			Logs:       errResp.Logs,
			StderrTail: errResp.Tail,
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func projectPath(id string, parts ...string) string {
	p := "/api/projects/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Health checks that the server is up and returns how many previews it runs
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var out server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// CreateProject registers a project
func (c *Client) CreateProject(ctx context.Context, params store.CreateParams) (*store.Project, error) {
	var out store.Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns every registered project
func (c *Client) ListProjects(ctx context.Context) ([]store.Project, error) {
	var out []store.Project
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out)
	return out, err
}

// GetProject returns a project and its live preview state
func (c *Client) GetProject(ctx context.Context, id string) (server.ProjectResponse, error) {
	var out server.ProjectResponse
	err := c.do(ctx, http.MethodGet, projectPath(id), nil, &out)
	return out, err
}

// DeleteProject stops the project's preview and removes it
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

// Start starts the project's preview
func (c *Client) Start(ctx context.Context, id string) (orchestrator.Info, error) {
	var out orchestrator.Info
	err := c.do(ctx, http.MethodPost, projectPath(id, "preview", "start"), nil, &out)
	return out, err
}

// Stop stops the project's preview
func (c *Client) Stop(ctx context.Context, id string) (orchestrator.Info, error) {
	var out orchestrator.Info
	err := c.do(ctx, http.MethodPost, projectPath(id, "preview", "stop"), nil, &out)
	return out, err
}

// Status returns the project's preview state
func (c *Client) Status(ctx context.Context, id string) (orchestrator.Info, error) {
	var out orchestrator.Info
	err := c.do(ctx, http.MethodGet, projectPath(id, "preview"), nil, &out)
	return out, err
}

// Logs returns buffered preview output. A positive tail limits it to the
// last tail lines.
func (c *Client) Logs(ctx context.Context, id string, tail int) ([]string, error) {
	path := projectPath(id, "preview", "logs")
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	var out server.LogsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Logs, err
}

// Install installs the project's dependencies
func (c *Client) Install(ctx context.Context, id string) ([]string, error) {
	var out server.LogsResponse
	err := c.do(ctx, http.MethodPost, projectPath(id, "preview", "install"), nil, &out)
	return out.Logs, err
}

// Watch streams the project's events, starting with recent history, until
// ctx is cancelled or the server closes the connection.
func (c *Client) Watch(ctx context.Context, id string, handle func(eventbus.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + projectPath(id, "events")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev eventbus.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if ev.Type != eventbus.EventLog && ev.Type != eventbus.EventStatus {
			continue
		}
		handle(ev)
	}
}
