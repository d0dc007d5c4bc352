// Package client talks to a running brigade API server.
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
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"brigade/internal/agents"
	"brigade/internal/models"
	"brigade/internal/monitoring"
)

const defaultBaseURL = "http://localhost:8080"

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brigade API returned %d: %s", e.StatusCode, e.Message)
}

// Client handles requests to the brigade API.
type Client struct {
	httpClient *http.Client
	BaseURL    string
}

// NewClient creates a client. An empty baseURL falls back to
// BRIGADE_API_URL and then to localhost:8080.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("BRIGADE_API_URL")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// CheckHealth checks if the API is up and running
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Queued is the server's answer to an asynchronous orchestration.
type Queued struct {
	RunID  string           `json:"run_id"`
	Status models.RunStatus `json:"status"`
	Stream string           `json:"stream"`
}

// Submit starts an orchestration without waiting for it.
func (c *Client) Submit(ctx context.Context, prompt string, pc agents.ProjectContext) (*Queued, error) {
	body := map[string]interface{}{
		"prompt":          prompt,
		"project_id":      pc.ProjectID,
		"conversation_id": pc.ConversationID,
		"background":      pc.Background,
	}
	var q Queued
	if err := c.do(ctx, http.MethodPost, "/api/v1/orchestrate", body, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetRun retrieves a run with its department rows.
func (c *Client) GetRun(ctx context.Context, id string) (*models.OrchestrationRun, error) {
	var run models.OrchestrationRun
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ActiveRuns lists runs the server is working on.
func (c *Client) ActiveRuns(ctx context.Context) ([]monitoring.RunSnapshot, error) {
	var out struct {
		Runs []monitoring.RunSnapshot `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// Watch streams run events to fn until the run finishes, the server closes
// the stream or ctx is done.
func (c *Client) Watch(ctx context.Context, id string, fn func(models.RunEvent)) error {
	u, err := url.Parse(c.BaseURL + "/api/v1/runs/" + url.PathEscape(id) + "/stream")
	if err != nil {
		return fmt.Errorf("parsing stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("connecting to run stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev models.RunEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading run stream: %w", err)
		}
		fn(ev)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
