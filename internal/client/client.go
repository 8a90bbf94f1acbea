// Package client talks to a running tracker daemon over its unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/internal/server"
	"github.com/grovetools/tracker/internal/tracker"
)

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// Client calls the daemon's HTTP API.
type Client struct {
	httpClient *http.Client
	socketPath string
}

// New creates a Client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		socketPath: socketPath,
	}
}

// Connect returns a Client if a daemon answers on socketPath, or a
// NOT_RUNNING error.
func Connect(socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, notRunning(socketPath)
	}
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return nil, notRunning(socketPath)
	}
	conn.Close()
	return New(socketPath), nil
}

func notRunning(socketPath string) error {
	return errors.New(errors.ErrCodeNotRunning, "tracker daemon is not running; start it with 'tracker daemon'").
		WithDetail("socket", socketPath)
}

// IsRunning returns true if the daemon is available and responding.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+server.PathHealth, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Start asks the daemon to start tracking taskID.
func (c *Client) Start(ctx context.Context, taskID string, opts tracker.StartOptions) (*tracker.StartResult, error) {
	var resp server.StartResponse
	if err := c.do(ctx, http.MethodPost, server.PathStartTracking, server.StartRequest{TaskID: taskID, StartOptions: opts}, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.StartResult, nil
}

// Stop asks the daemon to stop tracking taskID.
func (c *Client) Stop(ctx context.Context, taskID string) (*tracker.Summary, error) {
	var resp server.StopResponse
	if err := c.do(ctx, http.MethodPost, server.PathStopTracking, server.StopRequest{TaskID: taskID}, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.Summary, nil
}

// Status returns the status of taskID.
func (c *Client) Status(ctx context.Context, taskID string) (*tracker.Status, error) {
	var resp server.StatusResponse
	path := server.PathGetStatus + "?taskId=" + url.QueryEscape(taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// ListActive returns the daemon's running sessions.
func (c *Client) ListActive(ctx context.Context) ([]tracker.ActiveSession, error) {
	var resp server.ListResponse
	if err := c.do(ctx, http.MethodGet, server.PathListActive, nil, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Config returns the daemon's running configuration.
func (c *Client) Config(ctx context.Context) (*server.RunningConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+server.PathConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get config from daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	var cfg server.RunningConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Stream subscribes to /api/stream. The channel is closed when ctx ends or
// the connection drops.
func (c *Client) Stream(ctx context.Context) (<-chan server.StreamUpdate, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, "ws://unix"+server.PathStream, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	ch := make(chan server.StreamUpdate, 10)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var update server.StreamUpdate
			if err := conn.ReadJSON(&update); err != nil {
				return
			}
			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes the reply into out. A success=false
// envelope comes back as a TrackerError with the daemon's code.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, env *server.Envelope) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNotRunning, "cannot reach tracker daemon").
			WithDetail("socket", c.socketPath)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	if !env.Success {
		code := env.Code
		if code == "" {
			code = errors.ErrCodeInternal
		}
		return errors.New(code, env.Error)
	}
	return nil
}
