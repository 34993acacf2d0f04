// Package supabase implements the directory and message store ports against a
// hosted Supabase project: PostgREST tables, GoTrue auth and Realtime inserts.
package supabase

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

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

// Options configures a Client.
type Options struct {
	URL     string
	AnonKey string
	// AccessToken is the signed-in user's JWT. Without it requests run with
	// the anon role and CurrentUserID reports ErrAuthUnavailable.
	AccessToken string
	// SendClientID includes client_id in inserted rows. Only enable it when the
	// messages table has that column.
	SendClientID bool
	// Timeout bounds the realtime join handshake.
	Timeout time.Duration
	// Heartbeat is the realtime keepalive interval.
	Heartbeat time.Duration
}

// Client is a wrapper around the Supabase REST, auth and realtime APIs.
type Client struct {
	opts       Options
	httpClient *http.Client
	dialer     *websocket.Dialer
	log        *zap.Logger
}

var _ domain.Backend = (*Client)(nil)

// NewClient creates a new Supabase client.
func NewClient(opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		dialer:     &websocket.Dialer{HandshakeTimeout: opts.Timeout},
		log:        log,
	}
}

// Close releases idle HTTP connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) bearer() string {
	if c.opts.AccessToken != "" {
		return c.opts.AccessToken
	}
	return c.opts.AnonKey
}

// doRequest executes an HTTP request to the Supabase REST API. Failures wrap kind.
func (c *Client) doRequest(ctx context.Context, kind error, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.opts.URL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", kind, err)
	}
	req.Header.Set("apikey", c.opts.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return c.do(req, kind)
}

func (c *Client) do(req *http.Request, kind error) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", kind, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: request failed: %v", kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", kind, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: supabase status %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts the timestamp renderings PostgREST and Realtime
// produce for timestamptz and timestamp columns. Zoneless values are UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
