package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

const (
	realtimeTopic = "realtime:detox-messages"
	writeWait     = 10 * time.Second
)

// phxMessage is a Phoenix channel frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type postgresChange struct {
	Data struct {
		Type   string     `json:"type"`
		Record messageRow `json:"record"`
	} `json:"data"`
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", c.opts.AnonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubscribeInserts joins a realtime channel for INSERTs on public.messages and
// calls fn for every new row. The subscription ends when Close is called or
// ctx is done.
func (c *Client) SubscribeInserts(ctx context.Context, fn func(domain.Message)) (domain.Subscription, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial realtime: %v", domain.ErrSubscription, err)
	}

	s := &realtimeSubscription{
		conn: conn,
		log:  c.log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := s.join(c.opts.AccessToken, c.opts.Timeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readPump(fn)
	}()
	go func() {
		defer wg.Done()
		s.heartbeat(ctx, c.opts.Heartbeat)
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()
	return s, nil
}

type realtimeSubscription struct {
	conn    *websocket.Conn
	log     *zap.Logger
	writeMu sync.Mutex
	ref     atomic.Uint64
	stopped atomic.Bool
	once    sync.Once
	stop    chan struct{}
	done    chan struct{}

	errMu sync.Mutex
	err   error
}

func (s *realtimeSubscription) send(topic, event string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := strconv.FormatUint(s.ref.Add(1), 10)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ref, s.conn.WriteJSON(phxMessage{Topic: topic, Event: event, Payload: raw, Ref: &ref})
}

func (s *realtimeSubscription) join(accessToken string, timeout time.Duration) error {
	payload := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]any{
				{"event": "INSERT", "schema": "public", "table": "messages"},
			},
		},
	}
	if accessToken != "" {
		payload["access_token"] = accessToken
	}
	ref, err := s.send(realtimeTopic, "phx_join", payload)
	if err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await join reply: %w", err)
		}
		if msg.Event != "phx_reply" || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("parse join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("join rejected: %s %s", reply.Status, string(reply.Response))
		}
		return nil
	}
}

func (s *realtimeSubscription) readPump(fn func(domain.Message)) {
	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.stopped.Load() {
				s.log.Warn("realtime connection lost", zap.Error(err))
			}
			s.lost(fmt.Errorf("connection lost: %w", err))
			return
		}
		if msg.Topic != realtimeTopic {
			continue
		}
		switch msg.Event {
		case "postgres_changes":
			var change postgresChange
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				s.log.Warn("bad realtime payload", zap.Error(err))
				continue
			}
			if change.Data.Type != "" && change.Data.Type != "INSERT" {
				continue
			}
			m, err := change.Data.Record.toDomain()
			if err != nil {
				s.log.Warn("bad realtime record", zap.Error(err))
				continue
			}
			if s.stopped.Load() {
				return
			}
			fn(m)
		case "phx_error", "phx_close":
			if !s.stopped.Load() {
				s.log.Warn("realtime channel closed by server", zap.String("event", msg.Event))
			}
			s.lost(fmt.Errorf("channel closed by server: %s", msg.Event))
			return
		}
	}
}

func (s *realtimeSubscription) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			if _, err := s.send("phoenix", "heartbeat", map[string]any{}); err != nil {
				s.log.Warn("realtime heartbeat failed", zap.Error(err))
				s.lost(fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

// lost records err as the reason delivery stopped, unless the owner stopped
// it first, and tears the connection down so the heartbeat exits too.
func (s *realtimeSubscription) lost(err error) {
	if s.stopped.CompareAndSwap(false, true) {
		s.errMu.Lock()
		s.err = fmt.Errorf("%w: %w", domain.ErrSubscription, err)
		s.errMu.Unlock()
	}
	s.shutdown()
}

func (s *realtimeSubscription) shutdown() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.stop)
		_, _ = s.send(realtimeTopic, "phx_leave", map[string]any{})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

// Close leaves the channel, closes the socket and waits for the reader to
// exit. It must not be called from inside the subscription callback.
func (s *realtimeSubscription) Close() error {
	s.shutdown()
	<-s.done
	return nil
}

func (s *realtimeSubscription) Done() <-chan struct{} { return s.done }

func (s *realtimeSubscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
