// Package push is the app-facing realtime channel: every client connected to
// /ws receives each newly stored message as a new_message frame.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup

	subMu     sync.Mutex
	sub       domain.Subscription
	stopped   bool
	stop      chan struct{}
	followers sync.WaitGroup
	// retryWait is the first pause before refollowing a lost subscription.
	retryWait time.Duration
}

const maxRetryWait = 30 * time.Second

// NewHub creates a hub. allowedOrigins restricts the websocket handshake;
// an empty list accepts any origin.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:       log,
		clients:   make(map[*Client]struct{}),
		stop:      make(chan struct{}),
		retryWait: time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and greets the new client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("push upgrade failed", zap.Error(err))
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, 256), log: h.log}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("push client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", n))
	c.enqueue(welcomeFrame())
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast sends m to every client as a new_message frame. Clients whose
// queue is full are disconnected.
func (h *Hub) Broadcast(m domain.Message) int {
	data, err := json.Marshal(newMessageFrame(m))
	if err != nil {
		h.log.Error("marshal new_message", zap.Error(err))
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			sent++
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
	return sent
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Follow broadcasts every row inserted into store until Close. When the
// subscription cannot be opened the error is returned and Following stays
// false, so writers must broadcast themselves. A subscription lost later
// clears Following until it is reopened.
func (h *Hub) Follow(ctx context.Context, store domain.MessageStore) error {
	sub, err := h.subscribe(ctx, store)
	if err != nil {
		return err
	}
	if !h.setSub(nil, sub) {
		_ = sub.Close()
		return errors.New("push hub closed")
	}
	h.followers.Add(1)
	go h.watch(ctx, store, sub)
	return nil
}

func (h *Hub) subscribe(ctx context.Context, store domain.MessageStore) (domain.Subscription, error) {
	return store.SubscribeInserts(ctx, func(m domain.Message) { h.Broadcast(m) })
}

// setSub replaces old with next as the followed subscription.
func (h *Hub) setSub(old, next domain.Subscription) bool {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.stopped || h.sub != old {
		return false
	}
	h.sub = next
	return true
}

func (h *Hub) watch(ctx context.Context, store domain.MessageStore, sub domain.Subscription) {
	defer h.followers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-sub.Done():
		}
		lostErr := sub.Err()
		if lostErr == nil {
			return
		}
		_ = sub.Close()
		if !h.setSub(sub, nil) {
			return
		}
		h.log.Warn("push channel lost the store subscription, writes broadcast directly", zap.Error(lostErr))

		wait := h.retryWait
		for {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-h.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			next, err := h.subscribe(ctx, store)
			if err != nil {
				h.log.Debug("refollow failed", zap.Duration("wait", wait), zap.Error(err))
				wait = min(wait*2, maxRetryWait)
				continue
			}
			if !h.setSub(nil, next) {
				_ = next.Close()
				return
			}
			sub = next
			h.log.Info("push channel following the store again")
			break
		}
	}
}

// Following reports whether the hub is fed by a live store subscription.
func (h *Hub) Following() bool {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	return h.sub != nil
}

// Close stops following the store, disconnects every client and waits for
// their pumps to exit.
func (h *Hub) Close() error {
	h.subMu.Lock()
	sub := h.sub
	h.sub = nil
	if !h.stopped {
		h.stopped = true
		close(h.stop)
	}
	h.subMu.Unlock()
	var err error
	if sub != nil {
		err = sub.Close()
	}
	h.followers.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.wg.Wait()
	return err
}
