package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/domain"
)

// Options tunes a Session.
type Options struct {
	Policy Policy
	// MatchTolerance bounds how far a pushed row's created_at may be from a
	// provisional entry's for a content match. Zero means two minutes.
	MatchTolerance time.Duration
	// Contacts, when set, receives message previews for the open peer.
	Contacts *ContactLoader
	// Now overrides the clock used for provisional entries.
	Now func() time.Time
}

// Session owns the single open conversation: its window, its feed and the
// sends issued into it. At most one conversation is open at a time.
type Session struct {
	store     domain.MessageStore
	identity  *IdentityResolver
	contacts  *ContactLoader
	bus       *bus.Bus
	policy    Policy
	tolerance time.Duration
	now       func() time.Time
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// openMu serializes Open and Close. It is never taken by feed callbacks.
	openMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	window     *Window
	feed       *Feed
	degraded   bool
	convCancel context.CancelFunc

	// watchers tracks the feed watcher of the open conversation.
	watchers sync.WaitGroup
}

// Snapshot is a point-in-time copy of the open conversation.
type Snapshot struct {
	Me       string        `json:"me"`
	Peer     string        `json:"peer"`
	Messages []ChatMessage `json:"messages"`
	// Degraded means the history came from the fallback set.
	Degraded bool `json:"degraded"`
	// Live means new rows are being pushed into the window.
	Live bool `json:"live"`
}

// WindowEvent is the payload of window.* events other than window.opened
// and window.cleared.
type WindowEvent struct {
	Peer    string      `json:"peer"`
	Message ChatMessage `json:"message"`
}

// LiveEvent is the payload of window.live: the open conversation lost or
// regained its live feed.
type LiveEvent struct {
	Peer string `json:"peer"`
	Live bool   `json:"live"`
}

const maxResubscribeWait = 30 * time.Second

// NewSession creates a session with no open conversation.
func NewSession(store domain.MessageStore, identity *IdentityResolver, b *bus.Bus, log *zap.Logger, opts Options) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MatchTolerance <= 0 {
		opts.MatchTolerance = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:     store,
		identity:  identity,
		contacts:  opts.Contacts,
		bus:       b,
		policy:    opts.Policy,
		tolerance: opts.MatchTolerance,
		now:       opts.Now,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Open clears the current conversation, loads the history with peerID and
// starts its live feed. A failed history load is reported as a notice and
// the fallback history is shown instead; a failed subscribe leaves the
// window without live updates. Only validation errors are returned.
func (s *Session) Open(ctx context.Context, peerID string) (Snapshot, error) {
	if peerID == "" {
		return Snapshot{}, fmt.Errorf("%w: no peer selected", domain.ErrValidation)
	}
	if err := s.ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("session closed: %w", err)
	}

	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.detach()

	me := s.identity.Current(ctx)
	history, err := Read(ctx, s.policy, func(ctx context.Context) ([]domain.Message, error) {
		return s.store.QueryConversation(ctx, me, peerID)
	})
	degraded := false
	switch {
	case err != nil:
		s.log.Warn("history unavailable, using fallback", zap.String("peer", peerID), zap.Error(err))
		s.notify(err, "No se pudieron cargar los mensajes")
		history = FallbackHistory(me, peerID)
		degraded = true
	case len(history) == 0:
		history = FallbackHistory(me, peerID)
		degraded = true
	}

	w := NewWindow(me, peerID, s.tolerance)
	for _, m := range history {
		w.Insert(m)
	}

	convCtx, convCancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.window = w
	s.degraded = degraded
	s.convCancel = convCancel
	s.mu.Unlock()
	s.updatePreview(w)

	feed, err := s.subscribe(convCtx, gen, me, peerID)
	if err != nil {
		s.log.Warn("live updates unavailable", zap.String("peer", peerID), zap.Error(err))
		s.notify(fmt.Errorf("%w: %w", domain.ErrSubscription, err), "Sin actualizaciones en tiempo real")
	} else {
		s.mu.Lock()
		s.feed = feed
		s.mu.Unlock()
		s.watchers.Add(1)
		go s.watchFeed(convCtx, gen, me, peerID, feed)
	}

	snap, _ := s.Snapshot()
	s.bus.Emit(bus.KindWindowOpened, snap)
	s.log.Info("conversation opened",
		zap.String("peer", peerID),
		zap.Int("messages", len(snap.Messages)),
		zap.Bool("degraded", degraded),
		zap.Bool("live", snap.Live))
	return snap, nil
}

// Close tears down the open conversation, if any.
func (s *Session) Close() {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	s.detach()
}

// Shutdown closes the open conversation and stops accepting new ones.
func (s *Session) Shutdown() {
	s.Close()
	s.cancel()
}

// detach closes the feed before dropping the window. Callers hold openMu.
func (s *Session) detach() {
	s.mu.Lock()
	feed := s.feed
	w := s.window
	cancel := s.convCancel
	s.feed = nil
	s.window = nil
	s.degraded = false
	s.convCancel = nil
	s.gen++
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := feed.Close(); err != nil {
		s.log.Warn("close feed", zap.Error(err))
	}
	s.watchers.Wait()
	if w != nil {
		s.bus.Emit(bus.KindWindowCleared, w.Peer())
	}
}

// Snapshot returns a copy of the open conversation.
func (s *Session) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Me:       s.window.Me(),
		Peer:     s.window.Peer(),
		Messages: s.window.Messages(),
		Degraded: s.degraded,
		Live:     s.feed != nil,
	}, true
}

// CurrentPeer returns the open peer id, or "".
func (s *Session) CurrentPeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil {
		return ""
	}
	return s.window.Peer()
}

func (s *Session) subscribe(ctx context.Context, gen uint64, me, peer string) (*Feed, error) {
	return OpenFeed(ctx, s.store, PairFilter(me, peer), func(m domain.Message) {
		s.onPush(gen, m)
	})
}

// watchFeed waits for the feed of conversation gen to stop. A lost feed
// leaves the window history-only and raises a notice; the watcher then
// resubscribes with doubling backoff and replays the history to pick up
// rows missed in between.
func (s *Session) watchFeed(ctx context.Context, gen uint64, me, peer string, feed *Feed) {
	defer s.watchers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Done():
		}
		lostErr := feed.Err()
		if lostErr == nil {
			return
		}
		_ = feed.Close()
		if !s.swapFeed(gen, feed, nil) {
			return
		}
		s.log.Warn("live updates lost", zap.String("peer", peer), zap.Error(lostErr))
		s.notify(lostErr, "Se perdió la conexión en tiempo real")
		s.bus.Emit(bus.KindWindowLive, LiveEvent{Peer: peer, Live: false})

		next := s.resubscribe(ctx, gen, me, peer)
		if next == nil {
			return
		}
		feed = next
		s.log.Info("live updates restored", zap.String("peer", peer))
		s.bus.Emit(bus.KindWindowLive, LiveEvent{Peer: peer, Live: true})
		s.catchUp(ctx, gen, me, peer)
	}
}

func (s *Session) resubscribe(ctx context.Context, gen uint64, me, peer string) *Feed {
	wait := s.policy.Backoff
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		feed, err := s.subscribe(ctx, gen, me, peer)
		if err != nil {
			s.log.Debug("resubscribe failed", zap.String("peer", peer), zap.Duration("wait", wait), zap.Error(err))
			wait = min(wait*2, maxResubscribeWait)
			continue
		}
		if !s.swapFeed(gen, nil, feed) {
			_ = feed.Close()
			return nil
		}
		return feed
	}
}

// swapFeed replaces old with next as the feed of conversation gen. It fails
// when the conversation has moved on or the feed was already replaced.
func (s *Session) swapFeed(gen uint64, old, next *Feed) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.window == nil || s.feed != old {
		return false
	}
	s.feed = next
	return true
}

// catchUp reconciles the stored history into the window. Rows already shown
// are ignored by Reconcile.
func (s *Session) catchUp(ctx context.Context, gen uint64, me, peer string) {
	history, err := Read(ctx, s.policy, func(ctx context.Context) ([]domain.Message, error) {
		return s.store.QueryConversation(ctx, me, peer)
	})
	if err != nil {
		s.log.Warn("catch-up after resubscribe failed", zap.String("peer", peer), zap.Error(err))
		return
	}
	for _, m := range history {
		s.onPush(gen, m)
	}
}

func (s *Session) onPush(gen uint64, m domain.Message) {
	s.mu.Lock()
	if gen != s.gen || s.window == nil {
		s.mu.Unlock()
		return
	}
	w := s.window
	c, outcome := w.Reconcile(m)
	s.mu.Unlock()

	s.publish(w.Peer(), c, outcome)
	if outcome != Ignored {
		s.updatePreview(w)
	}
}

func (s *Session) publish(peer string, c ChatMessage, o Outcome) {
	var kind string
	switch o {
	case Appended:
		kind = bus.KindWindowAppended
	case Resolved:
		kind = bus.KindWindowResolved
	case Retired:
		kind = bus.KindWindowRetired
	case Failed:
		kind = bus.KindWindowFailed
	case Sending:
		kind = bus.KindWindowRetrying
	default:
		return
	}
	s.bus.Emit(kind, WindowEvent{Peer: peer, Message: c})
}

func (s *Session) updatePreview(w *Window) {
	if s.contacts == nil {
		return
	}
	s.mu.Lock()
	last, ok := w.Last()
	s.mu.Unlock()
	if ok {
		s.contacts.SetPreview(w.Peer(), last.Content)
	}
}

func (s *Session) notify(err error, message string) {
	kind := "error"
	if k := domain.Kind(err); k != nil {
		kind = k.Error()
	}
	s.bus.Notify(kind, message)
}
