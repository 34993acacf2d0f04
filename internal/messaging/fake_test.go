package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matheus3301/detox/internal/domain"
)

// fakeBackend is an in-memory domain.Backend with failure switches.
type fakeBackend struct {
	mu sync.Mutex

	userID   string
	authErr  error
	profiles []domain.Profile
	listErr  error
	queryErr error
	subErr   error
	insertFn func(m *domain.Message) (*domain.Message, error)

	messages    []domain.Message
	inserts     int
	listCalls   int
	subs        map[*fakeSub]struct{}
	clock       time.Time
	echoClients bool
}

func newFakeBackend(me string) *fakeBackend {
	return &fakeBackend{
		userID: me,
		subs:   make(map[*fakeSub]struct{}),
		clock:  time.Now().Truncate(time.Second),
	}
}

func (f *fakeBackend) CurrentUserID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.userID, nil
}

func (f *fakeBackend) ListProfiles(context.Context) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Profile(nil), f.profiles...), nil
}

func (f *fakeBackend) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile %q: %w", id, domain.ErrNotFound)
}

func (f *fakeBackend) UpdateOnlineStatus(context.Context, string, bool) error { return nil }

// store assigns id and timestamp the way the hosted store does.
func (f *fakeBackend) store(m *domain.Message) *domain.Message {
	f.mu.Lock()
	f.clock = f.clock.Add(time.Second)
	row := domain.Message{
		ID:         uuid.NewString(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  f.clock,
	}
	if f.echoClients {
		row.ClientID = m.ClientID
	}
	f.messages = append(f.messages, row)
	f.mu.Unlock()
	return &row
}

func (f *fakeBackend) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	f.inserts++
	fn := f.insertFn
	f.mu.Unlock()
	if fn != nil {
		return fn(m)
	}
	return f.store(m), nil
}

func (f *fakeBackend) QueryConversation(_ context.Context, a, b string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []domain.Message
	for _, m := range f.messages {
		if m.BelongsTo(a, b) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeBackend) SubscribeInserts(_ context.Context, fn func(domain.Message)) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := &fakeSub{backend: f, fn: fn, done: make(chan struct{})}
	f.subs[s] = struct{}{}
	return s, nil
}

// push delivers m to every live subscription on the calling goroutine.
func (f *fakeBackend) push(m domain.Message) {
	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.deliver(m)
	}
}

func (f *fakeBackend) liveSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeBackend) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

// dropSubs ends every live subscription as if the connection was lost.
func (f *fakeBackend) dropSubs(err error) {
	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
		delete(f.subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.end(err)
	}
}

func (f *fakeBackend) setSubErr(err error) {
	f.mu.Lock()
	f.subErr = err
	f.mu.Unlock()
}

type fakeSub struct {
	backend *fakeBackend
	mu      sync.Mutex
	closed  bool
	err     error
	fn      func(domain.Message)
	done    chan struct{}
}

func (s *fakeSub) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) deliver(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.fn(m)
	}
}

func (s *fakeSub) Close() error {
	s.end(nil)
	s.backend.mu.Lock()
	delete(s.backend.subs, s)
	s.backend.mu.Unlock()
	return nil
}
