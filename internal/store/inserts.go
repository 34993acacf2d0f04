package store

import (
	"context"
	"sync"

	"github.com/matheus3301/detox/internal/domain"
)

// insertFanout hands every stored row to each live insert subscription.
type insertFanout struct {
	mu   sync.Mutex
	subs map[*insertSubscription]struct{}
}

func (f *insertFanout) add(s *insertSubscription) {
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
}

func (f *insertFanout) remove(s *insertSubscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *insertFanout) publish(m domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.enqueue(m)
	}
}

func (f *insertFanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// insertSubscription queues rows without bound so publishing never blocks
// and never drops.
type insertSubscription struct {
	fanout *insertFanout

	mu    sync.Mutex
	queue []domain.Message
	wake  chan struct{}
	once  sync.Once
	stop  chan struct{}
	done  chan struct{}
}

func newInsertSubscription(f *insertFanout) *insertSubscription {
	return &insertSubscription{
		fanout: f,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *insertSubscription) enqueue(m domain.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *insertSubscription) run(ctx context.Context, fn func(domain.Message)) {
	defer close(s.done)
	defer s.fanout.remove(s)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, m := range batch {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			fn(m)
		}
	}
}

// Close stops delivery and waits for the reader to exit. It must not be
// called from inside the subscription callback.
func (s *insertSubscription) Close() error {
	s.once.Do(func() {
		s.fanout.remove(s)
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *insertSubscription) Done() <-chan struct{} { return s.done }

// Err is always nil: a local subscription only ends at its owner's request.
func (s *insertSubscription) Err() error { return nil }
