package messaging

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/detox/internal/domain"
)

// Filter decides whether a pushed row belongs to a feed.
type Filter func(domain.Message) bool

// PairFilter accepts rows exchanged between a and b in either direction.
func PairFilter(a, b string) Filter {
	return func(m domain.Message) bool { return m.BelongsTo(a, b) }
}

// Feed is the live insert subscription owned by one open conversation.
type Feed struct {
	sub    domain.Subscription
	closed atomic.Bool
	once   sync.Once
	err    error
}

// OpenFeed subscribes to store inserts and calls onInsert for every row that
// passes filter. The subscription lives until Close or until ctx is done.
func OpenFeed(ctx context.Context, store domain.MessageStore, filter Filter, onInsert func(domain.Message)) (*Feed, error) {
	f := &Feed{}
	sub, err := store.SubscribeInserts(ctx, func(m domain.Message) {
		if f.closed.Load() || !filter(m) {
			return
		}
		onInsert(m)
	})
	if err != nil {
		return nil, err
	}
	f.sub = sub
	return f, nil
}

// Close ends the subscription. Once it returns, onInsert is never called
// again. Safe to call more than once and on a nil Feed.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		f.closed.Store(true)
		f.err = f.sub.Close()
	})
	return f.err
}

// Done is closed once the underlying subscription stops delivering.
func (f *Feed) Done() <-chan struct{} { return f.sub.Done() }

// Err reports why the subscription stopped; nil after Close.
func (f *Feed) Err() error { return f.sub.Err() }
