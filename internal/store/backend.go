package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/domain"
)

// Local is a self-contained backend: profiles and messages live in SQLite and
// inserts are fanned out to subscribers in process.
type Local struct {
	db      *DB
	bus     *bus.Bus
	userID  string
	log     *zap.Logger
	inserts *insertFanout
}

var _ domain.Backend = (*Local)(nil)

// NewLocal wraps db as a domain.Backend. userID is the identity reported by
// CurrentUserID; empty means no signed-in user.
func NewLocal(db *DB, b *bus.Bus, userID string, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{db: db, bus: b, userID: userID, log: log, inserts: &insertFanout{subs: make(map[*insertSubscription]struct{})}}
}

func (l *Local) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return l.db.ListProfiles(ctx)
}

func (l *Local) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return l.db.GetProfile(ctx, id)
}

func (l *Local) UpdateOnlineStatus(ctx context.Context, userID string, online bool) error {
	return l.db.UpdateOnlineStatus(ctx, userID, online)
}

// CurrentUserID returns the configured identity, if it has a profile.
func (l *Local) CurrentUserID(ctx context.Context) (string, error) {
	if l.userID == "" {
		return "", fmt.Errorf("%w: no user configured", domain.ErrAuthUnavailable)
	}
	if _, err := l.db.GetProfile(ctx, l.userID); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthUnavailable, err)
	}
	return l.userID, nil
}

// InsertMessage stores m and publishes the stored row. Replays of an already
// stored client_id are not published again.
func (l *Local) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	row, inserted, err := l.db.InsertMessage(ctx, m)
	if err != nil {
		return nil, err
	}
	if inserted {
		l.inserts.publish(*row)
		l.bus.Emit(bus.KindMessageInserted, *row)
	}
	return row, nil
}

func (l *Local) QueryConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	return l.db.QueryConversation(ctx, a, b)
}

// SubscribeInserts delivers every row inserted through this backend, in
// insert order and exactly once. A slow callback delays its own queue but
// never loses rows. The subscription ends when Close is called or ctx is done.
func (l *Local) SubscribeInserts(ctx context.Context, fn func(domain.Message)) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}
	s := newInsertSubscription(l.inserts)
	l.inserts.add(s)
	go s.run(ctx, fn)
	return s, nil
}

// Seed fills an empty database with the given profiles and messages.
// It reports whether anything was written.
func (l *Local) Seed(ctx context.Context, profiles []domain.Profile, msgs []domain.Message) (bool, error) {
	n, err := l.db.ProfileCount(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	for _, p := range profiles {
		if err := l.db.UpsertProfile(ctx, p); err != nil {
			return false, err
		}
	}
	for i := range msgs {
		if _, _, err := l.db.InsertMessage(ctx, &msgs[i]); err != nil {
			return false, err
		}
	}
	l.log.Info("seeded local backend", zap.Int("profiles", len(profiles)), zap.Int("messages", len(msgs)))
	return true, nil
}
