package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestRollbackAndReapply(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "a"}))

	down, err := db.Rollback()
	require.NoError(t, err)
	assert.True(t, down.Changed)
	assert.Zero(t, down.Version)
	_, err = db.ProfileCount(ctx)
	assert.Error(t, err, "profiles table is gone")
	_, err = db.ListPosts(ctx)
	assert.Error(t, err, "posts table is gone")

	up, err := db.Migrate()
	require.NoError(t, err)
	assert.EqualValues(t, 2, up.Version)
	n, err := db.ProfileCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "test.db", filepath.Base(db.Path()))
}

func TestProfileUpsertAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "b", Username: "zeta"}))
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "a", Username: "alpha", FullName: "Alpha"}))
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "a", Username: "alpha", FullName: "Alpha Updated"}))

	profiles, err := db.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].ID)
	assert.Equal(t, "Alpha Updated", profiles[0].FullName)
	assert.Nil(t, profiles[0].LastSeen)
}

func TestGetProfileMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.GetProfile(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateOnlineStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "a"}))

	require.NoError(t, db.UpdateOnlineStatus(ctx, "a", true))
	p, err := db.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.True(t, p.Online)
	require.NotNil(t, p.LastSeen)
	assert.WithinDuration(t, time.Now(), *p.LastSeen, 5*time.Second)

	err = db.UpdateOnlineStatus(ctx, "nobody", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryConversationBothDirections(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, m := range []domain.Message{
		{SenderID: "a", ReceiverID: "b", Content: "1", CreatedAt: base.Add(2 * time.Second)},
		{SenderID: "b", ReceiverID: "a", Content: "0", CreatedAt: base},
		{SenderID: "a", ReceiverID: "c", Content: "other", CreatedAt: base.Add(time.Second)},
		{SenderID: "b", ReceiverID: "a", Content: "2", CreatedAt: base.Add(3 * time.Second)},
	} {
		if _, _, err := db.InsertMessage(ctx, &m); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	msgs, err := db.QueryConversation(ctx, "a", "b")
	require.NoError(t, err)
	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"0", "1", "2"}, got)
}

func TestInsertMessageAssignsIDAndDedupesClientID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, inserted, err := db.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: "hi", ClientID: "c1"})
	require.NoError(t, err)
	require.True(t, inserted)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	again, inserted, err := db.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: "hi", ClientID: "c1"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)

	n, err := db.MessageCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLocalCurrentUserID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := NewLocal(db, bus.New(), "", nil).CurrentUserID(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthUnavailable)

	_, err = NewLocal(db, bus.New(), "u1", nil).CurrentUserID(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthUnavailable)

	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{ID: "u1"}))
	id, err := NewLocal(db, bus.New(), "u1", nil).CurrentUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestLocalSubscribeInserts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLocal(db, bus.New(), "a", nil)

	got := make(chan domain.Message, 4)
	sub, err := l.SubscribeInserts(ctx, func(m domain.Message) { got <- m })
	require.NoError(t, err)

	stored, err := l.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: "hello", ClientID: "k"})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, stored.ID, m.ID)
		assert.Equal(t, "k", m.ClientID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for insert")
	}

	// Replayed client id is not re-published.
	_, err = l.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: "hello", ClientID: "k"})
	require.NoError(t, err)
	select {
	case m := <-got:
		t.Fatalf("unexpected duplicate delivery %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestLocalSubscriptionNoCallbackAfterClose(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLocal(db, bus.New(), "a", nil)

	var (
		mu     sync.Mutex
		closed bool
		late   bool
	)
	sub, err := l.SubscribeInserts(ctx, func(domain.Message) {
		mu.Lock()
		if closed {
			late = true
		}
		mu.Unlock()
	})
	require.NoError(t, err)

	insert := func(content string) {
		_, err := l.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: content})
		require.NoError(t, err)
	}
	for i := 0; i < 20; i++ {
		insert(fmt.Sprintf("before %d", i))
	}
	require.NoError(t, sub.Close())
	mu.Lock()
	closed = true
	mu.Unlock()
	for i := 0; i < 20; i++ {
		insert(fmt.Sprintf("after %d", i))
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, late, "callback ran after Close returned")
	assert.Zero(t, l.inserts.count())
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done still open after Close")
	}
	assert.NoError(t, sub.Err())
}

func TestLocalSlowSubscriberGetsEveryInsertOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLocal(db, bus.New(), "a", nil)

	const n = 600
	release := make(chan struct{})
	got := make(chan domain.Message, n)
	sub, err := l.SubscribeInserts(ctx, func(m domain.Message) {
		<-release
		got <- m
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, sub.Close()) }()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		row, err := l.InsertMessage(ctx, &domain.Message{SenderID: "a", ReceiverID: "b", Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		ids = append(ids, row.ID)
	}
	close(release)

	for i := 0; i < n; i++ {
		select {
		case m := <-got:
			assert.Equal(t, ids[i], m.ID, "delivery %d out of order", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d inserts delivered", i, n)
		}
	}
	select {
	case m := <-got:
		t.Fatalf("unexpected extra delivery %+v", m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLocalSeedOnlyWhenEmpty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	l := NewLocal(db, bus.New(), "", nil)

	profiles := []domain.Profile{{ID: "1", Username: "one"}, {ID: "2", Username: "two"}}
	msgs := []domain.Message{{ID: "m1", SenderID: "1", ReceiverID: "2", Content: "hola", CreatedAt: time.UnixMilli(1000)}}

	seeded, err := l.Seed(ctx, profiles, msgs)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = l.Seed(ctx, profiles, msgs)
	require.NoError(t, err)
	assert.False(t, seeded)

	got, err := l.QueryConversation(ctx, "2", "1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestPostLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	posts, err := db.ListPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.NotNil(t, posts, "empty list encodes as []")

	older, err := db.AddPost(ctx, domain.Post{Type: domain.PostGoal, Title: "Meta", Content: "Leer más", CreatedAt: time.UnixMilli(1000)})
	require.NoError(t, err)
	assert.NotEmpty(t, older.ID)
	newer, err := db.AddPost(ctx, domain.Post{ID: "p2", Type: domain.PostQuote, Content: "Cita", Image: "img.png", CreatedAt: time.UnixMilli(2000)})
	require.NoError(t, err)
	assert.Equal(t, "p2", newer.ID)

	posts, err = db.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []string{"p2", older.ID}, []string{posts[0].ID, posts[1].ID})
	assert.Equal(t, "img.png", posts[0].Image)
	assert.Equal(t, int64(1000), posts[1].CreatedAt.UnixMilli())

	liked, err := db.LikePost(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, liked.Likes)
	liked, err = db.LikePost(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, liked.Likes)

	updated, err := db.UpdatePost(ctx, domain.Post{ID: "p2", Type: domain.PostMilestone, Title: "Logro", Content: "30 días"})
	require.NoError(t, err)
	assert.Equal(t, domain.PostMilestone, updated.Type)
	assert.Equal(t, "30 días", updated.Content)
	assert.Empty(t, updated.Image)
	assert.Equal(t, 2, updated.Likes, "update keeps counters")
	assert.Equal(t, int64(2000), updated.CreatedAt.UnixMilli(), "update keeps the date")

	require.NoError(t, db.DeletePost(ctx, older.ID))
	posts, err = db.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestPostMissingIsNotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.LikePost(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = db.UpdatePost(ctx, domain.Post{ID: "nope", Type: domain.PostGoal, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, db.DeletePost(ctx, "nope"), domain.ErrNotFound)
	_, err = db.GetPost(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostTypeIsChecked(t *testing.T) {
	db := testDB(t)
	_, err := db.AddPost(context.Background(), domain.Post{Type: "rant", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrPostStoreUnavailable)
}
