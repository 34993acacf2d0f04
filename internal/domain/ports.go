package domain

import "context"

// Directory is the external profile directory, consumed read-only apart from
// the caller's own presence flag.
type Directory interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpdateOnlineStatus(ctx context.Context, userID string, online bool) error
}

// MessageStore is the external append-only message store.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *Message) (*Message, error)
	// QueryConversation returns every message exchanged between a and b,
	// ascending by creation time.
	QueryConversation(ctx context.Context, a, b string) ([]Message, error)
	// SubscribeInserts delivers every newly inserted row system-wide.
	// Filtering to a pair is the caller's job.
	SubscribeInserts(ctx context.Context, fn func(Message)) (Subscription, error)
}

// Subscription is a live insert subscription. After Close returns, the
// callback passed to SubscribeInserts is never invoked again.
type Subscription interface {
	Close() error
	// Done is closed once delivery has stopped, whether through Close, the
	// subscribe context or a lost connection.
	Done() <-chan struct{}
	// Err reports why delivery stopped once Done is closed. It is nil when the
	// owner ended the subscription and wraps ErrSubscription otherwise.
	Err() error
}

// Authenticator resolves the identity behind the configured session.
type Authenticator interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// PostStore persists the user's posts. Missing ids are reported with
// ErrNotFound.
type PostStore interface {
	// ListPosts returns every post, newest first.
	ListPosts(ctx context.Context) ([]Post, error)
	AddPost(ctx context.Context, p Post) (*Post, error)
	// UpdatePost replaces the editable fields of the post with p.ID.
	UpdatePost(ctx context.Context, p Post) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	// LikePost adds one like and returns the updated post.
	LikePost(ctx context.Context, id string) (*Post, error)
}

// Backend bundles the ports a storage backend provides.
type Backend interface {
	Directory
	MessageStore
	Authenticator
}
