package domain

import "time"

// Profile is a user's directory record. Owned by the external directory; the
// daemon only ever holds a read-only copy.
type Profile struct {
	ID        string     `json:"id"`
	Username  string     `json:"username,omitempty"`
	FullName  string     `json:"full_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// Message is a durable, immutable unit of conversation content.
// ClientID is the sender-generated idempotency key; stores that do not
// round-trip it leave it empty.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ClientID   string    `json:"client_id,omitempty"`
}

// BelongsTo reports whether m was exchanged between a and b, in either direction.
func (m Message) BelongsTo(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// PostType is the kind of content a post carries.
type PostType string

const (
	PostReflection PostType = "reflection"
	PostQuote      PostType = "quote"
	PostGoal       PostType = "goal"
	PostMilestone  PostType = "milestone"
)

// Valid reports whether t is one of the known post types.
func (t PostType) Valid() bool {
	switch t {
	case PostReflection, PostQuote, PostGoal, PostMilestone:
		return true
	}
	return false
}

// Post is a piece of content the user published to their own feed.
type Post struct {
	ID        string    `json:"id"`
	Type      PostType  `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"date"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
}
