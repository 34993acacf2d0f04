// Package messaging is the realtime messaging core: contact list, the open
// conversation window with its live feed, and the optimistic send pipeline.
package messaging

import (
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

// State is where a ChatMessage is in its lifecycle.
type State string

const (
	// StateSending is a provisional entry whose write has not completed.
	StateSending State = "sending"
	// StateFailed is a provisional entry whose write failed. It stays in the
	// window until retried.
	StateFailed State = "failed"
	// StateDurable is a row the message store has acknowledged.
	StateDurable State = "durable"
)

const (
	// PlaceholderName is shown for profiles with neither full name nor username.
	PlaceholderName = "Usuario"

	sendingLabel = "Enviando..."
	failedLabel  = "No enviado"
)

// Contact is the display-ready form of a Profile.
type Contact struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	AvatarURL          string `json:"avatar_url"`
	Online             bool   `json:"online"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

// ChatMessage is a Message as seen by the current user.
// ID is the durable id once resolved and the local id before that.
type ChatMessage struct {
	ID               string    `json:"id"`
	LocalID          string    `json:"local_id,omitempty"`
	SenderID         string    `json:"sender_id"`
	ReceiverID       string    `json:"receiver_id"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	DisplayTimestamp string    `json:"display_timestamp"`
	IsMine           bool      `json:"is_mine"`
	State            State     `json:"state"`

	seq uint64
}

// Provisional reports whether the store has not acknowledged m yet.
func (m ChatMessage) Provisional() bool {
	return m.State != StateDurable
}

// ToContact maps a profile into a Contact.
func ToContact(p domain.Profile) Contact {
	return Contact{
		ID:          p.ID,
		DisplayName: DisplayName(p),
		AvatarURL:   AvatarURL(p),
		Online:      p.Online,
	}
}

// DisplayName falls back from full name to username to PlaceholderName.
func DisplayName(p domain.Profile) string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Username != "":
		return p.Username
	default:
		return PlaceholderName
	}
}

// AvatarURL returns the profile's avatar or a placeholder keyed by id.
func AvatarURL(p domain.Profile) string {
	if p.AvatarURL != "" {
		return p.AvatarURL
	}
	return "https://i.pravatar.cc/150?u=" + p.ID
}

// ToChatMessage maps a durable message relative to the viewer me.
func ToChatMessage(m domain.Message, me string) ChatMessage {
	c := ChatMessage{
		ID:         m.ID,
		LocalID:    m.ClientID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsMine:     m.SenderID == me,
		State:      StateDurable,
	}
	c.DisplayTimestamp = displayTimestamp(c)
	return c
}

func displayTimestamp(c ChatMessage) string {
	switch c.State {
	case StateSending:
		return sendingLabel
	case StateFailed:
		return failedLabel
	default:
		return c.CreatedAt.Local().Format("15:04")
	}
}
