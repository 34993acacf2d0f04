package messaging

import (
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

// DevUserID is the identity used when the auth provider cannot be reached.
const DevUserID = "00000000-0000-0000-0000-000000000001"

// fallbackEpoch anchors the fixed timestamps of the fallback tables.
var fallbackEpoch = time.Date(2025, time.April, 5, 12, 0, 0, 0, time.UTC)

// FallbackUsers returns the built-in profiles shown when the directory is
// unreachable or empty. The slice is a fresh copy.
func FallbackUsers() []domain.Profile {
	now := fallbackEpoch
	hourAgo := fallbackEpoch.Add(-time.Hour)
	return []domain.Profile{
		{
			ID:        DevUserID,
			Username:  "maria_garcia",
			FullName:  "María García",
			AvatarURL: "https://i.pravatar.cc/150?img=1",
			Online:    true,
			LastSeen:  &now,
		},
		{
			ID:        "00000000-0000-0000-0000-000000000002",
			Username:  "alex_rodriguez",
			FullName:  "Alex Rodríguez",
			AvatarURL: "https://i.pravatar.cc/150?img=2",
			Online:    false,
			LastSeen:  &hourAgo,
		},
		{
			ID:        "00000000-0000-0000-0000-000000000003",
			Username:  "laura_martinez",
			FullName:  "Laura Martínez",
			AvatarURL: "https://i.pravatar.cc/150?img=3",
			Online:    true,
			LastSeen:  &now,
		},
	}
}

// FallbackMessages returns the built-in message table, oldest first.
func FallbackMessages() []domain.Message {
	const (
		maria = DevUserID
		alex  = "00000000-0000-0000-0000-000000000002"
	)
	at := func(secondsAgo int) time.Time {
		return fallbackEpoch.Add(-time.Duration(secondsAgo) * time.Second)
	}
	return []domain.Message{
		{ID: "00000000-0000-0000-0000-000000000001", SenderID: maria, ReceiverID: alex, CreatedAt: at(3600),
			Content: "¡Hola! ¿Cómo va tu desintoxicación digital?"},
		{ID: "00000000-0000-0000-0000-000000000002", SenderID: alex, ReceiverID: maria, CreatedAt: at(3500),
			Content: "¡Va genial! Ya he reducido mi tiempo en redes sociales un 30%."},
		{ID: "00000000-0000-0000-0000-000000000003", SenderID: maria, ReceiverID: alex, CreatedAt: at(3400),
			Content: "¡Felicidades! ¿Qué técnica te ha funcionado mejor?"},
		{ID: "00000000-0000-0000-0000-000000000004", SenderID: alex, ReceiverID: maria, CreatedAt: at(3300),
			Content: "Usar temporizadores y la función de bienestar digital del teléfono. ¡Es increíble lo consciente que te hace de tu uso!"},
	}
}

// FallbackHistory returns the fallback messages exchanged between a and b, or
// the whole table when none match.
func FallbackHistory(a, b string) []domain.Message {
	all := FallbackMessages()
	var pair []domain.Message
	for _, m := range all {
		if m.BelongsTo(a, b) {
			pair = append(pair, m)
		}
	}
	if len(pair) == 0 {
		return all
	}
	return pair
}

// FallbackContacts maps the fallback users the same way a live load would.
func FallbackContacts() []Contact {
	users := FallbackUsers()
	out := make([]Contact, 0, len(users))
	for _, p := range users {
		out = append(out, ToContact(p))
	}
	return out
}

// FallbackProfile returns the fallback profile with the given id.
func FallbackProfile(id string) (domain.Profile, bool) {
	for _, p := range FallbackUsers() {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Profile{}, false
}
