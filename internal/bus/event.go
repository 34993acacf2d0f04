package bus

import "time"

// Event kinds published by the daemon. Subscribers match on prefixes such as
// "window." or "notice.".
const (
	KindMessageInserted = "store.message_inserted"

	KindWindowOpened   = "window.opened"
	KindWindowCleared  = "window.cleared"
	KindWindowAppended = "window.appended"
	KindWindowResolved = "window.resolved"
	KindWindowFailed   = "window.failed"
	KindWindowRetired  = "window.retired"
	KindWindowRetrying = "window.retrying"
	KindWindowLive     = "window.live"

	KindContactsLoaded = "contacts.loaded"

	KindNoticeError = "notice.error"

	KindStatusChanged = "status.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Notice is the payload of notice.* events: a transient, dismissible message
// for whoever is watching the session.
type Notice struct {
	Kind    string `json:"kind"` // error kind, e.g. "directory unavailable"
	Message string `json:"message"`
}
