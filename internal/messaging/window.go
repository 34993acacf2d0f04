package messaging

import (
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

// Outcome says what a window mutation did.
type Outcome int

const (
	// Ignored means nothing changed, e.g. a duplicate id.
	Ignored Outcome = iota
	// Appended means a new entry was added.
	Appended
	// Resolved means a provisional entry took its durable form.
	Resolved
	// Retired means a provisional entry was dropped because its durable row
	// was already in the window.
	Retired
	// Failed means a provisional entry's write failed.
	Failed
	// Sending means a failed entry is being retried.
	Sending
)

// Window is the ordered message list for one (me, peer) pair. Entries are
// sorted by CreatedAt, ties by arrival. Durable ids are unique. Window is not
// safe for concurrent use.
type Window struct {
	me, peer  string
	tolerance time.Duration
	entries   []ChatMessage
	seq       uint64
}

// NewWindow creates an empty window. tolerance bounds content matching of
// pushed rows against provisional entries.
func NewWindow(me, peer string, tolerance time.Duration) *Window {
	return &Window{me: me, peer: peer, tolerance: tolerance}
}

func (w *Window) Me() string   { return w.me }
func (w *Window) Peer() string { return w.peer }
func (w *Window) Len() int     { return len(w.entries) }

// Messages returns a copy of the entries in display order.
func (w *Window) Messages() []ChatMessage {
	out := make([]ChatMessage, len(w.entries))
	copy(out, w.entries)
	return out
}

// Last returns the newest entry.
func (w *Window) Last() (ChatMessage, bool) {
	if len(w.entries) == 0 {
		return ChatMessage{}, false
	}
	return w.entries[len(w.entries)-1], true
}

// Insert adds a durable row. Rows already present by id are ignored.
func (w *Window) Insert(m domain.Message) (ChatMessage, Outcome) {
	if i := w.indexOfID(m.ID); i >= 0 {
		return w.entries[i], Ignored
	}
	c := ToChatMessage(m, w.me)
	w.place(c)
	return w.entries[w.indexOfID(c.ID)], Appended
}

// AddProvisional appends a pending entry created by the current user.
func (w *Window) AddProvisional(localID, content string, now time.Time) ChatMessage {
	c := ChatMessage{
		ID:         localID,
		LocalID:    localID,
		SenderID:   w.me,
		ReceiverID: w.peer,
		Content:    content,
		CreatedAt:  now,
		IsMine:     true,
		State:      StateSending,
	}
	c.DisplayTimestamp = displayTimestamp(c)
	w.place(c)
	return c
}

// Entry returns the entry with the given local id.
func (w *Window) Entry(localID string) (ChatMessage, bool) {
	if i := w.indexOfLocal(localID); i >= 0 {
		return w.entries[i], true
	}
	return ChatMessage{}, false
}

// Fail marks a provisional entry failed.
func (w *Window) Fail(localID string) (ChatMessage, Outcome) {
	return w.setState(localID, StateFailed, Failed)
}

// Retrying moves a failed entry back to sending.
func (w *Window) Retrying(localID string) (ChatMessage, Outcome) {
	i := w.indexOfLocal(localID)
	if i < 0 || w.entries[i].State != StateFailed {
		return ChatMessage{}, Ignored
	}
	return w.setState(localID, StateSending, Sending)
}

func (w *Window) setState(localID string, s State, o Outcome) (ChatMessage, Outcome) {
	i := w.indexOfLocal(localID)
	if i < 0 || !w.entries[i].Provisional() {
		return ChatMessage{}, Ignored
	}
	w.entries[i].State = s
	w.entries[i].DisplayTimestamp = displayTimestamp(w.entries[i])
	return w.entries[i], o
}

// Resolve applies the store's acknowledgement of the write issued for localID.
func (w *Window) Resolve(localID string, m domain.Message) (ChatMessage, Outcome) {
	i := w.indexOfLocal(localID)
	if i < 0 {
		return w.Insert(m)
	}
	if !w.entries[i].Provisional() {
		if w.entries[i].ID == m.ID || w.indexOfID(m.ID) >= 0 {
			return w.entries[i], Ignored
		}
		return w.Insert(m)
	}
	if w.indexOfID(m.ID) >= 0 {
		retired := w.entries[i]
		w.entries = append(w.entries[:i], w.entries[i+1:]...)
		return retired, Retired
	}
	return w.resolveAt(i, localID, m), Resolved
}

// Reconcile applies a pushed row. It resolves the matching provisional entry
// if there is one and appends the row otherwise. A provisional entry matches
// on client id, or when the row carries none, on sender, receiver and content
// with created_at within tolerance; the oldest candidate wins.
func (w *Window) Reconcile(m domain.Message) (ChatMessage, Outcome) {
	if i := w.indexOfID(m.ID); i >= 0 {
		return w.entries[i], Ignored
	}
	if m.ClientID != "" {
		if i := w.indexOfLocal(m.ClientID); i >= 0 {
			if !w.entries[i].Provisional() {
				return w.entries[i], Ignored
			}
			return w.resolveAt(i, m.ClientID, m), Resolved
		}
		return w.Insert(m)
	}
	if m.SenderID == w.me {
		for i, e := range w.entries {
			if e.Provisional() && e.Content == m.Content && e.ReceiverID == m.ReceiverID && w.within(e.CreatedAt, m.CreatedAt) {
				return w.resolveAt(i, e.LocalID, m), Resolved
			}
		}
	}
	return w.Insert(m)
}

func (w *Window) within(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= w.tolerance
}

func (w *Window) resolveAt(i int, localID string, m domain.Message) ChatMessage {
	seq := w.entries[i].seq
	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	c := ToChatMessage(m, w.me)
	c.LocalID = localID
	c.seq = seq
	w.insertSorted(c)
	return c
}

// place stamps c with the next arrival sequence and inserts it in order.
func (w *Window) place(c ChatMessage) {
	w.seq++
	c.seq = w.seq
	w.insertSorted(c)
}

func (w *Window) insertSorted(c ChatMessage) {
	i := len(w.entries)
	for i > 0 && less(c, w.entries[i-1]) {
		i--
	}
	w.entries = append(w.entries, ChatMessage{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = c
}

func less(a, b ChatMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func (w *Window) indexOfID(id string) int {
	for i, e := range w.entries {
		if e.State == StateDurable && e.ID == id {
			return i
		}
	}
	return -1
}

func (w *Window) indexOfLocal(localID string) int {
	if localID == "" {
		return -1
	}
	for i, e := range w.entries {
		if e.LocalID == localID {
			return i
		}
	}
	return -1
}
