package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/detox/internal/bus"
)

// State is the daemon's view of its external backend.
type State string

const (
	Booting    State = "BOOTING"
	Connecting State = "CONNECTING"
	Ready      State = "READY"
	// Degraded means reads are being served from the fallback data set.
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:    {Connecting, Error},
	Connecting: {Ready, Degraded, Error},
	Ready:      {Degraded, Connecting, Error},
	Degraded:   {Ready, Connecting, Error},
	Error:      {Booting},
}

// Machine tracks and enforces daemon state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, Change{From: from, To: to})
	}
	return nil
}

// Settle moves to Ready or Degraded depending on healthy, passing through
// Connecting when the machine has not connected yet. A no-op when already there.
func (m *Machine) Settle(healthy bool) error {
	target := Degraded
	if healthy {
		target = Ready
	}
	switch m.Current() {
	case target:
		return nil
	case Booting:
		if err := m.Transition(Connecting); err != nil {
			return err
		}
	case Error:
		if err := m.Transition(Booting); err != nil {
			return err
		}
		if err := m.Transition(Connecting); err != nil {
			return err
		}
	}
	return m.Transition(target)
}

// Change is the payload for status.changed events.
type Change struct {
	From State `json:"from"`
	To   State `json:"to"`
}
