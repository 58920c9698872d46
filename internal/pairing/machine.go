package pairing

import (
	"sync"
	"time"

	"github.com/rsclarke/salonrelay/internal/status"
)

// State is a pairing state.
type State string

// Pairing states.
const (
	StateUnpaired     State = "unpaired"
	StateAwaitingScan State = "awaiting_scan"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

// Snapshot is a consistent copy of a Machine.
type Snapshot struct {
	State     State     `json:"state"`
	QR        string    `json:"-"`
	Account   *Account  `json:"account,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

// QRPending reports whether a challenge is waiting to be scanned.
func (s Snapshot) QRPending() bool { return s.State == StateAwaitingScan && s.QR != "" }

// Ready reports whether messages can be sent.
func (s Snapshot) Ready() bool { return s.State == StateConnected }

// Machine holds the pairing state of one tenant.
type Machine struct {
	mu      sync.RWMutex
	state   State
	qr      string
	account *Account
	lastErr string
	since   time.Time
	now     func() time.Time
}

// NewMachine returns a machine in StateUnpaired.
func NewMachine() *Machine {
	m := &Machine{state: StateUnpaired, now: time.Now}
	m.since = m.now()
	return m
}

func (m *Machine) setState(s State) {
	if m.state != s {
		m.state = s
		m.since = m.now()
	}
}

// Apply advances the machine for a client event. It returns the status
// transition to persist, if any.
func (m *Machine) Apply(ev Event) (status.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case EventQR:
		if ev.QR == "" {
			return status.Event{}, false
		}
		m.setState(StateAwaitingScan)
		m.qr = ev.QR
		m.lastErr = ""
		return status.QRIssued(), true

	case EventReady:
		wasConnected := m.state == StateConnected
		m.setState(StateConnected)
		m.qr = ""
		m.lastErr = ""
		phone := ""
		if ev.Account != nil {
			acc := *ev.Account
			m.account = &acc
			phone = acc.Phone
		}
		if wasConnected {
			return status.Event{}, false
		}
		return status.Connected(phone), true

	case EventDisconnected, EventAuthFailure, EventLoggedOut:
		if m.state == StateDisconnected {
			return status.Event{}, false
		}
		m.setState(StateDisconnected)
		m.qr = ""
		m.account = nil
		m.lastErr = ev.Reason
		if m.lastErr == "" {
			m.lastErr = string(ev.Kind)
		}
		return status.Disconnected(), true
	}

	return status.Event{}, false
}

// Restarting marks the start of a new client attempt.
func (m *Machine) Restarting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		m.setState(StateUnpaired)
		m.qr = ""
	}
}

// Reset discards the pending challenge and account and returns to StateUnpaired.
func (m *Machine) Reset() status.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setState(StateUnpaired)
	m.qr = ""
	m.account = nil
	m.lastErr = ""
	return status.Reset()
}

// Fail moves the machine to StateFailed.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setState(StateFailed)
	m.qr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		State:     m.state,
		QR:        m.qr,
		LastError: m.lastErr,
		Since:     m.since,
	}
	if m.account != nil {
		acc := *m.account
		snap.Account = &acc
	}
	return snap
}
