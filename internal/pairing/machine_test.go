package pairing

import (
	"errors"
	"testing"

	"github.com/rsclarke/salonrelay/internal/status"
)

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name       string
		events     []Event
		wantState  State
		wantStatus status.EventKind
		wantChange bool
	}{
		{
			name:       "qr moves to awaiting scan",
			events:     []Event{{Kind: EventQR, QR: "2@abc"}},
			wantState:  StateAwaitingScan,
			wantStatus: status.EventQRIssued,
			wantChange: true,
		},
		{
			name:      "empty qr is ignored",
			events:    []Event{{Kind: EventQR}},
			wantState: StateUnpaired,
		},
		{
			name: "ready after scan connects",
			events: []Event{
				{Kind: EventQR, QR: "2@abc"},
				{Kind: EventReady, Account: &Account{Phone: "15551234567"}},
			},
			wantState:  StateConnected,
			wantStatus: status.EventConnected,
			wantChange: true,
		},
		{
			name: "second ready is not a new connection",
			events: []Event{
				{Kind: EventReady, Account: &Account{Phone: "15551234567"}},
				{Kind: EventReady, Account: &Account{Phone: "15551234567"}},
			},
			wantState: StateConnected,
		},
		{
			name: "disconnect from connected",
			events: []Event{
				{Kind: EventReady, Account: &Account{Phone: "15551234567"}},
				{Kind: EventDisconnected, Reason: "stream closed"},
			},
			wantState:  StateDisconnected,
			wantStatus: status.EventDisconnected,
			wantChange: true,
		},
		{
			name: "auth failure while awaiting scan",
			events: []Event{
				{Kind: EventQR, QR: "2@abc"},
				{Kind: EventAuthFailure, Reason: "qr timeout"},
			},
			wantState:  StateDisconnected,
			wantStatus: status.EventDisconnected,
			wantChange: true,
		},
		{
			name:       "logged out before first qr",
			events:     []Event{{Kind: EventLoggedOut, Reason: "logged out: 401"}},
			wantState:  StateDisconnected,
			wantStatus: status.EventDisconnected,
			wantChange: true,
		},
		{
			name:       "connect failure before first qr",
			events:     []Event{{Kind: EventAuthFailure, Reason: "connect failure"}},
			wantState:  StateDisconnected,
			wantStatus: status.EventDisconnected,
			wantChange: true,
		},
		{
			name:       "network drop before connected",
			events:     []Event{{Kind: EventDisconnected}},
			wantState:  StateDisconnected,
			wantStatus: status.EventDisconnected,
			wantChange: true,
		},
		{
			name: "repeated disconnect is ignored",
			events: []Event{
				{Kind: EventDisconnected},
				{Kind: EventDisconnected},
			},
			wantState: StateDisconnected,
		},
		{
			name:      "message does not change state",
			events:    []Event{{Kind: EventMessage, Message: &InboundMessage{ID: "m1"}}},
			wantState: StateUnpaired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			var (
				got     status.Event
				changed bool
			)
			for _, ev := range tt.events {
				got, changed = m.Apply(ev)
			}
			if changed != tt.wantChange {
				t.Fatalf("changed = %v, want %v", changed, tt.wantChange)
			}
			if changed && got.Kind != tt.wantStatus {
				t.Errorf("status event = %v, want %v", got.Kind, tt.wantStatus)
			}
			if s := m.Snapshot().State; s != tt.wantState {
				t.Errorf("state = %s, want %s", s, tt.wantState)
			}
		})
	}
}

func TestMachineSnapshot(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: EventQR, QR: "2@abc"})

	snap := m.Snapshot()
	if !snap.QRPending() {
		t.Fatal("expected pending qr")
	}
	if snap.Ready() {
		t.Fatal("awaiting scan should not be ready")
	}

	ev, _ := m.Apply(Event{Kind: EventReady, Account: &Account{JID: "15551234567@s.whatsapp.net", Phone: "15551234567"}})
	if ev.Phone != "15551234567" {
		t.Errorf("connected phone = %q", ev.Phone)
	}
	snap = m.Snapshot()
	if snap.QR != "" {
		t.Error("qr should be cleared once connected")
	}
	if snap.Account == nil || snap.Account.Phone != "15551234567" {
		t.Fatalf("account = %+v", snap.Account)
	}

	snap.Account.Phone = "mutated"
	if m.Snapshot().Account.Phone != "15551234567" {
		t.Error("snapshot shares account with machine")
	}
}

func TestMachineReset(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: EventReady, Account: &Account{Phone: "15551234567"}})

	ev := m.Reset()
	if ev.Kind != status.EventReset {
		t.Errorf("event = %v, want reset", ev.Kind)
	}
	snap := m.Snapshot()
	if snap.State != StateUnpaired || snap.Account != nil {
		t.Errorf("snapshot after reset = %+v", snap)
	}
}

func TestMachineRestartingKeepsConnected(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: EventReady, Account: &Account{Phone: "1"}})
	m.Restarting()
	if s := m.Snapshot().State; s != StateConnected {
		t.Errorf("state = %s, want connected", s)
	}

	m.Apply(Event{Kind: EventDisconnected})
	m.Restarting()
	if s := m.Snapshot().State; s != StateUnpaired {
		t.Errorf("state = %s, want unpaired", s)
	}
}

func TestMachineFail(t *testing.T) {
	m := NewMachine()
	m.Fail(errors.New("boom"))
	snap := m.Snapshot()
	if snap.State != StateFailed {
		t.Errorf("state = %s, want failed", snap.State)
	}
	if snap.LastError != "boom" {
		t.Errorf("last error = %q", snap.LastError)
	}

	// A fresh challenge recovers a failed machine.
	m.Apply(Event{Kind: EventQR, QR: "2@new"})
	if s := m.Snapshot().State; s != StateAwaitingScan {
		t.Errorf("state = %s, want awaiting_scan", s)
	}
}

func TestMachineDisconnectClearsAccount(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: EventReady, Account: &Account{Phone: "15551234567"}})
	m.Apply(Event{Kind: EventDisconnected})

	snap := m.Snapshot()
	if snap.Account != nil {
		t.Errorf("account = %+v, want nil after disconnect", snap.Account)
	}
	if snap.LastError != string(EventDisconnected) {
		t.Errorf("last error = %q", snap.LastError)
	}
}
