// Package pairing drives one linked chat account per tenant: the pairing state
// machine, the per-session event loop, and the retrying supervisor.
package pairing

import (
	"context"
	"errors"
	"time"

	"github.com/rsclarke/salonrelay/internal/tenant"
)

// ErrNotReady is returned by Send when the session is not connected.
var ErrNotReady = errors.New("WhatsApp client not ready")

// EventKind identifies what a Client reported.
type EventKind string

// Client event kinds.
const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventAuthFailure  EventKind = "auth_failure"
	EventLoggedOut    EventKind = "logged_out"
	EventMessage      EventKind = "message"
)

// Event is emitted by a Client on its event channel.
type Event struct {
	Kind    EventKind
	QR      string          // EventQR
	Account *Account        // EventReady
	Reason  string          // EventDisconnected, EventAuthFailure, EventLoggedOut
	Message *InboundMessage // EventMessage
}

// Account describes the linked chat account.
type Account struct {
	JID      string `json:"jid"`
	Phone    string `json:"phone"`
	PushName string `json:"push_name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// InboundMessage is a chat message received by a tenant's account.
type InboundMessage struct {
	ID          string
	From        string
	To          string
	Author      string
	Body        string
	ContactName string
	Timestamp   time.Time
	IsGroup     bool
	IsBroadcast bool
}

// Client is the chat account behind a session.
//
// Events must stay open for the Client's lifetime and deliver events in the
// order they happened. Start may be called again after Stop.
type Client interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	Send(ctx context.Context, to, text string) (string, error)
	// Logout discards stored credentials so the next Start issues a new QR.
	Logout(ctx context.Context) error
	Stop()
}

// Sender sends a text message to a chat.
type Sender interface {
	Send(ctx context.Context, to, text string) (string, error)
}

// Relayer forwards inbound messages to the booking backend.
type Relayer interface {
	Relay(ctx context.Context, t tenant.Config, msg InboundMessage, reply Sender)
}

// DropRecorder is optionally implemented by a Relayer to journal messages
// that were dropped because the relay queue was full.
type DropRecorder interface {
	RecordDrop(ctx context.Context, t tenant.Config, msg InboundMessage)
}
