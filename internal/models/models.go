// Package models defines the database entity types.
package models

// TenantDevice links a tenant to the WhatsApp device it paired.
type TenantDevice struct {
	TenantID string
	JID      string
	PairedAt int64
}

// RelayEntry is one journaled relay attempt.
type RelayEntry struct {
	ID         int64
	TenantID   string
	MessageID  string
	Sender     string
	Outcome    string
	HTTPStatus int
	Error      *string
	OccurredAt int64
	DurationMS int64
}
