// Package status persists the per-tenant connection record shown to operators.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/rsclarke/salonrelay/internal/tenant"
)

// ConnectionStatus is the durable connection record of one tenant.
type ConnectionStatus struct {
	TenantID         string     `json:"salon_id"`
	TenantName       string     `json:"salon_name"`
	IsConnected      bool       `json:"is_connected"`
	PhoneNumber      *string    `json:"phone_number"`
	ConnectedAt      *time.Time `json:"connected_at"`
	LastSeen         *time.Time `json:"last_seen"`
	ConnectionCount  int        `json:"connection_count"`
	QRGeneratedCount int        `json:"qr_generated_count"`
}

// Zero returns the initial record for a tenant.
func Zero(tenantID string) ConnectionStatus {
	return ConnectionStatus{TenantID: tenantID}
}

// EventKind identifies a status transition.
type EventKind int

// Status transitions.
const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventQRIssued
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventQRIssued:
		return "qr_issued"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an input to Apply. Phone is only read for EventConnected.
type Event struct {
	Kind  EventKind
	Phone string
}

// Connected builds an EventConnected for the given account number.
func Connected(phone string) Event { return Event{Kind: EventConnected, Phone: phone} }

// Disconnected builds an EventDisconnected.
func Disconnected() Event { return Event{Kind: EventDisconnected} }

// QRIssued builds an EventQRIssued.
func QRIssued() Event { return Event{Kind: EventQRIssued} }

// Reset builds an EventReset.
func Reset() Event { return Event{Kind: EventReset} }

// Apply returns the record that results from ev. It does not modify cur.
// A disconnect leaves PhoneNumber and ConnectedAt as the last known values.
func Apply(cur ConnectionStatus, ev Event, now time.Time) ConnectionStatus {
	next := cur
	switch ev.Kind {
	case EventConnected:
		phone := ev.Phone
		ts := now
		next.IsConnected = true
		next.PhoneNumber = &phone
		next.ConnectedAt = &ts
		next.LastSeen = &ts
		next.ConnectionCount++
	case EventDisconnected:
		ts := now
		next.IsConnected = false
		next.LastSeen = &ts
	case EventQRIssued:
		next.QRGeneratedCount++
	case EventReset:
		next.IsConnected = false
		next.PhoneNumber = nil
		next.ConnectedAt = nil
		next.QRGeneratedCount = 0
	}
	return next
}

// Store loads and saves connection records.
type Store interface {
	// Load returns the stored record, or the zero record when none is usable.
	Load(ctx context.Context, tenantID string) ConnectionStatus
	// Save overwrites the stored record.
	Save(ctx context.Context, st ConnectionStatus) error
}

// Update loads the tenant's record, applies ev and saves the result.
// The new record is returned even when saving fails.
func Update(ctx context.Context, store Store, t tenant.Config, ev Event, now time.Time) (ConnectionStatus, error) {
	cur := store.Load(ctx, t.ID)
	next := Apply(cur, ev, now)
	next.TenantID = t.ID
	next.TenantName = t.Name
	if err := store.Save(ctx, next); err != nil {
		return next, fmt.Errorf("save status for %s: %w", t.ID, err)
	}
	return next, nil
}
