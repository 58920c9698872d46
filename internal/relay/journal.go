package relay

import (
	"context"
	"database/sql"

	"github.com/rsclarke/salonrelay/internal/db"
	"github.com/rsclarke/salonrelay/internal/models"
)

// SQLiteJournal implements Journal on the relay_log table.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal backed by the given database.
func NewSQLiteJournal(database *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: database}
}

// Record appends an entry.
func (j *SQLiteJournal) Record(_ context.Context, e models.RelayEntry) error {
	_, err := db.CreateRelayEntry(j.db, e)
	return err
}

// Recent returns the newest entries for a tenant.
func (j *SQLiteJournal) Recent(_ context.Context, tenantID string, limit int) ([]models.RelayEntry, error) {
	return db.ListRelayEntries(j.db, tenantID, limit)
}

// Counts returns per-outcome totals for a tenant.
func (j *SQLiteJournal) Counts(_ context.Context, tenantID string) (map[string]int, error) {
	return db.CountRelayEntriesByOutcome(j.db, tenantID)
}
