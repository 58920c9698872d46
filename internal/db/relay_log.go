package db

import (
	"database/sql"

	"github.com/rsclarke/salonrelay/internal/models"
)

// CreateRelayEntry inserts a relay journal entry and returns its ID.
func CreateRelayEntry(d *sql.DB, e models.RelayEntry) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO relay_log (tenant_id, message_id, sender, outcome, http_status, error, occurred_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.TenantID, e.MessageID, e.Sender, e.Outcome, e.HTTPStatus, e.Error, e.OccurredAt, e.DurationMS,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListRelayEntries returns the newest entries for a tenant, newest first.
func ListRelayEntries(d *sql.DB, tenantID string, limit int) ([]models.RelayEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Query(
		"SELECT id, tenant_id, message_id, sender, outcome, http_status, error, occurred_at, duration_ms FROM relay_log WHERE tenant_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?",
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.RelayEntry
	for rows.Next() {
		var e models.RelayEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.MessageID, &e.Sender, &e.Outcome, &e.HTTPStatus, &e.Error, &e.OccurredAt, &e.DurationMS); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountRelayEntriesByOutcome returns per-outcome totals for a tenant.
func CountRelayEntriesByOutcome(d *sql.DB, tenantID string) (map[string]int, error) {
	rows, err := d.Query(
		"SELECT outcome, COUNT(*) FROM relay_log WHERE tenant_id = ? GROUP BY outcome",
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
