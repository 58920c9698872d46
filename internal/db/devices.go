package db

import (
	"database/sql"
	"time"

	"github.com/rsclarke/salonrelay/internal/models"
)

// SaveTenantDevice records (or replaces) the device a tenant paired.
func SaveTenantDevice(d *sql.DB, tenantID, jid string) error {
	_, err := d.Exec(
		`INSERT INTO tenant_devices (tenant_id, jid, paired_at) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET jid = excluded.jid, paired_at = excluded.paired_at`,
		tenantID, jid, time.Now().Unix(),
	)
	return err
}

// GetTenantDevice returns the device linked to a tenant, or nil.
func GetTenantDevice(d *sql.DB, tenantID string) (*models.TenantDevice, error) {
	row := d.QueryRow(
		"SELECT tenant_id, jid, paired_at FROM tenant_devices WHERE tenant_id = ?",
		tenantID,
	)
	var td models.TenantDevice
	err := row.Scan(&td.TenantID, &td.JID, &td.PairedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &td, nil
}

// DeleteTenantDevice removes a tenant's device link.
func DeleteTenantDevice(d *sql.DB, tenantID string) error {
	_, err := d.Exec("DELETE FROM tenant_devices WHERE tenant_id = ?", tenantID)
	return err
}
