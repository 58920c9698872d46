package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
)

// FileStore keeps one JSON file per tenant in a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Path returns the file used for a tenant.
func (s *FileStore) Path(tenantID string) string {
	return filepath.Join(s.dir, "connection-status-"+tenantID+".json")
}

// Load reads the tenant's file. Missing or corrupt files yield the zero record.
func (s *FileStore) Load(_ context.Context, tenantID string) ConnectionStatus {
	data, err := os.ReadFile(s.Path(tenantID))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read connection status", logging.Tenant(tenantID), zap.Error(err))
		}
		return Zero(tenantID)
	}

	var st ConnectionStatus
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("ignoring corrupt connection status file",
			logging.Tenant(tenantID),
			zap.String("file", s.Path(tenantID)),
			zap.Error(err))
		return Zero(tenantID)
	}
	st.TenantID = tenantID
	return st
}

// Save writes the record to a temp file and renames it into place.
func (s *FileStore) Save(_ context.Context, st ConnectionStatus) error {
	if st.TenantID == "" {
		return errors.New("tenant id is required")
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".connection-status-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close status file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(st.TenantID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}
