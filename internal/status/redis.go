package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
)

// RedisStore keeps connection records as JSON strings in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore wraps an existing client. Keys are "<prefix><tenantID>".
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "salonrelay:status:"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

// Key returns the Redis key used for a tenant.
func (s *RedisStore) Key(tenantID string) string {
	return s.prefix + tenantID
}

// Load reads the tenant's record; errors and bad payloads yield the zero record.
func (s *RedisStore) Load(ctx context.Context, tenantID string) ConnectionStatus {
	data, err := s.client.Get(ctx, s.Key(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("failed to read connection status", logging.Tenant(tenantID), zap.Error(err))
		}
		return Zero(tenantID)
	}

	var st ConnectionStatus
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("ignoring corrupt connection status", logging.Tenant(tenantID), zap.Error(err))
		return Zero(tenantID)
	}
	st.TenantID = tenantID
	return st
}

// Save overwrites the tenant's record.
func (s *RedisStore) Save(ctx context.Context, st ConnectionStatus) error {
	if st.TenantID == "" {
		return errors.New("tenant id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := s.client.Set(ctx, s.Key(st.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
