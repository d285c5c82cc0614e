package store

import (
	"fmt"
	"time"

	"gatekeeper/internal/models"
)

// memoryCleanupInterval bounds how long expired counters linger in the
// in-process backend.
const memoryCleanupInterval = time.Minute

// New instantiates a store backend based on configuration.
// Supported backends:
//   - redis: shared Redis instance (production, distributed enforcement)
//   - postgres: PostgreSQL with expiring counter rows
//   - memory: in-process maps (development and tests)
func New(cfg models.StoreConfig) (Store, error) {
	switch cfg.Type {
	case models.StoreTypeRedis:
		return NewRedisStore(cfg.Redis, cfg.KeyPrefix), nil
	case models.StoreTypePostgres:
		return NewPostgresStore(cfg.Postgres)
	case models.StoreTypeMemory:
		return NewMemoryStore(memoryCleanupInterval), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
