// Package store is the persistent key-value layer behind the result cache.
// Records are addressed by (table, key); writes are upserts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/internal/config"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Record is one stored value.
type Record struct {
	Payload     []byte
	LastUpdated time.Time
}

// Store is implemented by every backend.
type Store interface {
	// Upsert replaces any existing record under (table, key).
	Upsert(ctx context.Context, table, key string, rec Record) error
	// SelectByKey reports false when no record exists.
	SelectByKey(ctx context.Context, table, key string) (Record, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	logrus.WithField("backend", cfg.Backend).Info("Opening result store")
	switch cfg.Backend {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.DBPath)
	case "redis":
		return OpenRedis(ctx, cfg.RedisURL)
	case "memory":
		return NewMemory(0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
