// Package store persists the popup session snapshot between popup lifetimes.
// A snapshot is taken at most once: Take returns it and removes it.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// Store keeps one session snapshot.
type Store interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, state protocol.SessionState) error
	// Take returns the stored snapshot and deletes it. It returns nil, nil
	// when nothing is stored.
	Take(ctx context.Context) (*protocol.SessionState, error)
	Close() error
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendFile:
		return NewFileStore(cfg.File.Path, logger), nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		return NewRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func encodeState(state protocol.SessionState) ([]byte, error) {
	return json.Marshal(state)
}

func decodeState(data []byte) (*protocol.SessionState, error) {
	var state protocol.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
