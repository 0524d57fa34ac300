package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DefaultSlot is the row the popup snapshot lives in.
const DefaultSlot = "default"

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS popup_state (
            slot     TEXT PRIMARY KEY,
            state    JSONB NOT NULL,
            saved_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlSaveState = `
        INSERT INTO popup_state (slot, state, saved_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (slot) DO UPDATE SET
            state = EXCLUDED.state,
            saved_at = EXCLUDED.saved_at;
    `
	sqlTakeState = `
        DELETE FROM popup_state
        WHERE slot = $1
        RETURNING state;
    `
)

// PostgresStore keeps the snapshot in a single postgres row.
type PostgresStore struct {
	pool DBPool
	slot string
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and creates the table if needed.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create popup_state table: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		slot: DefaultSlot,
		log:  logger.Named("store.postgres"),
	}, nil
}

func (s *PostgresStore) Save(ctx context.Context, state protocol.SessionState) error {
	data, err := encodeState(state)
	if err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	if _, err := s.pool.Exec(ctx, sqlSaveState, s.slot, string(data), time.Now().UTC()); err != nil {
		return &faults.PersistenceError{Op: "save", Err: fmt.Errorf("failed to upsert popup state: %w", err)}
	}
	return nil
}

func (s *PostgresStore) Take(ctx context.Context) (*protocol.SessionState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlTakeState, s.slot).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: fmt.Errorf("failed to take popup state: %w", err)}
	}

	state, err := decodeState(data)
	if err != nil {
		s.log.Warn("Discarding unreadable popup state.", zap.Error(err))
		return nil, &faults.PersistenceError{Op: "take", Err: err}
	}
	return state, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
