package store

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// RedisStore keeps the snapshot under one key, optionally expiring.
type RedisStore struct {
	cfg    config.RedisStoreConfig
	client *goredis.Client
	log    *zap.Logger
}

// NewRedisStore connects lazily to cfg.URL.
func NewRedisStore(cfg config.RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	return &RedisStore{
		cfg:    cfg,
		client: goredis.NewClient(opts),
		log:    logger.Named("store.redis"),
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, state protocol.SessionState) error {
	data, err := encodeState(state)
	if err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	if err := s.client.Set(ctx, s.cfg.Key, data, s.cfg.TTL).Err(); err != nil {
		return &faults.PersistenceError{Op: "save", Err: fmt.Errorf("redis: set %s: %w", s.cfg.Key, err)}
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context) (*protocol.SessionState, error) {
	data, err := s.client.GetDel(ctx, s.cfg.Key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: fmt.Errorf("redis: getdel %s: %w", s.cfg.Key, err)}
	}
	state, err := decodeState(data)
	if err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: err}
	}
	return state, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
