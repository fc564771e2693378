// Package redis provides a Redis-backed snapshot store.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	st "github.com/unkn0wn-root/querysync/storage"
)

var ErrNilClient = errors.New("redis storage: nil client")

type Store struct {
	rdb         goredis.UniversalClient
	ttl         time.Duration
	closeClient bool
}

var _ st.Store = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient

	// TTL is optional expiry hygiene for abandoned snapshots. Zero means
	// no expiry; restore-side age validation applies either way.
	TTL time.Duration

	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Store{rdb: cfg.Client, ttl: ttl, closeClient: cfg.CloseClient}, nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, name).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, name string, data []byte) error {
	return s.rdb.Set(ctx, name, data, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.rdb.Del(ctx, name).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
