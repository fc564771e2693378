// Package ristretto provides a Ristretto-backed snapshot store. Volatile
// and admission-controlled: under memory pressure a snapshot may simply not
// be there on restore, which is an acceptable cold start. Fits tests and
// bounded-memory dev setups.
package ristretto

import (
	"context"

	rc "github.com/dgraph-io/ristretto"

	st "github.com/unkn0wn-root/querysync/storage"
)

type Store struct {
	c *rc.Cache
}

var _ st.Store = (*Store)(nil)

type Config struct {
	NumCounters int64 // 0 => 1e4; a snapshot store holds few, large entries
	MaxCost     int64 // 0 => 64 MB
	BufferItems int64 // 0 => 64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e4
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 64 << 20
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, name string) ([]byte, bool, error) {
	v, ok := s.c.Get(name)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(name)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores the snapshot and waits for the buffered write to apply, so a
// restore issued right after a save observes it. Admission may still reject
// the entry under pressure; that surfaces later as a miss, not an error.
func (s *Store) Set(_ context.Context, name string, data []byte) error {
	s.c.Set(name, data, int64(len(data)))
	s.c.Wait()
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.c.Del(name)
	s.c.Wait()
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes the underlying cache metrics when enabled in Config.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
