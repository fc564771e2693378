// Package sqlite provides a SQLite-backed snapshot store, the durable
// local-disk option (the mobile/desktop "async storage" analog).
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	st "github.com/unkn0wn-root/querysync/storage"
)

type Store struct {
	db   *sql.DB
	once sync.Once
}

var _ st.Store = (*Store)(nil)

// New opens (or creates) the snapshot database at path. An empty path or
// ":memory:" opens an in-memory database, useful for tests.
//
// Age validation happens on restore, so the table carries no expiry; the
// updated_at column exists for operator inspection only.
func New(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	// WAL keeps concurrent readers cheap while the persister writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ?`, name,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now().UnixMilli(),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	return err
}

func (s *Store) Close(context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}
