// Package storage provides the namespaced key-value store backing
// application settings and session snapshots. Values are JSON blobs in
// a single sqlite table, so a restart of the orchestrator can recover
// whatever was explicitly persisted before it died.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	ns         TEXT NOT NULL,
	k          TEXT NOT NULL,
	v          BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (ns, k)
);
`

type Store struct {
	db *sql.DB
	ns string
}

// Open opens (creating if needed) the sqlite file at path and scopes
// all operations to the given namespace.
func Open(path, namespace string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	// modernc sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage schema: %w", err)
	}

	return &Store{db: db, ns: namespace}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw JSON value for key. The second return is false
// when the key is absent; absence is not an error.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT v FROM kv WHERE ns = ? AND k = ?`, s.ns, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage get %q: %w", key, err)
	}
	return json.RawMessage(v), true, nil
}

// GetInto unmarshals the value for key into out. Returns false when the
// key is absent.
func (s *Store) GetInto(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("storage decode %q: %w", key, err)
	}
	return true, nil
}

// Set writes every pair in items in one transaction.
func (s *Store) Set(ctx context.Context, items map[string]any) error {
	return s.writeAll(ctx, items, `INSERT INTO kv (ns, k, v, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ns, k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`)
}

// Initialize writes defaults for keys that do not exist yet; keys that
// already have a value are left untouched.
func (s *Store) Initialize(ctx context.Context, defaults map[string]any) error {
	return s.writeAll(ctx, defaults,
		`INSERT OR IGNORE INTO kv (ns, k, v, updated_at) VALUES (?, ?, ?, ?)`)
}

func (s *Store) writeAll(ctx context.Context, items map[string]any, query string) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for k, val := range items {
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("storage encode %q: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx, query, s.ns, k, data, now); err != nil {
			return fmt.Errorf("storage write %q: %w", k, err)
		}
	}

	return tx.Commit()
}

// Remove deletes the given keys. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage begin: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kv WHERE ns = ? AND k = ?`, s.ns, k); err != nil {
			return fmt.Errorf("storage remove %q: %w", k, err)
		}
	}

	return tx.Commit()
}

// State returns every key/value pair in the namespace.
func (s *Store) State(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE ns = ?`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("storage state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("storage state scan: %w", err)
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}
