// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfostore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/buildinfo/lib/sqlitepool"
)

// sqliteSchema creates one table per scope. WITHOUT ROWID keeps each
// table clustered on (target, key), which is the only access path.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS build_metadata (
		target TEXT NOT NULL,
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (target, key)
	) WITHOUT ROWID;

	CREATE TABLE IF NOT EXISTS artifact_metadata (
		target TEXT NOT NULL,
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (target, key)
	) WITHOUT ROWID;
`

// SQLiteConfig holds the parameters for OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file. Its parent directory is created if
	// missing.
	Path string

	// PoolSize is passed to sqlitepool. Defaults to 4.
	PoolSize int

	// Logger receives commit and lifecycle messages. Optional.
	Logger *slog.Logger
}

// SQLiteStore is the SQLite-backed Store.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	closed atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if necessary) a SQLite metadata store.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("buildinfostore: SQLite Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := ensureParentDirectory(cfg.Path); err != nil {
		return nil, err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("buildinfostore: %w", err)
	}

	return &SQLiteStore{pool: pool, logger: logger}, nil
}

func tableFor(scope Scope) (string, error) {
	switch scope {
	case ScopeBuild:
		return "build_metadata", nil
	case ScopeArtifact:
		return "artifact_metadata", nil
	default:
		return "", fmt.Errorf("buildinfostore: invalid %s", scope)
	}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, target string, scope Scope, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	table, err := tableFor(scope)
	if err != nil {
		return "", false, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("buildinfostore: get %s %s: %w", target, key, err)
	}
	defer s.pool.Put(conn)

	var value string
	var found bool
	err = sqlitex.Execute(conn, "SELECT value FROM "+table+" WHERE target = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{target, key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("buildinfostore: get %s %s: %w", target, key, err)
	}
	return value, found, nil
}

// GetAll implements Store.
func (s *SQLiteStore) GetAll(ctx context.Context, target string, scope Scope) (map[string]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	table, err := tableFor(scope)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("buildinfostore: get all %s: %w", target, err)
	}
	defer s.pool.Put(conn)

	entries := make(map[string]string)
	err = sqlitex.Execute(conn, "SELECT key, value FROM "+table+" WHERE target = ?", &sqlitex.ExecOptions{
		Args: []any{target},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries[stmt.ColumnText(0)] = stmt.ColumnText(1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("buildinfostore: get all %s %s: %w", target, scope, err)
	}
	return entries, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, target string, scope Scope, key, value string) error {
	return s.Commit(ctx, target, Batch{
		Entries: map[Scope]map[string]string{scope: {key: value}},
	})
}

// Commit implements Store. The whole batch runs in one IMMEDIATE
// transaction, so the write lock is taken before the first statement
// and a concurrent commit for the same target waits rather than
// interleaving.
func (s *SQLiteStore) Commit(ctx context.Context, target string, batch Batch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validateTarget(target); err != nil {
		return err
	}
	if err := batch.Validate(); err != nil {
		return err
	}

	err := s.pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
		for _, scope := range batch.Clear {
			table, _ := tableFor(scope)
			if err := sqlitex.Execute(conn, "DELETE FROM "+table+" WHERE target = ?", &sqlitex.ExecOptions{
				Args: []any{target},
			}); err != nil {
				return fmt.Errorf("clearing %s metadata: %w", scope, err)
			}
		}

		for _, scope := range Scopes {
			entries := batch.Entries[scope]
			if len(entries) == 0 {
				continue
			}
			table, _ := tableFor(scope)
			query := "INSERT INTO " + table + " (target, key, value) VALUES (?, ?, ?) " +
				"ON CONFLICT (target, key) DO UPDATE SET value = excluded.value"
			for _, key := range sortedKeys(entries) {
				if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
					Args: []any{target, key, entries[key]},
				}); err != nil {
					return fmt.Errorf("writing %s metadata %s: %w", scope, key, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("buildinfostore: commit %s: %w", target, err)
	}

	s.logger.Debug("metadata committed",
		"target", target,
		"build_entries", len(batch.Entries[ScopeBuild]),
		"artifact_entries", len(batch.Entries[ScopeArtifact]),
		"cleared", len(batch.Clear),
	)
	return nil
}

// DeleteAll implements Store.
func (s *SQLiteStore) DeleteAll(ctx context.Context, target string) error {
	return s.Commit(ctx, target, Batch{Clear: Scopes})
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.pool.Close()
}
