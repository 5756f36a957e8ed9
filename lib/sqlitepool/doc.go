// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// build metadata store.
//
// It wraps zombiezen.com/go/sqlite with the defaults every store in this
// module shares: WAL journal mode so validators read while a recorder
// commits, NORMAL synchronous (commits survive a crashed build process),
// a busy timeout so parallel recorders for different targets queue on
// the write lock instead of failing with SQLITE_BUSY, and a modest page
// cache.
//
// Callers [Pool.Take] a connection, use it from one goroutine, and
// [Pool.Put] it back. Write batches go through [Pool.WithTransaction],
// which runs the callback inside BEGIN IMMEDIATE and commits or rolls
// back depending on the returned error.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      filepath.Join(outputDir, "cache", "metadata", "metadata.db"),
//	    OnConnect: createSchema,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "DELETE FROM build_metadata WHERE target = ?", ...)
//	})
package sqlitepool
