// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfostore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/buildinfo/lib/codec"
)

// recordFileName is the per-target metadata file. Both scopes live in
// the same file so that a single rename replaces them together.
const recordFileName = "metadata.cbor"

// lockFileName is the per-target advisory lock file. It is never
// removed, so every writer for a target locks the same inode.
const lockFileName = "lock"

// targetRecord is the on-disk form of one target's metadata.
type targetRecord struct {
	Target   string            `cbor:"target"`
	Build    map[string]string `cbor:"build,omitempty"`
	Artifact map[string]string `cbor:"artifact,omitempty"`
}

func (r *targetRecord) scope(scope Scope) map[string]string {
	switch scope {
	case ScopeBuild:
		if r.Build == nil {
			r.Build = make(map[string]string)
		}
		return r.Build
	case ScopeArtifact:
		if r.Artifact == nil {
			r.Artifact = make(map[string]string)
		}
		return r.Artifact
	}
	return nil
}

func (r *targetRecord) clear(scope Scope) {
	switch scope {
	case ScopeBuild:
		r.Build = nil
	case ScopeArtifact:
		r.Artifact = nil
	}
}

// FilesystemConfig holds the parameters for OpenFilesystem.
type FilesystemConfig struct {
	// Root is the directory holding the store. Created if missing.
	Root string

	// Logger receives commit messages. Optional.
	Logger *slog.Logger
}

// FilesystemStore is a Store that keeps one CBOR file per target under
// a two-level directory sharded by the BLAKE3 hash of the target name:
//
//	<root>/<hash[0:2]>/<hash>/metadata.cbor
//	<root>/<hash[0:2]>/<hash>/lock
//
// Readers never lock: the metadata file is only ever replaced by
// rename, so a reader sees a complete old or new record. Writers take
// an exclusive flock on the target's lock file for the duration of the
// read-modify-rename cycle.
type FilesystemStore struct {
	root   string
	logger *slog.Logger
	closed atomic.Bool
}

var _ Store = (*FilesystemStore)(nil)

// OpenFilesystem opens (creating if necessary) a filesystem store.
func OpenFilesystem(cfg FilesystemConfig) (*FilesystemStore, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("buildinfostore: filesystem Root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("buildinfostore: creating %s: %w", cfg.Root, err)
	}
	return &FilesystemStore{root: cfg.Root, logger: logger}, nil
}

// Root returns the store directory.
func (s *FilesystemStore) Root() string { return s.root }

// targetDirectory returns the directory holding a target's files.
func (s *FilesystemStore) targetDirectory(target string) string {
	sum := blake3.Sum256([]byte(target))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, name[:2], name)
}

// load reads a target's record. A missing file is an empty record.
func (s *FilesystemStore) load(target string) (*targetRecord, error) {
	path := filepath.Join(s.targetDirectory(target), recordFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &targetRecord{Target: target}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buildinfostore: reading %s: %w", path, err)
	}

	var record targetRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("buildinfostore: decoding %s: %w", path, err)
	}
	// A hash collision between two target names would surface here.
	if record.Target != target {
		return nil, fmt.Errorf("buildinfostore: %s holds metadata for %q, not %q", path, record.Target, target)
	}
	return &record, nil
}

// save writes a target's record to a temporary file in the same
// directory and renames it into place.
func (s *FilesystemStore) save(record *targetRecord) error {
	directory := s.targetDirectory(record.Target)
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("buildinfostore: encoding metadata for %s: %w", record.Target, err)
	}

	temp, err := os.CreateTemp(directory, "."+recordFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("buildinfostore: creating temp file: %w", err)
	}
	tempPath := temp.Name()
	success := false
	defer func() {
		if !success {
			temp.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := temp.Write(data); err != nil {
		return fmt.Errorf("buildinfostore: writing %s: %w", tempPath, err)
	}
	if err := temp.Sync(); err != nil {
		return fmt.Errorf("buildinfostore: syncing %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("buildinfostore: closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, filepath.Join(directory, recordFileName)); err != nil {
		return fmt.Errorf("buildinfostore: installing metadata for %s: %w", record.Target, err)
	}
	success = true
	return nil
}

// Get implements Store.
func (s *FilesystemStore) Get(ctx context.Context, target string, scope Scope, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	if !scope.Valid() {
		return "", false, fmt.Errorf("buildinfostore: invalid %s", scope)
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	record, err := s.load(target)
	if err != nil {
		return "", false, err
	}
	value, found := record.scope(scope)[key]
	return value, found, nil
}

// GetAll implements Store.
func (s *FilesystemStore) GetAll(ctx context.Context, target string, scope Scope) (map[string]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("buildinfostore: invalid %s", scope)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := s.load(target)
	if err != nil {
		return nil, err
	}
	return maps.Clone(record.scope(scope)), nil
}

// Put implements Store.
func (s *FilesystemStore) Put(ctx context.Context, target string, scope Scope, key, value string) error {
	return s.Commit(ctx, target, Batch{
		Entries: map[Scope]map[string]string{scope: {key: value}},
	})
}

// Commit implements Store.
func (s *FilesystemStore) Commit(ctx context.Context, target string, batch Batch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validateTarget(target); err != nil {
		return err
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	directory := s.targetDirectory(target)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("buildinfostore: creating %s: %w", directory, err)
	}

	unlock, err := lockTarget(filepath.Join(directory, lockFileName))
	if err != nil {
		return fmt.Errorf("buildinfostore: locking %s: %w", target, err)
	}
	defer unlock()

	record, err := s.load(target)
	if err != nil {
		return err
	}
	for _, scope := range batch.Clear {
		record.clear(scope)
	}
	for _, scope := range Scopes {
		entries := batch.Entries[scope]
		if len(entries) == 0 {
			continue
		}
		maps.Copy(record.scope(scope), entries)
	}

	if err := s.save(record); err != nil {
		return err
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
func (s *FilesystemStore) DeleteAll(ctx context.Context, target string) error {
	return s.Commit(ctx, target, Batch{Clear: Scopes})
}

// Close implements Store. The filesystem engine holds no open
// resources between calls; Close only rejects further use.
func (s *FilesystemStore) Close() error {
	s.closed.Store(true)
	return nil
}

func ensureParentDirectory(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("buildinfostore: creating parent of %s: %w", path, err)
	}
	return nil
}
