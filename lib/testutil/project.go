// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// NewProject returns a Filesystem rooted at a fresh temp directory.
func NewProject(t *testing.T) *projectfs.Filesystem {
	t.Helper()
	filesystem, err := projectfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	return filesystem
}

// WriteFile writes contents to a project-relative path, creating
// parent directories.
func WriteFile(t *testing.T, filesystem *projectfs.Filesystem, path, contents string) {
	t.Helper()
	if err := filesystem.CreateParentDirs(path); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := filesystem.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Mkdirs creates a project-relative directory and its parents.
func Mkdirs(t *testing.T, filesystem *projectfs.Filesystem, path string) {
	t.Helper()
	if err := filesystem.Mkdirs(path); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// OpenStore opens a store of the given engine in a fresh temp
// directory. The store is closed when the test completes.
func OpenStore(t *testing.T, engine buildinfostore.Engine) buildinfostore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata")
	if engine != buildinfostore.EngineFilesystem {
		path += ".db"
	}
	store, err := buildinfostore.Open(buildinfostore.Config{Engine: engine, Path: path})
	if err != nil {
		t.Fatalf("opening %s store: %v", engine, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
