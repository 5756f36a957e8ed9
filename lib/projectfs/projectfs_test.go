// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package projectfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	filesystem, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return filesystem
}

func TestClean(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		escapes bool
	}{
		{"foo/bar", "foo/bar", false},
		{"foo//bar/", "foo/bar", false},
		{"./foo/../bar", "bar", false},
		{".", ".", false},
		{"..", "", true},
		{"../sibling", "", true},
		{"foo/../../up", "", true},
		{"/etc/passwd", "", true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := Clean(test.input)
			if test.escapes {
				if !errors.Is(err, ErrEscapesRoot) {
					t.Fatalf("Clean(%q) error = %v, want ErrEscapesRoot", test.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Clean(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("Clean(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}

	if _, err := Clean(""); err == nil {
		t.Error("Clean(\"\") succeeded, want error")
	}
}

func TestWriteTempCreatesParents(t *testing.T) {
	filesystem := newTestFilesystem(t)

	temporary, err := filesystem.WriteTemp("a/b/c.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	if !strings.HasPrefix(temporary, "a/b/") {
		t.Errorf("temporary path %q is not beside the destination", temporary)
	}
	if err := filesystem.Rename(temporary, "a/b/c.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	data, err := filesystem.ReadFile("a/b/c.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}

	entries, err := filesystem.ReadDir("a/b")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("a/b holds %d entries after rename, want 1", len(entries))
	}
}

func TestWriteTempIsInvisibleUntilRenamed(t *testing.T) {
	filesystem := newTestFilesystem(t)

	temporary, err := filesystem.WriteTemp("meta/manifest", []byte("v1"))
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	if _, err := filesystem.Lstat("meta/manifest"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Lstat before rename = %v, want ErrNotExist", err)
	}
	if err := filesystem.Rename(temporary, "meta/manifest"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := filesystem.Lstat("meta/manifest"); err != nil {
		t.Fatalf("Lstat after rename: %v", err)
	}
	if _, err := filesystem.Lstat(temporary); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Lstat(temporary) = %v, want ErrNotExist", err)
	}
}

func TestRealPath(t *testing.T) {
	filesystem := newTestFilesystem(t)
	if err := filesystem.Mkdirs("real/dir"); err != nil {
		t.Fatalf("Mkdirs: %v", err)
	}
	if err := filesystem.CreateSymlink("link", "real/dir"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	got, err := filesystem.RealPath("link")
	if err != nil {
		t.Fatalf("RealPath: %v", err)
	}
	if got != "real/dir" {
		t.Errorf("RealPath(link) = %q, want %q", got, "real/dir")
	}
	info, err := filesystem.Stat("link")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("Stat(link).IsDir() = false, want true")
	}
}

func TestRealPathOutsideRoot(t *testing.T) {
	filesystem := newTestFilesystem(t)
	outside := t.TempDir()
	if err := filesystem.CreateSymlink("escape", outside); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	if _, err := filesystem.RealPath("escape"); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("RealPath(escape) error = %v, want ErrEscapesRoot", err)
	}
}

func TestLstatSeesDanglingSymlink(t *testing.T) {
	filesystem := newTestFilesystem(t)
	if err := filesystem.CreateSymlink("dangling", "nowhere"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	if _, err := filesystem.Lstat("dangling"); err != nil {
		t.Errorf("Lstat(dangling): %v", err)
	}
	if _, err := filesystem.Stat("dangling"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(dangling) error = %v, want ErrNotExist", err)
	}
	target, err := filesystem.ReadLink("dangling")
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if target != "nowhere" {
		t.Errorf("ReadLink(dangling) = %q, want %q", target, "nowhere")
	}
}

func TestRemoveAllRefusesRoot(t *testing.T) {
	filesystem := newTestFilesystem(t)
	if err := filesystem.RemoveAll("."); err == nil {
		t.Fatal("RemoveAll(.) succeeded")
	}
	if err := filesystem.RemoveIfExists("missing"); err != nil {
		t.Fatalf("RemoveIfExists(missing): %v", err)
	}
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("New on a regular file succeeded")
	}
}
