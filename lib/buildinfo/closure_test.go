// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
	"github.com/bureau-foundation/buildinfo/lib/testutil"
)

func TestRecursivePathsDirectory(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/dir/a.txt", "aaaaa")
	testutil.WriteFile(t, filesystem, "out/dir/nested/b.txt", "bbbbb")
	testutil.Mkdirs(t, filesystem, "out/dir/empty")
	testutil.WriteFile(t, filesystem, "out/sibling.txt", "not recorded")

	closure, err := buildinfo.RecursivePaths(filesystem, []string{"out/dir"})
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	want := []string{
		"out/dir",
		"out/dir/a.txt",
		"out/dir/empty",
		"out/dir/nested",
		"out/dir/nested/b.txt",
	}
	if !slices.Equal(closure, want) {
		t.Errorf("RecursivePaths = %v, want %v", closure, want)
	}

	size, err := buildinfo.OutputSize(filesystem, closure)
	if err != nil {
		t.Fatalf("OutputSize: %v", err)
	}
	if size != 10 {
		t.Errorf("OutputSize = %d, want 10", size)
	}
}

func TestRecursivePathsDeduplicatesAndSorts(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/dir/z.txt", "z")
	testutil.WriteFile(t, filesystem, "out/a.txt", "a")

	closure, err := buildinfo.RecursivePaths(filesystem, []string{"out/dir/z.txt", "out/dir", "./out/a.txt", "out/a.txt"})
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	want := []string{"out/a.txt", "out/dir", "out/dir/z.txt"}
	if !slices.Equal(closure, want) {
		t.Errorf("RecursivePaths = %v, want %v", closure, want)
	}
}

func TestRecursivePathsOmitsMissing(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/present.txt", "here")

	closure, err := buildinfo.RecursivePaths(filesystem, []string{"out/present.txt", "out/absent.txt"})
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	if !slices.Equal(closure, []string{"out/present.txt"}) {
		t.Errorf("RecursivePaths = %v, want only the present file", closure)
	}
}

func TestRecursivePathsSymlinks(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "scratch/real/inner.txt", "inner")
	testutil.WriteFile(t, filesystem, "scratch/file.txt", "file")
	testutil.Mkdirs(t, filesystem, "out")
	if err := filesystem.CreateSymlink("out/dirlink", "../scratch/real"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	if err := filesystem.CreateSymlink("out/filelink", "../scratch/file.txt"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	if err := filesystem.CreateSymlink("out/dangling", "../scratch/nowhere"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	closure, err := buildinfo.RecursivePaths(filesystem, []string{"out/dirlink", "out/filelink", "out/dangling"})
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	// The link's target directory is reached only through the link.
	want := []string{"out/dangling", "out/dirlink", "out/dirlink/inner.txt", "out/filelink"}
	if !slices.Equal(closure, want) {
		t.Errorf("RecursivePaths = %v, want %v", closure, want)
	}
}

func TestRecursivePathsRejectsEscapingSymlink(t *testing.T) {
	outside := t.TempDir()
	filesystem := testutil.NewProject(t)
	testutil.Mkdirs(t, filesystem, "out")
	if err := filesystem.CreateSymlink("out/escape", outside); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	_, err := buildinfo.RecursivePaths(filesystem, []string{"out"})
	if !errors.Is(err, projectfs.ErrEscapesRoot) {
		t.Errorf("RecursivePaths = %v, want ErrEscapesRoot", err)
	}
}

func TestRecursivePathsAllowsFileLinkOutsideRoot(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(outside, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/dir/data", "12345")
	if err := filesystem.CreateSymlink("out/dir/tool", outside); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	closure, err := buildinfo.RecursivePaths(filesystem, []string{"out/dir"})
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	want := []string{"out/dir", "out/dir/data", "out/dir/tool"}
	if !slices.Equal(closure, want) {
		t.Errorf("RecursivePaths = %v, want %v", closure, want)
	}

	size, err := buildinfo.OutputSize(filesystem, closure)
	if err != nil {
		t.Fatalf("OutputSize: %v", err)
	}
	if size != 5+10 {
		t.Errorf("OutputSize = %d, want 15", size)
	}
}

func TestRecursivePathsRejectsEscapingRecordedPath(t *testing.T) {
	filesystem := testutil.NewProject(t)
	_, err := buildinfo.RecursivePaths(filesystem, []string{"../elsewhere"})
	if !errors.Is(err, projectfs.ErrEscapesRoot) {
		t.Errorf("RecursivePaths = %v, want ErrEscapesRoot", err)
	}
}

func TestRecursivePathsDetectsCycles(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/dir/file.txt", "x")
	if err := filesystem.CreateSymlink("out/dir/loop", ".."); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	_, err := buildinfo.RecursivePaths(filesystem, []string{"out"})
	if !errors.Is(err, buildinfo.ErrSymlinkCycle) {
		t.Errorf("RecursivePaths = %v, want ErrSymlinkCycle", err)
	}
}

func TestRecursivePathsDetectsSelfReferentialLink(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.Mkdirs(t, filesystem, "out")
	if err := filesystem.CreateSymlink("out/a", "b"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	if err := filesystem.CreateSymlink("out/b", "a"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	_, err := buildinfo.RecursivePaths(filesystem, []string{"out/a"})
	if !errors.Is(err, buildinfo.ErrSymlinkCycle) {
		t.Errorf("RecursivePaths = %v, want ErrSymlinkCycle", err)
	}
}

func TestOutputSizeFollowsFileLinks(t *testing.T) {
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, "out/a.txt", "12345")
	if err := filesystem.CreateSymlink("out/b.txt", "a.txt"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	size, err := buildinfo.OutputSize(filesystem, []string{"out", "out/a.txt", "out/b.txt"})
	if err != nil {
		t.Fatalf("OutputSize: %v", err)
	}
	if size != 10 {
		t.Errorf("OutputSize = %d, want 10", size)
	}

	if _, err := buildinfo.OutputSize(filesystem, []string{"out/missing.txt"}); err == nil {
		t.Error("OutputSize of a missing path succeeded")
	}
}

func TestKeyEncoding(t *testing.T) {
	encoded, err := buildinfo.EncodePaths([]string{"b", "a"})
	if err != nil {
		t.Fatalf("EncodePaths: %v", err)
	}
	if encoded != `["b","a"]` {
		t.Errorf("EncodePaths = %s", encoded)
	}
	decoded, err := buildinfo.DecodePaths(`["b","a","./b"]`)
	if err != nil {
		t.Fatalf("DecodePaths: %v", err)
	}
	if !slices.Equal(decoded, []string{"a", "b"}) {
		t.Errorf("DecodePaths = %v, want [a b]", decoded)
	}
	if _, err := buildinfo.DecodePaths(`["/abs"]`); err == nil {
		t.Error("DecodePaths accepted an absolute path")
	}

	hashes, err := buildinfo.EncodeHashes(map[string]string{"z": "blake3:00", "a": "sha256:11"})
	if err != nil {
		t.Fatalf("EncodeHashes: %v", err)
	}
	if hashes != `{"a":"sha256:11","z":"blake3:00"}` {
		t.Errorf("EncodeHashes = %s", hashes)
	}
}
