// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/clock"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
	"github.com/bureau-foundation/buildinfo/lib/testutil"
)

const outputDir = "buck-out"

// artifactFixture records //foo/bar:baz with a file, a directory tree
// (including an empty subdirectory), and a symlink to a directory
// outside the recorded set, then opens an on-disk view of it.
type artifactFixture struct {
	target     buildtarget.Target
	filesystem *projectfs.Filesystem
	store      buildinfostore.Store
	clock      *clock.FakeClock
	onDisk     *buildinfo.OnDiskBuildInfo

	metadataDirectory  string
	filePath           string
	dirPath            string
	subDir             string
	emptySubDir        string
	fileWithinDirPath  string
	otherPathWithinDir string
	nonRecordedPath    string
	symlinkPath        string
	fileViaSymlinkPath string
}

func genPath(t *testing.T, target buildtarget.Target, format string) string {
	t.Helper()
	path, err := target.GenPath(outputDir, format)
	if err != nil {
		t.Fatalf("GenPath(%q): %v", format, err)
	}
	return path
}

func scratchPath(t *testing.T, target buildtarget.Target, format string) string {
	t.Helper()
	path, err := target.ScratchPath(outputDir, format)
	if err != nil {
		t.Fatalf("ScratchPath(%q): %v", format, err)
	}
	return path
}

func newRecorder(t *testing.T, target buildtarget.Target, filesystem *projectfs.Filesystem, store buildinfostore.Store, recordClock clock.Clock) *buildinfo.Recorder {
	t.Helper()
	recorder, err := buildinfo.NewRecorder(buildinfo.RecorderConfig{
		Target:     target,
		Filesystem: filesystem,
		Store:      store,
		Clock:      recordClock,
		BuildID:    "cat",
		OutputDir:  outputDir,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return recorder
}

func newOnDisk(t *testing.T, target buildtarget.Target, filesystem *projectfs.Filesystem, store buildinfostore.Store, policy buildinfo.Policy) *buildinfo.OnDiskBuildInfo {
	t.Helper()
	onDisk, err := buildinfo.NewOnDiskBuildInfo(buildinfo.OnDiskConfig{
		Target:     target,
		Filesystem: filesystem,
		Store:      store,
		OutputDir:  outputDir,
		Policy:     policy,
	})
	if err != nil {
		t.Fatalf("NewOnDiskBuildInfo: %v", err)
	}
	return onDisk
}

func newArtifactFixture(t *testing.T, store buildinfostore.Store) *artifactFixture {
	t.Helper()
	ctx := context.Background()

	f := &artifactFixture{
		target:     buildtarget.MustParse("//foo/bar:baz"),
		filesystem: testutil.NewProject(t),
		store:      store,
		clock:      clock.Fake(time.Unix(1, 0)),
	}

	recorder := newRecorder(t, f.target, f.filesystem, store, f.clock)
	recorder.AddBuildMetadata("build_key0", "value0")
	recorder.AddBuildMetadata("build_key1", "value1")
	recorder.AddMetadata("artifact_key0", "value0")
	recorder.AddMetadata("artifact_key1", "value1")

	f.filePath = genPath(t, f.target, "%s/some.file")
	f.dirPath = genPath(t, f.target, "%s/some_dir")
	f.subDir = projectfs.Join(f.dirPath, "sub_dir")
	f.emptySubDir = projectfs.Join(f.dirPath, "empty_sub_dir")
	f.fileWithinDirPath = projectfs.Join(f.subDir, "some_inner.path")
	f.otherPathWithinDir = projectfs.Join(f.subDir, "other.file")
	f.nonRecordedPath = genPath(t, f.target, "%s/non.recorded")
	symlinkedDirPath := scratchPath(t, f.target, "%s/symlinked_dir")
	f.symlinkPath = genPath(t, f.target, "%s/symlink")
	fileInSymlinkedDirPath := projectfs.Join(symlinkedDirPath, "file_in_symlink")
	f.fileViaSymlinkPath = projectfs.Join(f.symlinkPath, "file_in_symlink")

	// Paths are recorded before they exist, as a build step would.
	for _, path := range []string{f.filePath, f.dirPath, f.fileWithinDirPath, f.symlinkPath} {
		if err := recorder.RecordArtifact(path); err != nil {
			t.Fatalf("RecordArtifact(%s): %v", path, err)
		}
	}

	testutil.Mkdirs(t, f.filesystem, f.subDir)
	testutil.Mkdirs(t, f.filesystem, f.emptySubDir)
	testutil.WriteFile(t, f.filesystem, f.filePath, "data0")
	testutil.WriteFile(t, f.filesystem, f.fileWithinDirPath, "data1")
	testutil.WriteFile(t, f.filesystem, f.otherPathWithinDir, "data2")
	testutil.WriteFile(t, f.filesystem, f.nonRecordedPath, "other0")

	testutil.Mkdirs(t, f.filesystem, symlinkedDirPath)
	absoluteSymlinkedDir, err := f.filesystem.Resolve(symlinkedDirPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := f.filesystem.CreateSymlink(f.symlinkPath, absoluteSymlinkedDir); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	testutil.WriteFile(t, f.filesystem, fileInSymlinkedDirPath, "data3")

	if err := recorder.AddMetadataJSON(buildinfo.KeyRecordedPaths, recorder.RecordedPaths()); err != nil {
		t.Fatalf("AddMetadataJSON: %v", err)
	}
	hashes, err := buildinfo.EncodeHashes(map[string]string{f.otherPathWithinDir: "random-hash"})
	if err != nil {
		t.Fatalf("EncodeHashes: %v", err)
	}
	recorder.AddMetadata(buildinfo.KeyRecordedPathHashes, hashes)

	closure, err := buildinfo.RecursivePaths(f.filesystem, recorder.RecordedPaths())
	if err != nil {
		t.Fatalf("RecursivePaths: %v", err)
	}
	size, err := buildinfo.OutputSize(f.filesystem, closure)
	if err != nil {
		t.Fatalf("OutputSize: %v", err)
	}
	recorder.AddMetadata(buildinfo.KeyOutputSize, strconv.FormatInt(size, 10))
	recorder.AddBuildMetadata(buildinfo.KeyOriginBuildID, "build-id")

	if err := recorder.WriteMetadataToDisk(ctx, true); err != nil {
		t.Fatalf("WriteMetadataToDisk: %v", err)
	}

	f.onDisk = newOnDisk(t, f.target, f.filesystem, store, buildinfo.PolicyExistence)
	f.metadataDirectory, err = buildinfo.MetadataDirectory(f.target, outputDir)
	if err != nil {
		t.Fatalf("MetadataDirectory: %v", err)
	}
	return f
}
