// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package projectfs provides a filesystem handle rooted at a project
// directory.
//
// Every path crossing this API is project-relative and slash-separated
// ("buck-out/gen/foo/bar/baz/some.file"). Absolute paths and paths that
// climb above the root with ".." are rejected with [ErrEscapesRoot]
// before any system call is made. Symlinks are allowed inside the
// project, and [Filesystem.RealPath] reports where one actually points
// so callers that follow links can refuse targets outside the root.
//
// Writes that publish state other processes read go through
// [Filesystem.WriteTemp] and [Filesystem.Rename]: the data is written to
// a temporary file in the destination directory and renamed into place,
// so readers never observe a partially written file.
package projectfs
