// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"syscall"

	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// RecursivePaths expands recorded paths into the full set of paths
// that make up an artifact:
//
//   - a file (or a symlink to a file) contributes itself;
//   - a directory contributes itself and every descendant, including
//     empty subdirectories;
//   - a symlink to a directory contributes the link and the
//     directory's contents re-rooted under the link path.
//
// Recorded paths that do not exist are omitted: absence is a
// validation concern, not an expansion error. Directory symlinks that
// resolve outside the project root return projectfs.ErrEscapesRoot;
// symlinks to files are kept as leaves wherever they point. Symlinks
// that lead back into a directory being expanded return
// ErrSymlinkCycle. The result is sorted and has no duplicates. Nothing
// on disk is modified.
func RecursivePaths(filesystem *projectfs.Filesystem, recorded []string) ([]string, error) {
	expander := &closureExpander{
		filesystem: filesystem,
		seen:       make(map[string]struct{}),
		active:     make(map[string]struct{}),
	}

	for _, entry := range recorded {
		cleaned, err := projectfs.Clean(entry)
		if err != nil {
			return nil, err
		}
		if _, err := filesystem.Lstat(cleaned); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("inspecting %s: %w", cleaned, err)
		}
		if err := expander.expand(cleaned); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(expander.seen))
	for path := range expander.seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

type closureExpander struct {
	filesystem *projectfs.Filesystem
	seen       map[string]struct{}

	// active holds the real paths of directories currently being
	// walked. Entering one of them again means a cycle.
	active map[string]struct{}
}

// expand adds path and, for directories, everything below it. path is
// known to exist (Lstat succeeded).
func (e *closureExpander) expand(path string) error {
	e.seen[path] = struct{}{}

	info, err := e.filesystem.Lstat(path)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", path, err)
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		targetInfo, err := e.filesystem.Stat(path)
		if errors.Is(err, syscall.ELOOP) {
			return fmt.Errorf("%w: %s", ErrSymlinkCycle, path)
		}
		if errors.Is(err, fs.ErrNotExist) {
			// Dangling link: the link itself is the output.
			return nil
		}
		if err != nil {
			return fmt.Errorf("following %s: %w", path, err)
		}
		if !targetInfo.IsDir() {
			// Nothing is listed through a file link, so it may point
			// anywhere.
			return nil
		}
		real, err := e.filesystem.RealPath(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		return e.walk(path, real)
	}

	if !info.IsDir() {
		return nil
	}
	real, err := e.filesystem.RealPath(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	return e.walk(path, real)
}

// walk lists the directory whose logical path is path and whose
// symlink-free location is real.
func (e *closureExpander) walk(path, real string) error {
	if _, cycle := e.active[real]; cycle {
		return fmt.Errorf("%w: %s re-enters %s", ErrSymlinkCycle, path, real)
	}
	e.active[real] = struct{}{}
	defer delete(e.active, real)

	entries, err := e.filesystem.ReadDir(path)
	if err != nil {
		return fmt.Errorf("listing %s: %w", path, err)
	}
	for _, entry := range entries {
		if err := e.expand(projectfs.Join(path, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// OutputSize sums the sizes of the regular files in a closure,
// following symlinks to files. Directories contribute nothing. Any
// path that cannot be stat'd is an error.
func OutputSize(filesystem *projectfs.Filesystem, closure []string) (int64, error) {
	var total int64
	for _, path := range closure {
		info, err := filesystem.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("measuring %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
