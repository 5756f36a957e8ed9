// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package projectfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned for paths that are absolute, climb above
// the project root, or (for RealPath) resolve through a symlink to a
// location outside it.
var ErrEscapesRoot = errors.New("path escapes project root")

// Filesystem is a handle on a project directory. It holds no open
// descriptors and is safe for concurrent use.
type Filesystem struct {
	root string
}

// New returns a Filesystem rooted at root. The root must exist and be
// a directory; symlinks in the root path itself are resolved once here
// so that RealPath comparisons are stable.
func New(root string) (*Filesystem, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %s: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %s: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}
	return &Filesystem{root: resolved}, nil
}

// Root returns the absolute, symlink-free project root.
func (f *Filesystem) Root() string { return f.root }

// Clean normalizes a project-relative path. The project root itself is
// ".". Absolute and escaping paths return ErrEscapesRoot.
func Clean(relative string) (string, error) {
	slashed := filepath.ToSlash(relative)
	if slashed == "" {
		return "", fmt.Errorf("empty path")
	}
	if path.IsAbs(slashed) || filepath.IsAbs(relative) {
		return "", fmt.Errorf("%w: %s is absolute", ErrEscapesRoot, relative)
	}
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, relative)
	}
	return cleaned, nil
}

// Join joins project-relative path elements.
func Join(elements ...string) string {
	return path.Join(elements...)
}

// Resolve returns the absolute host path for a project-relative path.
func (f *Filesystem) Resolve(relative string) (string, error) {
	cleaned, err := Clean(relative)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(cleaned)), nil
}

// Relativize converts an absolute host path under the root back to a
// project-relative path.
func (f *Filesystem) Relativize(absolute string) (string, error) {
	relative, err := filepath.Rel(f.root, absolute)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", absolute, err)
	}
	return Clean(relative)
}

// Lstat returns file info without following a final symlink.
func (f *Filesystem) Lstat(relative string) (fs.FileInfo, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.Lstat(absolute)
}

// Stat returns file info, following symlinks.
func (f *Filesystem) Stat(relative string) (fs.FileInfo, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.Stat(absolute)
}

// ReadDir lists a directory, following a symlink at the path itself.
// Entries are sorted by name.
func (f *Filesystem) ReadDir(relative string) ([]fs.DirEntry, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(absolute)
}

// RealPath resolves every symlink along the path and returns the
// result relative to the root. Targets outside the root return
// ErrEscapesRoot.
func (f *Filesystem) RealPath(relative string) (string, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}
	real, err := filepath.Rel(f.root, resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrEscapesRoot, relative, resolved)
	}
	real = filepath.ToSlash(real)
	if real == ".." || strings.HasPrefix(real, "../") {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrEscapesRoot, relative, resolved)
	}
	return real, nil
}

// Open opens a file for reading.
func (f *Filesystem) Open(relative string) (*os.File, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.Open(absolute)
}

// ReadFile reads a whole file.
func (f *Filesystem) ReadFile(relative string) ([]byte, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(absolute)
}

// Mkdirs creates a directory and any missing parents.
func (f *Filesystem) Mkdirs(relative string) error {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return err
	}
	return os.MkdirAll(absolute, 0o755)
}

// CreateParentDirs creates the parent directories of a path.
func (f *Filesystem) CreateParentDirs(relative string) error {
	cleaned, err := Clean(relative)
	if err != nil {
		return err
	}
	return f.Mkdirs(path.Dir(cleaned))
}

// WriteFile writes data to a file, creating or truncating it. Parent
// directories must exist.
func (f *Filesystem) WriteFile(relative string, data []byte, perm fs.FileMode) error {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return err
	}
	return os.WriteFile(absolute, data, perm)
}

// WriteTemp writes data to a new temporary file in the destination's
// directory and returns its project-relative path. The caller either
// renames it into place or removes it. Splitting the two steps lets a
// caller publish the file only after some other commit succeeds.
func (f *Filesystem) WriteTemp(relative string, data []byte) (string, error) {
	cleaned, err := Clean(relative)
	if err != nil {
		return "", err
	}
	if err := f.CreateParentDirs(cleaned); err != nil {
		return "", fmt.Errorf("creating parent of %s: %w", cleaned, err)
	}
	directory, err := f.Resolve(path.Dir(cleaned))
	if err != nil {
		return "", err
	}

	temporaryFile, err := os.CreateTemp(directory, "."+path.Base(cleaned)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file for %s: %w", cleaned, err)
	}
	temporaryPath := temporaryFile.Name()

	if _, err := temporaryFile.Write(data); err != nil {
		temporaryFile.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("writing %s: %w", cleaned, err)
	}
	if err := temporaryFile.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("closing temp file for %s: %w", cleaned, err)
	}

	return f.Relativize(temporaryPath)
}

// Rename moves a file within the project.
func (f *Filesystem) Rename(from, to string) error {
	absoluteFrom, err := f.Resolve(from)
	if err != nil {
		return err
	}
	absoluteTo, err := f.Resolve(to)
	if err != nil {
		return err
	}
	if err := os.Rename(absoluteFrom, absoluteTo); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", from, to, err)
	}
	return nil
}

// CreateSymlink creates a symlink at linkPath pointing to target.
// target is written verbatim: it may be absolute or relative to the
// link's directory.
func (f *Filesystem) CreateSymlink(linkPath, target string) error {
	absolute, err := f.Resolve(linkPath)
	if err != nil {
		return err
	}
	return os.Symlink(target, absolute)
}

// ReadLink returns the target of a symlink as stored.
func (f *Filesystem) ReadLink(relative string) (string, error) {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return "", err
	}
	return os.Readlink(absolute)
}

// RemoveIfExists removes a file, symlink, or empty directory. A
// missing path is not an error.
func (f *Filesystem) RemoveIfExists(relative string) error {
	absolute, err := f.Resolve(relative)
	if err != nil {
		return err
	}
	if err := os.Remove(absolute); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll removes a path and everything below it. Symlinks are
// removed, not followed.
func (f *Filesystem) RemoveAll(relative string) error {
	cleaned, err := Clean(relative)
	if err != nil {
		return err
	}
	if cleaned == "." {
		return fmt.Errorf("refusing to remove the project root")
	}
	absolute, err := f.Resolve(cleaned)
	if err != nil {
		return err
	}
	return os.RemoveAll(absolute)
}
