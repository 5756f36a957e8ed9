// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUsage reports a caller mistake: committing without
	// RECORDED_PATHS, writing a reserved key, or committing twice.
	ErrUsage = errors.New("buildinfo: usage error")

	// ErrNotRecorded is returned when querying or validating a target
	// that has no committed metadata.
	ErrNotRecorded = errors.New("buildinfo: target has no recorded metadata")

	// ErrInvalidArtifact matches every *ValidationError. It means the
	// artifact on disk no longer agrees with its metadata and must be
	// rebuilt.
	ErrInvalidArtifact = errors.New("buildinfo: artifact is invalid")

	// ErrSymlinkCycle is returned by RecursivePaths when a symlink
	// leads back into a directory already being expanded.
	ErrSymlinkCycle = errors.New("buildinfo: symlink cycle")
)

// Rule identifies which validation check failed.
type Rule string

const (
	RuleHashedPathExists Rule = "hashed-path-exists"
	RuleRecordedPaths    Rule = "recorded-paths"
	RuleFingerprint      Rule = "fingerprint"
	RuleManifest         Rule = "manifest"
	RuleOutputSize       Rule = "output-size"
	RuleMetadataEncoding Rule = "metadata-encoding"
)

// ValidationError describes why an artifact failed validation. Path
// is the project-relative path involved, if any.
type ValidationError struct {
	Target string
	Rule   Rule
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "buildinfo: artifact %s invalid (%s)", e.Target, e.Rule)
	if e.Path != "" {
		fmt.Fprintf(&builder, ": %s", e.Path)
	}
	if e.Reason != "" {
		fmt.Fprintf(&builder, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}
	return builder.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidArtifact) true for every
// ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArtifact
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
