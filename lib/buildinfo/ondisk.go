// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"sort"
	"strconv"

	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/codec"
	"github.com/bureau-foundation/buildinfo/lib/fingerprint"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// Policy selects how ValidateArtifact treats RECORDED_PATH_HASHES.
type Policy string

const (
	// PolicyExistence only checks that hash-tracked paths exist.
	PolicyExistence Policy = "existence"

	// PolicyContent additionally recomputes each hash-tracked path's
	// fingerprint and compares it with the recorded one.
	PolicyContent Policy = "content"
)

// ParsePolicy accepts "existence", "content", or "" (existence).
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyExistence:
		return PolicyExistence, nil
	case PolicyContent:
		return PolicyContent, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q (want %q or %q)", name, PolicyExistence, PolicyContent)
	}
}

// OnDiskConfig holds the dependencies of an OnDiskBuildInfo.
type OnDiskConfig struct {
	Target     buildtarget.Target
	Filesystem *projectfs.Filesystem
	Store      buildinfostore.Store

	// OutputDir defaults to DefaultOutputDir.
	OutputDir string

	// Policy defaults to PolicyExistence.
	Policy Policy

	Logger *slog.Logger
}

// OnDiskBuildInfo is a read-only view of a target's committed metadata
// and the files it describes. Every call reads the current state of
// the store and the filesystem; nothing is cached.
type OnDiskBuildInfo struct {
	config OnDiskConfig
	logger *slog.Logger
	target string
}

// NewOnDiskBuildInfo returns a view for one target.
func NewOnDiskBuildInfo(config OnDiskConfig) (*OnDiskBuildInfo, error) {
	if config.Target.IsZero() {
		return nil, fmt.Errorf("buildinfo: on-disk view requires a target")
	}
	if config.Filesystem == nil {
		return nil, fmt.Errorf("buildinfo: on-disk view requires a filesystem")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("buildinfo: on-disk view requires a store")
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultOutputDir
	}
	policy, err := ParsePolicy(string(config.Policy))
	if err != nil {
		return nil, fmt.Errorf("buildinfo: %w", err)
	}
	config.Policy = policy
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &OnDiskBuildInfo{
		config: config,
		logger: logger.With("target", config.Target.String()),
		target: config.Target.String(),
	}, nil
}

// GetBuildValue returns one build-scoped entry.
func (o *OnDiskBuildInfo) GetBuildValue(ctx context.Context, key BuildKey) (string, bool, error) {
	value, found, err := o.config.Store.Get(ctx, o.target, buildinfostore.ScopeBuild, string(key))
	if err != nil {
		return "", false, fmt.Errorf("buildinfo: reading %s for %s: %w", key, o.target, err)
	}
	return value, found, nil
}

// GetValue returns one artifact-scoped entry.
func (o *OnDiskBuildInfo) GetValue(ctx context.Context, key ArtifactKey) (string, bool, error) {
	value, found, err := o.config.Store.Get(ctx, o.target, buildinfostore.ScopeArtifact, string(key))
	if err != nil {
		return "", false, fmt.Errorf("buildinfo: reading %s for %s: %w", key, o.target, err)
	}
	return value, found, nil
}

// GetMetadataForArtifact returns every build-scoped entry, including
// ADDITIONAL_INFO. Artifact-scoped entries are not included.
func (o *OnDiskBuildInfo) GetMetadataForArtifact(ctx context.Context) (map[string]string, error) {
	entries, err := o.config.Store.GetAll(ctx, o.target, buildinfostore.ScopeBuild)
	if err != nil {
		return nil, fmt.Errorf("buildinfo: reading build metadata for %s: %w", o.target, err)
	}
	// Every commit writes ADDITIONAL_INFO, so an empty build scope
	// means nothing was ever committed.
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotRecorded, o.target)
	}
	return entries, nil
}

// GetPathsForArtifact returns every project-relative path that makes
// up the artifact: the metadata directory, the manifest, and the
// closure of the recorded paths. Sorted.
func (o *OnDiskBuildInfo) GetPathsForArtifact(ctx context.Context) ([]string, error) {
	recorded, err := o.recordedPaths(ctx)
	if err != nil {
		return nil, err
	}
	closure, err := RecursivePaths(o.config.Filesystem, recorded)
	if err != nil {
		return nil, fmt.Errorf("buildinfo: expanding recorded paths for %s: %w", o.target, err)
	}

	metadataDirectory, err := MetadataDirectory(o.config.Target, o.config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("buildinfo: %w", err)
	}
	paths := []string{metadataDirectory, projectfs.Join(metadataDirectory, ManifestFileName)}
	for _, path := range closure {
		if path != paths[0] && path != paths[1] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// recordedPaths reads and decodes RECORDED_PATHS. A missing value
// means the target was never recorded.
func (o *OnDiskBuildInfo) recordedPaths(ctx context.Context) ([]string, error) {
	value, found, err := o.GetValue(ctx, KeyRecordedPaths)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotRecorded, o.target)
	}
	paths, err := DecodePaths(value)
	if err != nil {
		return nil, o.invalid(RuleMetadataEncoding, "", "stored recorded paths are malformed", err)
	}
	return paths, nil
}

// ValidateArtifact checks that the files on disk still agree with the
// committed metadata. It returns nil when the artifact can be reused,
// a *ValidationError (matching ErrInvalidArtifact) when it cannot,
// ErrNotRecorded when the target has no metadata, and a wrapped store
// or I/O error otherwise. The checks, in order:
//
//  1. every path in RECORDED_PATH_HASHES exists;
//  2. every path in RECORDED_PATHS exists and its closure expands;
//  3. under PolicyContent, every hash-tracked path still has its
//     recorded fingerprint;
//  4. the manifest on disk matches the stored artifact metadata;
//  5. OUTPUT_SIZE, when recorded, matches the closure's current size.
//
// Nothing is modified.
func (o *OnDiskBuildInfo) ValidateArtifact(ctx context.Context) error {
	recorded, err := o.recordedPaths(ctx)
	if err != nil {
		return err
	}

	artifact, err := o.config.Store.GetAll(ctx, o.target, buildinfostore.ScopeArtifact)
	if err != nil {
		return fmt.Errorf("buildinfo: reading artifact metadata for %s: %w", o.target, err)
	}

	hashes := map[string]string{}
	if value, found := artifact[string(KeyRecordedPathHashes)]; found {
		hashes, err = DecodeHashes(value)
		if err != nil {
			return o.invalid(RuleMetadataEncoding, "", "stored path hashes are malformed", err)
		}
	}
	hashedPaths := make([]string, 0, len(hashes))
	for path := range hashes {
		hashedPaths = append(hashedPaths, path)
	}
	sort.Strings(hashedPaths)

	for _, path := range hashedPaths {
		if _, err := o.config.Filesystem.Lstat(path); err != nil {
			return o.invalid(RuleHashedPathExists, path, "hash-tracked path is missing", err)
		}
	}

	for _, path := range recorded {
		if _, err := o.config.Filesystem.Stat(path); err != nil {
			return o.invalid(RuleRecordedPaths, path, "recorded path is missing", err)
		}
	}
	closure, err := RecursivePaths(o.config.Filesystem, recorded)
	if err != nil {
		return o.invalid(RuleRecordedPaths, "", "recorded paths cannot be expanded", err)
	}

	if o.config.Policy == PolicyContent {
		for _, path := range hashedPaths {
			if err := o.checkFingerprint(path, hashes[path]); err != nil {
				return err
			}
		}
	}

	if err := o.checkManifest(artifact); err != nil {
		return err
	}

	if value, found := artifact[string(KeyOutputSize)]; found {
		recordedSize, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return o.invalid(RuleMetadataEncoding, "", "stored output size is malformed", err)
		}
		actualSize, err := OutputSize(o.config.Filesystem, closure)
		if err != nil {
			return o.invalid(RuleOutputSize, "", "output size cannot be measured", err)
		}
		if actualSize != recordedSize {
			return o.invalid(RuleOutputSize, "",
				fmt.Sprintf("recorded %d bytes, found %d", recordedSize, actualSize), nil)
		}
	}

	o.logger.Debug("artifact validated",
		"recorded_paths", len(recorded),
		"closure", len(closure),
		"policy", string(o.config.Policy),
	)
	return nil
}

func (o *OnDiskBuildInfo) checkFingerprint(path, recorded string) error {
	expected, err := fingerprint.Parse(recorded)
	if err != nil {
		return o.invalid(RuleFingerprint, path, "recorded fingerprint is not recognized", err)
	}
	absolute, err := o.config.Filesystem.Resolve(path)
	if err != nil {
		return o.invalid(RuleFingerprint, path, "path cannot be resolved", err)
	}
	matches, err := fingerprint.Matches(absolute, expected)
	if err != nil {
		return o.invalid(RuleFingerprint, path, "content cannot be hashed", err)
	}
	if !matches {
		return o.invalid(RuleFingerprint, path, "content changed since recording", nil)
	}
	return nil
}

func (o *OnDiskBuildInfo) checkManifest(artifact map[string]string) error {
	manifestPath, err := ManifestPath(o.config.Target, o.config.OutputDir)
	if err != nil {
		return fmt.Errorf("buildinfo: %w", err)
	}
	data, err := o.config.Filesystem.ReadFile(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return o.invalid(RuleManifest, manifestPath, "manifest is missing", nil)
	}
	if err != nil {
		return o.invalid(RuleManifest, manifestPath, "manifest cannot be read", err)
	}
	var manifest map[string]string
	if err := codec.Unmarshal(data, &manifest); err != nil {
		if codec.IsDuplicateKey(err) {
			return o.invalid(RuleManifest, manifestPath, "manifest repeats a key", err)
		}
		return o.invalid(RuleManifest, manifestPath, "manifest cannot be decoded", err)
	}
	if !maps.Equal(manifest, artifact) {
		return o.invalid(RuleManifest, manifestPath, "manifest does not match stored artifact metadata", nil)
	}
	return nil
}

func (o *OnDiskBuildInfo) invalid(rule Rule, path, reason string, err error) error {
	validationError := &ValidationError{
		Target: o.target,
		Rule:   rule,
		Path:   path,
		Reason: reason,
		Err:    err,
	}
	o.logger.Info("artifact invalid", "rule", string(rule), "path", path, "reason", reason)
	return validationError
}
