// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/clock"
	"github.com/bureau-foundation/buildinfo/lib/codec"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// RecorderConfig holds the dependencies of a Recorder.
type RecorderConfig struct {
	Target     buildtarget.Target
	Filesystem *projectfs.Filesystem
	Store      buildinfostore.Store

	// Clock supplies the ADDITIONAL_INFO timestamp. Defaults to the
	// real clock.
	Clock clock.Clock

	// BuildID identifies the build run recording this artifact.
	BuildID string

	// OutputDir is the project-relative output directory. Defaults to
	// DefaultOutputDir.
	OutputDir string

	// ArtifactData is an optional marker rendered into
	// ADDITIONAL_INFO; empty renders as "null".
	ArtifactData string

	// ArtifactExtraData adds key=value pairs to ADDITIONAL_INFO,
	// rendered in key order.
	ArtifactExtraData map[string]string

	Logger *slog.Logger
}

// Recorder accumulates metadata for one execution of one target's
// build and commits it once with WriteMetadataToDisk. A Recorder is
// not safe for concurrent use.
type Recorder struct {
	config RecorderConfig
	logger *slog.Logger

	buildMetadata    map[BuildKey]string
	artifactMetadata map[ArtifactKey]string
	recordedPaths    map[string]struct{}

	committed bool
}

// NewRecorder returns a Recorder with empty metadata.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	if config.Target.IsZero() {
		return nil, fmt.Errorf("buildinfo: recorder requires a target")
	}
	if config.Filesystem == nil {
		return nil, fmt.Errorf("buildinfo: recorder requires a filesystem")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("buildinfo: recorder requires a store")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultOutputDir
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Recorder{
		config:           config,
		logger:           logger.With("target", config.Target.String()),
		buildMetadata:    make(map[BuildKey]string),
		artifactMetadata: make(map[ArtifactKey]string),
		recordedPaths:    make(map[string]struct{}),
	}, nil
}

// Target returns the target being recorded.
func (r *Recorder) Target() buildtarget.Target { return r.config.Target }

// AddBuildMetadata sets a build-scoped entry, replacing any earlier
// value for the key.
func (r *Recorder) AddBuildMetadata(key BuildKey, value string) {
	r.buildMetadata[key] = value
}

// AddMetadata sets an artifact-scoped entry, replacing any earlier
// value for the key.
func (r *Recorder) AddMetadata(key ArtifactKey, value string) {
	r.artifactMetadata[key] = value
}

// AddMetadataJSON sets an artifact-scoped entry to the JSON encoding
// of value. Used for sequences and mappings such as KeyRecordedPaths.
func (r *Recorder) AddMetadataJSON(key ArtifactKey, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("buildinfo: encoding %s: %w", key, err)
	}
	r.artifactMetadata[key] = string(data)
	return nil
}

// RecordArtifact adds a project-relative path to the set of recorded
// paths. The path need not exist yet. Absolute paths, paths that climb
// above the project root, and paths overlapping the target's own
// metadata directory are rejected.
func (r *Recorder) RecordArtifact(path string) error {
	cleaned, err := projectfs.Clean(path)
	if err != nil {
		return fmt.Errorf("buildinfo: recording %q: %w", path, err)
	}
	if err := r.checkOutsideMetadata(cleaned); err != nil {
		return err
	}
	r.recordedPaths[cleaned] = struct{}{}
	return nil
}

// checkOutsideMetadata rejects a recorded path that contains, or lies
// inside, the metadata directory. The manifest would otherwise be
// counted in the closure after it is written.
func (r *Recorder) checkOutsideMetadata(path string) error {
	metadata, err := MetadataDirectory(r.config.Target, r.config.OutputDir)
	if err != nil {
		return fmt.Errorf("buildinfo: %w", err)
	}
	if overlaps(path, metadata) {
		return usageError("recorded path %s overlaps the metadata directory %s of %s", path, metadata, r.config.Target)
	}
	return nil
}

// overlaps reports whether one cleaned project-relative path is equal
// to or an ancestor of the other.
func overlaps(a, b string) bool {
	if a == "." || b == "." || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// RecordedPaths returns the recorded paths in sorted order.
func (r *Recorder) RecordedPaths() []string {
	paths := make([]string, 0, len(r.recordedPaths))
	for path := range r.recordedPaths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// AdditionalInfo renders the ADDITIONAL_INFO value for this recorder:
//
//	build_id=<id>,timestamp=<unix seconds>,artifact_data=<marker|null>,
//
// followed by one "key=value," per ArtifactExtraData entry in key
// order.
func (r *Recorder) AdditionalInfo() string {
	artifactData := r.config.ArtifactData
	if artifactData == "" {
		artifactData = "null"
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "build_id=%s,timestamp=%d,artifact_data=%s,",
		r.config.BuildID, r.config.Clock.Now().Unix(), artifactData)

	keys := make([]string, 0, len(r.config.ArtifactExtraData))
	for key := range r.config.ArtifactExtraData {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&builder, "%s=%s,", key, r.config.ArtifactExtraData[key])
	}
	return builder.String()
}

// WriteMetadataToDisk commits the accumulated metadata. When
// clearExisting is true every previously stored entry for the target
// (both scopes) is removed first; otherwise new entries are merged
// over the old ones.
//
// The manifest is written to a temporary file, the store batch is
// committed, and only then is the manifest renamed into place. A store
// failure removes the temporary file and leaves the previous commit
// intact. A Recorder commits at most once.
func (r *Recorder) WriteMetadataToDisk(ctx context.Context, clearExisting bool) error {
	if r.committed {
		return usageError("metadata for %s was already written by this recorder", r.config.Target)
	}
	recordedPaths, present := r.artifactMetadata[KeyRecordedPaths]
	if !present {
		return usageError("%s must be added before writing metadata for %s", KeyRecordedPaths, r.config.Target)
	}
	decodedPaths, err := DecodePaths(recordedPaths)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	for _, path := range decodedPaths {
		if err := r.checkOutsideMetadata(path); err != nil {
			return err
		}
	}
	if _, reserved := r.buildMetadata[KeyAdditionalInfo]; reserved {
		return usageError("%s is computed by the recorder and cannot be set", KeyAdditionalInfo)
	}

	target := r.config.Target.String()

	buildEntries := make(map[string]string, len(r.buildMetadata)+1)
	for key, value := range r.buildMetadata {
		buildEntries[string(key)] = value
	}
	buildEntries[string(KeyAdditionalInfo)] = r.AdditionalInfo()

	artifactEntries := make(map[string]string, len(r.artifactMetadata))
	for key, value := range r.artifactMetadata {
		artifactEntries[string(key)] = value
	}

	// The manifest mirrors the artifact scope as it will be after this
	// commit, so a merge must include what is already stored.
	manifest := artifactEntries
	if !clearExisting {
		existing, err := r.config.Store.GetAll(ctx, target, buildinfostore.ScopeArtifact)
		if err != nil {
			return fmt.Errorf("buildinfo: reading existing metadata for %s: %w", target, err)
		}
		manifest = existing
		maps.Copy(manifest, artifactEntries)
	}

	manifestData, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("buildinfo: encoding manifest for %s: %w", target, err)
	}
	manifestPath, err := ManifestPath(r.config.Target, r.config.OutputDir)
	if err != nil {
		return fmt.Errorf("buildinfo: %w", err)
	}
	temporaryManifest, err := r.config.Filesystem.WriteTemp(manifestPath, manifestData)
	if err != nil {
		return fmt.Errorf("buildinfo: writing manifest for %s: %w", target, err)
	}

	batch := buildinfostore.Batch{
		Entries: map[buildinfostore.Scope]map[string]string{
			buildinfostore.ScopeBuild:    buildEntries,
			buildinfostore.ScopeArtifact: artifactEntries,
		},
	}
	if clearExisting {
		batch.Clear = buildinfostore.Scopes
	}
	if err := r.config.Store.Commit(ctx, target, batch); err != nil {
		if removeErr := r.config.Filesystem.RemoveIfExists(temporaryManifest); removeErr != nil {
			r.logger.Warn("removing temporary manifest after failed commit",
				"path", temporaryManifest, "error", removeErr)
		}
		return fmt.Errorf("buildinfo: committing metadata for %s: %w", target, err)
	}
	r.committed = true

	if err := r.config.Filesystem.Rename(temporaryManifest, manifestPath); err != nil {
		return fmt.Errorf("buildinfo: installing manifest for %s: %w", target, err)
	}

	r.logger.Info("build metadata recorded",
		"build_id", r.config.BuildID,
		"recorded_paths", len(r.recordedPaths),
		"build_keys", len(buildEntries),
		"artifact_keys", len(artifactEntries),
		"cleared", clearExisting,
	)
	return nil
}
