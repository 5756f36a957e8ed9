// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildinfo records, queries, and validates metadata about the
// outputs of a build target.
//
// After a target's build step produces files, a [Recorder] accumulates
// two kinds of metadata and commits them in one step:
//
//   - build metadata ([BuildKey]): which build produced the output,
//     its rule key, diagnostic info.
//   - artifact metadata ([ArtifactKey]): which paths make up the
//     output ([KeyRecordedPaths]), optional fingerprints for some of
//     them ([KeyRecordedPathHashes]), total size ([KeyOutputSize]).
//
// The commit writes both scopes to a [buildinfostore.Store] and an
// on-disk manifest of the artifact scope under the target's metadata
// directory (see [MetadataDirectory]).
//
// Before reusing a previous output, an [OnDiskBuildInfo] checks that
// the files on disk still agree with what was recorded
// ([OnDiskBuildInfo.ValidateArtifact]) and reports the full set of
// paths that make up the artifact ([OnDiskBuildInfo.GetPathsForArtifact])
// so they can be cached or shipped elsewhere.
//
// Recorded paths are project-relative and slash-separated. A recorded
// directory stands for itself and everything below it; a recorded
// symlink to a directory stands for itself and the directory's
// contents seen through the link. [RecursivePaths] computes that
// closure.
package buildinfo
