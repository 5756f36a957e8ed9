// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildinfostore persists build metadata indexed by (build
// target, scope, key).
//
// The store is pure storage: keys and values are opaque strings and it
// knows nothing about recorded paths or validation. Two scopes are kept
// apart so that one can be cleared without touching the other:
//
//   - [ScopeBuild] describes the build run (origin build id, rule key,
//     diagnostic info).
//   - [ScopeArtifact] describes the output content (recorded paths,
//     hashes, size) and is replaced together with the output.
//
// [Store.Commit] is the only multi-key write. It applies an optional
// clear of one or more scopes followed by a set of upserts as a single
// atomic unit: a concurrent reader sees either the whole previous state
// or the whole new state for that target. Commits for the same target
// serialize (last commit wins); commits for different targets never
// corrupt each other.
//
// Two engines implement [Store]:
//
//   - [OpenSQLite]: one database shared by every target, two tables,
//     one IMMEDIATE transaction per write. The default.
//   - [OpenFilesystem]: one CBOR file per target, replaced by atomic
//     rename under a per-target flock. Useful when the output directory
//     is shared between machines that cannot share a SQLite file.
package buildinfostore
