// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildtarget provides the validated, immutable identity of a
// buildable unit.
//
// The canonical textual form is
//
//	[cell]//base/path:name[#flavor,flavor]
//
// and it is the only form used as a metadata store index. Parse accepts
// the "//base/path" shorthand, which names the target whose short name
// equals the last base path segment.
//
// A Target also derives the deterministic output locations the build
// tool uses for it. All derived paths are relative to the project root
// and slash-separated:
//
//	target.GenPath("buck-out", "%s/some.file")      // buck-out/gen/foo/bar/baz/some.file
//	target.ScratchPath("buck-out", ".%s/metadata")  // buck-out/bin/foo/bar/.baz/metadata
package buildtarget
