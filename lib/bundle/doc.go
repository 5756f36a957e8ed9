// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle moves a recorded artifact between project roots as a
// single self-describing stream.
//
// A bundle is an 11-byte preamble followed by a payload:
//
//	preamble: "BIBUNDLE" | version (1) | compression tag (1) | flags (1)
//	payload:  [age encryption] -> [zstd | lz4 | none] -> tar
//
// The first tar entry is always "buildinfo.cbor", a CBOR header holding
// the target name and both metadata scopes as they were when the bundle
// was packed. The remaining entries are the artifact's path closure in
// sorted order. Symlinks that resolve are materialized (a link to a
// directory becomes a directory, a link to a file becomes a copy of the
// file), so a bundle never depends on paths outside itself. Dangling
// links are kept as links. The metadata directory is not shipped: the
// manifest is rewritten on unpack by committing the header's metadata
// through a [buildinfo.Recorder].
//
// [Pack] refuses to bundle an artifact that does not validate. [Unpack]
// validates the result before returning.
package bundle
