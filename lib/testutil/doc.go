// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for buildinfo packages.
//
// [NewProject] creates an empty project root in a test temp directory.
// [WriteFile] and [Mkdirs] populate it. [OpenStore] opens a metadata
// store of either engine that is closed when the test completes.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
