// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the buildinfo
// tools.
//
// Configuration is loaded from a single file specified by either the
// BUILDINFO_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery: a command given neither
// runs with [Default].
//
// The file may carry environment-specific sections (development, ci,
// production) that override base values when [Config].Environment
// matches. Production defaults to content validation.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PROJECT_ROOT}, ${OUTPUT_DIR}, and ${VAR:-default}
// patterns are expanded.
//
// This package depends on no other buildinfo packages.
package config
