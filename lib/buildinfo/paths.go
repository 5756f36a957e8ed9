// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// DefaultOutputDir is the project-relative build output directory.
const DefaultOutputDir = "buck-out"

const metadataDirectoryFormat = ".%s/metadata/artifact"

// MetadataDirectory returns the project-relative directory holding a
// target's artifact manifest: <out>/bin/<base>/.<name>/metadata/artifact.
func MetadataDirectory(target buildtarget.Target, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return target.ScratchPath(outputDir, metadataDirectoryFormat)
}

// ManifestPath returns the project-relative path of a target's
// artifact manifest.
func ManifestPath(target buildtarget.Target, outputDir string) (string, error) {
	directory, err := MetadataDirectory(target, outputDir)
	if err != nil {
		return "", err
	}
	return projectfs.Join(directory, ManifestFileName), nil
}
