// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// BuildKey names a build-scoped metadata entry. Arbitrary caller keys
// are plain conversions: BuildKey("my_key").
type BuildKey string

// ArtifactKey names an artifact-scoped metadata entry.
type ArtifactKey string

const (
	// KeyOriginBuildID is the id of the build that produced the output.
	KeyOriginBuildID BuildKey = "ORIGIN_BUILD_ID"

	// KeyAdditionalInfo is synthesized by the Recorder at commit time.
	// Callers may read it but never write it.
	KeyAdditionalInfo BuildKey = "ADDITIONAL_INFO"

	// KeyRuleKey is the cache key of the rule that produced the output.
	KeyRuleKey BuildKey = "RULE_KEY"
)

const (
	// KeyRecordedPaths is a JSON array of project-relative paths. Every
	// commit must include it.
	KeyRecordedPaths ArtifactKey = "RECORDED_PATHS"

	// KeyRecordedPathHashes is a JSON object mapping a subset of the
	// closure to fingerprint strings.
	KeyRecordedPathHashes ArtifactKey = "RECORDED_PATH_HASHES"

	// KeyOutputSize is the decimal byte count of the closure's regular
	// files.
	KeyOutputSize ArtifactKey = "OUTPUT_SIZE"

	// KeyOutputHash is a fingerprint over the whole output.
	KeyOutputHash ArtifactKey = "OUTPUT_HASH"

	// KeyTarget is the canonical name of the target that produced the
	// output, for artifacts that travel without their store.
	KeyTarget ArtifactKey = "TARGET"
)

// ManifestFileName is the name of the artifact metadata manifest
// inside the metadata directory.
const ManifestFileName = "ARTIFACT_METADATA"

// EncodePaths renders a path list as the JSON array stored under
// KeyRecordedPaths.
func EncodePaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("encoding paths: %w", err)
	}
	return string(data), nil
}

// DecodePaths parses a KeyRecordedPaths value. Every entry must be a
// clean project-relative path; the result is sorted and deduplicated.
func DecodePaths(value string) ([]string, error) {
	var raw []string
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", KeyRecordedPaths, err)
	}
	seen := make(map[string]struct{}, len(raw))
	paths := make([]string, 0, len(raw))
	for _, entry := range raw {
		cleaned, err := projectfs.Clean(entry)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", KeyRecordedPaths, err)
		}
		if _, duplicate := seen[cleaned]; duplicate {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}
	sort.Strings(paths)
	return paths, nil
}

// EncodeHashes renders a path-to-fingerprint map as the JSON object
// stored under KeyRecordedPathHashes. encoding/json sorts map keys.
func EncodeHashes(hashes map[string]string) (string, error) {
	if hashes == nil {
		hashes = map[string]string{}
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", fmt.Errorf("encoding path hashes: %w", err)
	}
	return string(data), nil
}

// DecodeHashes parses a KeyRecordedPathHashes value.
func DecodeHashes(value string) (map[string]string, error) {
	var hashes map[string]string
	if err := json.Unmarshal([]byte(value), &hashes); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", KeyRecordedPathHashes, err)
	}
	if hashes == nil {
		hashes = map[string]string{}
	}
	return hashes, nil
}
