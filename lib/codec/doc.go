// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// on-disk build metadata.
//
// Two serialization formats are used with a clear boundary:
//
//   - JSON for values callers see: metadata values such as
//     RECORDED_PATHS and RECORDED_PATH_HASHES, CLI output, and the
//     JSONC record request.
//   - CBOR for state files nobody edits by hand: the per-target
//     ARTIFACT_METADATA manifest, the filesystem metadata store, and
//     the header entry of artifact bundles.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same metadata map always produces identical bytes, which lets the
// validator compare a manifest against the store byte-for-byte after
// re-encoding.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Struct tags follow one rule: a `cbor` tag marks a type that is only
// ever written as CBOR; a `json` tag marks a type that is also printed
// by the CLI. Never put both on one field.
package codec
