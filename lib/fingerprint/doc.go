// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes content fingerprints for recorded build
// outputs.
//
// A fingerprint is written into RECORDED_PATH_HASHES at record time and,
// under the content validation policy, recomputed at validation time.
// The textual form carries its algorithm so a validator never compares
// digests produced by different functions:
//
//	blake3:5d9f...   (default; BLAKE3 keyed with a fixed domain key)
//	sha256:2c26...
//
// Files are streamed through the hash with io.Copy, so memory use does
// not depend on output size.
package fingerprint
