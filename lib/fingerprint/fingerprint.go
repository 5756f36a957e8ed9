// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a fingerprint function.
type Algorithm string

const (
	// BLAKE3 is BLAKE3 in keyed mode with outputDomainKey.
	BLAKE3 Algorithm = "blake3"

	// SHA256 is plain SHA-256, for interoperating with fingerprints
	// produced by tools that do not speak BLAKE3.
	SHA256 Algorithm = "sha256"
)

// DigestSize is the digest length of every supported algorithm.
const DigestSize = 32

// ErrUnknownAlgorithm is returned for algorithm names this package
// cannot compute.
var ErrUnknownAlgorithm = errors.New("unknown fingerprint algorithm")

// outputDomainKey separates output fingerprints from any other BLAKE3
// use of the same bytes. Changing it invalidates every stored
// fingerprint. ASCII "buildinfo.recorded-path" zero-padded to 32 bytes.
var outputDomainKey = [32]byte{
	'b', 'u', 'i', 'l', 'd', 'i', 'n', 'f', 'o', '.', 'r', 'e', 'c', 'o', 'r', 'd',
	'e', 'd', '-', 'p', 'a', 't', 'h', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ParseAlgorithm validates an algorithm name. The empty string selects
// BLAKE3.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", BLAKE3:
		return BLAKE3, nil
	case SHA256:
		return SHA256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// Fingerprint is an algorithm-tagged digest.
type Fingerprint struct {
	Algorithm Algorithm
	Digest    [DigestSize]byte
}

// String returns the canonical "<algorithm>:<hex>" form stored in
// RECORDED_PATH_HASHES.
func (f Fingerprint) String() string {
	return string(f.Algorithm) + ":" + hex.EncodeToString(f.Digest[:])
}

// Parse parses the canonical textual form. Strings without a known
// algorithm prefix (for example placeholder hashes written by external
// tools) return an error wrapping ErrUnknownAlgorithm.
func Parse(text string) (Fingerprint, error) {
	name, encoded, found := strings.Cut(text, ":")
	if !found {
		return Fingerprint{}, fmt.Errorf("%w: fingerprint %q has no algorithm prefix", ErrUnknownAlgorithm, text)
	}
	algorithm, err := ParseAlgorithm(name)
	if err != nil || name == "" {
		return Fingerprint{}, fmt.Errorf("%w: fingerprint %q", ErrUnknownAlgorithm, text)
	}
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parsing fingerprint %q: %w", text, err)
	}
	if len(decoded) != DigestSize {
		return Fingerprint{}, fmt.Errorf("fingerprint %q is %d bytes, want %d", text, len(decoded), DigestSize)
	}
	fingerprint := Fingerprint{Algorithm: algorithm}
	copy(fingerprint.Digest[:], decoded)
	return fingerprint, nil
}

// Reader fingerprints everything read from r.
func Reader(r io.Reader, algorithm Algorithm) (Fingerprint, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return Fingerprint{}, err
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Fingerprint{}, fmt.Errorf("hashing: %w", err)
	}
	fingerprint := Fingerprint{Algorithm: algorithm}
	copy(fingerprint.Digest[:], hasher.Sum(nil))
	return fingerprint, nil
}

// Bytes fingerprints an in-memory buffer.
func Bytes(data []byte, algorithm Algorithm) (Fingerprint, error) {
	return Reader(bytes.NewReader(data), algorithm)
}

// File fingerprints the contents of the file at path, following
// symlinks.
func File(path string, algorithm Algorithm) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	fingerprint, err := Reader(file, algorithm)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%s: %w", path, err)
	}
	return fingerprint, nil
}

// Matches reports whether the file at path currently has the given
// fingerprint, recomputing it with the fingerprint's own algorithm.
func Matches(path string, expected Fingerprint) (bool, error) {
	actual, err := File(path, expected.Algorithm)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func newHasher(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case BLAKE3:
		// NewKeyed only fails for a key that is not 32 bytes, which
		// the array type rules out.
		hasher, err := blake3.NewKeyed(outputDomainKey[:])
		if err != nil {
			panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
		}
		return hasher, nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
