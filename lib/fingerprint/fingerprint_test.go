// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileSHA256MatchesStandardLibrary(t *testing.T) {
	path := writeFile(t, "data0")

	got, err := File(path, SHA256)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	want := sha256.Sum256([]byte("data0"))
	if got.Digest != want {
		t.Errorf("digest = %x, want %x", got.Digest, want)
	}
	if got.Algorithm != SHA256 {
		t.Errorf("algorithm = %q, want %q", got.Algorithm, SHA256)
	}
}

func TestBLAKE3IsKeyed(t *testing.T) {
	blake, err := Bytes([]byte("data0"), BLAKE3)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	sha, err := Bytes([]byte("data0"), SHA256)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if blake.Digest == sha.Digest {
		t.Fatal("BLAKE3 and SHA256 digests collided")
	}

	again, err := Bytes([]byte("data0"), BLAKE3)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if again != blake {
		t.Errorf("BLAKE3 not deterministic: %s vs %s", again, blake)
	}
}

func TestStringParseRoundtrip(t *testing.T) {
	for _, algorithm := range []Algorithm{BLAKE3, SHA256} {
		original, err := Bytes([]byte("data1"), algorithm)
		if err != nil {
			t.Fatalf("Bytes(%s): %v", algorithm, err)
		}
		parsed, err := Parse(original.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", original.String(), err)
		}
		if parsed != original {
			t.Errorf("Parse(String()) = %v, want %v", parsed, original)
		}
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		unknownFormat bool
	}{
		{"placeholder", "random-hash", true},
		{"unknown algorithm", "md5:abcd", true},
		{"empty algorithm", ":abcd", true},
		{"bad hex", "blake3:zz", false},
		{"short digest", "sha256:abcd", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.input)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", test.input)
			}
			if got := errors.Is(err, ErrUnknownAlgorithm); got != test.unknownFormat {
				t.Errorf("errors.Is(err, ErrUnknownAlgorithm) = %v, want %v (err: %v)", got, test.unknownFormat, err)
			}
		})
	}
}

func TestMatchesDetectsModification(t *testing.T) {
	path := writeFile(t, "data2")
	recorded, err := File(path, BLAKE3)
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	matches, err := Matches(path, recorded)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if !matches {
		t.Fatal("unmodified file does not match its own fingerprint")
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	matches, err = Matches(path, recorded)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if matches {
		t.Fatal("modified file still matches")
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing"), BLAKE3)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("File error = %v, want os.ErrNotExist", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	if algorithm, err := ParseAlgorithm(""); err != nil || algorithm != BLAKE3 {
		t.Errorf("ParseAlgorithm(\"\") = %q, %v; want blake3", algorithm, err)
	}
	if _, err := ParseAlgorithm("crc32"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("ParseAlgorithm(crc32) error = %v, want ErrUnknownAlgorithm", err)
	}
}
