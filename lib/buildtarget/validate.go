// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildtarget

import (
	"fmt"
	"strings"
)

// nameChars is the set of characters permitted in cells, short names,
// flavors, and base path segments.
var nameChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		nameChars[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		nameChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		nameChars[c] = true
	}
	for _, c := range []byte("._-=+@") {
		nameChars[c] = true
	}
}

// validateName checks a single path-free token.
func validateName(name, label string) error {
	if name == "" {
		return fmt.Errorf("%s is empty", label)
	}
	for i := 0; i < len(name); i++ {
		if !nameChars[name[i]] {
			return fmt.Errorf("%s %q: invalid character %q at position %d", label, name, name[i], i)
		}
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%s %q is a relative path component", label, name)
	}
	return nil
}

// validateBasePath checks a package path. The empty base path names the
// project root package.
func validateBasePath(basePath string) error {
	if basePath == "" {
		return nil
	}
	if strings.HasPrefix(basePath, "/") || strings.HasSuffix(basePath, "/") {
		return fmt.Errorf("base path %q must not start or end with /", basePath)
	}
	for _, segment := range strings.Split(basePath, "/") {
		if segment == "" {
			return fmt.Errorf("base path %q contains an empty segment", basePath)
		}
		if err := validateName(segment, "base path segment"); err != nil {
			return err
		}
	}
	return nil
}
