// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildtarget

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

const (
	// genDirectory holds outputs other rules consume.
	genDirectory = "gen"

	// scratchDirectory holds intermediate files and per-target
	// metadata.
	scratchDirectory = "bin"

	// nameFormatVerb is the single placeholder a path format must
	// contain; it is replaced by ShortNameAndFlavors.
	nameFormatVerb = "%s"
)

// Target identifies a buildable unit. The zero value is invalid; use
// Parse or New.
type Target struct {
	cell      string
	basePath  string
	shortName string
	flavors   []string
	canonical string
}

// New creates a Target from its parts. Flavors are sorted and
// deduplicated so that equivalent targets have one canonical form.
func New(cell, basePath, shortName string, flavors ...string) (Target, error) {
	if cell != "" {
		if err := validateName(cell, "cell"); err != nil {
			return Target{}, fmt.Errorf("invalid build target: %w", err)
		}
	}
	if err := validateBasePath(basePath); err != nil {
		return Target{}, fmt.Errorf("invalid build target: %w", err)
	}
	if shortName == "" {
		return Target{}, fmt.Errorf("invalid build target: short name is empty")
	}
	if err := validateName(shortName, "short name"); err != nil {
		return Target{}, fmt.Errorf("invalid build target: %w", err)
	}

	normalized := make([]string, 0, len(flavors))
	seen := make(map[string]struct{}, len(flavors))
	for _, flavor := range flavors {
		if err := validateName(flavor, "flavor"); err != nil {
			return Target{}, fmt.Errorf("invalid build target: %w", err)
		}
		if _, duplicate := seen[flavor]; duplicate {
			continue
		}
		seen[flavor] = struct{}{}
		normalized = append(normalized, flavor)
	}
	sort.Strings(normalized)

	target := Target{
		cell:      cell,
		basePath:  basePath,
		shortName: shortName,
		flavors:   normalized,
	}
	target.canonical = target.cell + "//" + target.basePath + ":" + target.ShortNameAndFlavors()
	return target, nil
}

// Parse parses the canonical textual form.
func Parse(text string) (Target, error) {
	cell, rest, found := strings.Cut(text, "//")
	if !found {
		return Target{}, fmt.Errorf("invalid build target %q: missing \"//\"", text)
	}

	var flavors []string
	if withoutFlavors, flavorList, hasFlavors := strings.Cut(rest, "#"); hasFlavors {
		rest = withoutFlavors
		if flavorList == "" {
			return Target{}, fmt.Errorf("invalid build target %q: empty flavor list", text)
		}
		flavors = strings.Split(flavorList, ",")
	}

	basePath, shortName, hasName := strings.Cut(rest, ":")
	if !hasName {
		if rest == "" {
			return Target{}, fmt.Errorf("invalid build target %q: missing short name", text)
		}
		shortName = path.Base(rest)
	}

	target, err := New(cell, basePath, shortName, flavors...)
	if err != nil {
		return Target{}, fmt.Errorf("%q: %w", text, err)
	}
	return target, nil
}

// MustParse is Parse for constants in tests and tables. It panics on
// invalid input.
func MustParse(text string) Target {
	target, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return target
}

// Cell returns the cell name, empty for the root cell.
func (t Target) Cell() string { return t.cell }

// BasePath returns the package path, e.g. "foo/bar".
func (t Target) BasePath() string { return t.basePath }

// ShortName returns the name after the colon, e.g. "baz".
func (t Target) ShortName() string { return t.shortName }

// Flavors returns a copy of the sorted flavor list.
func (t Target) Flavors() []string {
	return append([]string(nil), t.flavors...)
}

// ShortNameAndFlavors returns "name" or "name#flavor,flavor".
func (t Target) ShortNameAndFlavors() string {
	if len(t.flavors) == 0 {
		return t.shortName
	}
	return t.shortName + "#" + strings.Join(t.flavors, ",")
}

// String returns the canonical form, satisfying fmt.Stringer.
func (t Target) String() string { return t.canonical }

// IsZero reports whether this is an uninitialized Target.
func (t Target) IsZero() bool { return t.canonical == "" }

// GenPath returns <outputDir>/gen/<base path>/<format with %s replaced
// by ShortNameAndFlavors>.
func (t Target) GenPath(outputDir, format string) (string, error) {
	return t.derivedPath(outputDir, genDirectory, format)
}

// ScratchPath returns <outputDir>/bin/<base path>/<format with %s
// replaced by ShortNameAndFlavors>.
func (t Target) ScratchPath(outputDir, format string) (string, error) {
	return t.derivedPath(outputDir, scratchDirectory, format)
}

func (t Target) derivedPath(outputDir, kind, format string) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("derived path for zero-value Target")
	}
	if strings.Count(format, nameFormatVerb) != 1 {
		return "", fmt.Errorf("path format %q must contain %q exactly once", format, nameFormatVerb)
	}
	leaf := strings.Replace(format, nameFormatVerb, t.ShortNameAndFlavors(), 1)
	parts := []string{outputDir, kind}
	if t.cell != "" {
		parts = append(parts, t.cell)
	}
	parts = append(parts, t.basePath, leaf)
	return path.Join(parts...), nil
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (t Target) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero-value Target")
	}
	return []byte(t.canonical), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Target) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
