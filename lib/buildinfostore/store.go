// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrClosed is returned by every method called after Close.
var ErrClosed = errors.New("buildinfostore: store is closed")

// Scope separates metadata describing the build run from metadata
// describing the produced artifact.
type Scope uint8

const (
	// ScopeBuild metadata persists independently of artifact identity.
	ScopeBuild Scope = iota + 1

	// ScopeArtifact metadata is invalidated together with the output.
	ScopeArtifact
)

// Scopes lists every scope in a stable order.
var Scopes = []Scope{ScopeBuild, ScopeArtifact}

// String returns "build" or "artifact".
func (s Scope) String() string {
	switch s {
	case ScopeBuild:
		return "build"
	case ScopeArtifact:
		return "artifact"
	default:
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	return s == ScopeBuild || s == ScopeArtifact
}

// Batch is an atomic write for one target: every scope in Clear is
// emptied first, then every entry is upserted.
type Batch struct {
	Clear   []Scope
	Entries map[Scope]map[string]string
}

// Validate rejects unknown scopes.
func (b Batch) Validate() error {
	for _, scope := range b.Clear {
		if !scope.Valid() {
			return fmt.Errorf("buildinfostore: batch clears invalid %s", scope)
		}
	}
	for scope := range b.Entries {
		if !scope.Valid() {
			return fmt.Errorf("buildinfostore: batch writes invalid %s", scope)
		}
	}
	return nil
}

// Store is the metadata persistence contract. Implementations are safe
// for concurrent use by multiple goroutines.
type Store interface {
	// Get returns the value for one key. found is false when the key
	// has never been written (or was cleared).
	Get(ctx context.Context, target string, scope Scope, key string) (value string, found bool, err error)

	// GetAll returns every key in one scope for a target. The map is
	// empty, not nil, when nothing is stored.
	GetAll(ctx context.Context, target string, scope Scope) (map[string]string, error)

	// Put upserts a single key.
	Put(ctx context.Context, target string, scope Scope, key, value string) error

	// Commit applies a Batch atomically.
	Commit(ctx context.Context, target string, batch Batch) error

	// DeleteAll removes every key in every scope for a target.
	DeleteAll(ctx context.Context, target string) error

	// Close releases the store's resources.
	Close() error
}

// sortedKeys returns the keys of a metadata map in byte order so that
// writes happen in a reproducible sequence.
func sortedKeys(entries map[string]string) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func validateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("buildinfostore: empty target")
	}
	return nil
}
