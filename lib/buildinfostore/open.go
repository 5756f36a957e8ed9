// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfostore

import (
	"fmt"
	"log/slog"
)

// Engine names a Store implementation.
type Engine string

const (
	EngineSQLite     Engine = "sqlite"
	EngineFilesystem Engine = "filesystem"
)

// ParseEngine accepts "sqlite", "filesystem", or "" (sqlite).
func ParseEngine(name string) (Engine, error) {
	switch Engine(name) {
	case "", EngineSQLite:
		return EngineSQLite, nil
	case EngineFilesystem:
		return EngineFilesystem, nil
	default:
		return "", fmt.Errorf("buildinfostore: unknown engine %q (want %q or %q)", name, EngineSQLite, EngineFilesystem)
	}
}

// Config selects and parameterizes an engine for Open.
type Config struct {
	Engine Engine

	// Path is the database file for EngineSQLite and the root
	// directory for EngineFilesystem.
	Path string

	// PoolSize applies to EngineSQLite only.
	PoolSize int

	Logger *slog.Logger
}

// Open opens the engine named by cfg.Engine.
func Open(cfg Config) (Store, error) {
	engine, err := ParseEngine(string(cfg.Engine))
	if err != nil {
		return nil, err
	}
	switch engine {
	case EngineFilesystem:
		return OpenFilesystem(FilesystemConfig{Root: cfg.Path, Logger: cfg.Logger})
	default:
		return OpenSQLite(SQLiteConfig{Path: cfg.Path, PoolSize: cfg.PoolSize, Logger: cfg.Logger})
	}
}
