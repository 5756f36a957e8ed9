// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/config"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// globalFlags are accepted by every leaf command. The framework parses
// flags per command, so each command's FlagSet registers these too.
type globalFlags struct {
	configPath  string
	projectRoot string
}

func (g *globalFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.configPath, "config", "",
		"configuration file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&g.projectRoot, "project-root", "",
		"project root directory (overrides paths.project_root)")
}

// loadConfig resolves the configuration: --config, then the
// environment variable, then the defaults.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case g.configPath != "":
		cfg, err = config.LoadFile(g.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if g.projectRoot != "" {
		cfg.Paths.ProjectRoot = g.projectRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// environment is the opened state shared by the commands: resolved
// configuration, the project filesystem, and the metadata store.
type environment struct {
	config     *config.Config
	filesystem *projectfs.Filesystem
	store      buildinfostore.Store
	logger     *slog.Logger
}

func (g *globalFlags) open(logger *slog.Logger) (*environment, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	filesystem, err := projectfs.New(cfg.Paths.ProjectRoot)
	if err != nil {
		return nil, err
	}
	store, err := buildinfostore.Open(buildinfostore.Config{
		Engine:   buildinfostore.Engine(cfg.Store.Engine),
		Path:     cfg.StorePath(),
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &environment{
		config:     cfg,
		filesystem: filesystem,
		store:      store,
		logger:     logger,
	}, nil
}

func (e *environment) Close() error {
	return e.store.Close()
}

// closeEnvironment closes the store and folds a close failure into
// the command's error.
func closeEnvironment(e *environment, err *error) {
	if closeErr := e.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("closing store: %w", closeErr))
	}
}

// policy returns the validation policy, preferring an explicit flag
// value over the configuration.
func (e *environment) policy(override string) (buildinfo.Policy, error) {
	if override != "" {
		return buildinfo.ParsePolicy(override)
	}
	return buildinfo.ParsePolicy(e.config.Validation.Policy)
}

func (e *environment) onDisk(target buildtarget.Target, policy buildinfo.Policy) (*buildinfo.OnDiskBuildInfo, error) {
	return buildinfo.NewOnDiskBuildInfo(buildinfo.OnDiskConfig{
		Target:     target,
		Filesystem: e.filesystem,
		Store:      e.store,
		OutputDir:  e.config.Paths.OutputDir,
		Policy:     policy,
		Logger:     e.logger,
	})
}

// singleTarget parses the one positional argument commands that act on
// a target expect.
func singleTarget(command string, args []string) (buildtarget.Target, error) {
	if len(args) != 1 {
		return buildtarget.Target{}, fmt.Errorf("%s takes exactly one target argument, got %d", command, len(args))
	}
	return buildtarget.Parse(args[0])
}
