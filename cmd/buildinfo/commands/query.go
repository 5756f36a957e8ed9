// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
)

func pathsCommand(streams IO) *cli.Command {
	var (
		global     globalFlags
		outputJSON bool
	)

	return &cli.Command{
		Name:    "paths",
		Summary: "List every path that makes up a target's artifact",
		Description: `Print the metadata directory, the manifest, and the closure of the
recorded paths for a target, one per line in sorted order. Symlinks in
the closure are followed; missing recorded paths are omitted.`,
		Usage: "buildinfo paths <target> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("paths", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("paths", args)
			if err != nil {
				return err
			}
			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			onDisk, err := env.onDisk(target, "")
			if err != nil {
				return err
			}
			paths, err := onDisk.GetPathsForArtifact(ctx)
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(streams.Out, paths)
			}
			for _, path := range paths {
				fmt.Fprintln(streams.Out, path)
			}
			return nil
		},
	}
}

type metadataResult struct {
	Target   string            `json:"target"`
	Build    map[string]string `json:"build,omitempty"`
	Artifact map[string]string `json:"artifact,omitempty"`
}

func metadataCommand(streams IO) *cli.Command {
	var (
		global     globalFlags
		scopeName  string
		key        string
		outputJSON bool
	)

	return &cli.Command{
		Name:    "metadata",
		Summary: "Show the metadata recorded for a target",
		Description: `Print the build-scoped and artifact-scoped entries committed for a
target. --scope limits output to one scope; --key prints a single
value, which requires --scope.`,
		Usage: "buildinfo metadata <target> [--scope build|artifact] [--key KEY] [flags]",
		Examples: []cli.Example{
			{
				Description: "Show everything recorded for a target",
				Command:     "buildinfo metadata //foo/bar:baz",
			},
			{
				Description: "Print the build that produced the outputs",
				Command:     "buildinfo metadata //foo/bar:baz --scope build --key ORIGIN_BUILD_ID",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("metadata", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&scopeName, "scope", "", "only show one scope: build or artifact")
			flagSet.StringVar(&key, "key", "", "print the value of a single key")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("metadata", args)
			if err != nil {
				return err
			}
			if scopeName != "" && scopeName != "build" && scopeName != "artifact" {
				return fmt.Errorf("--scope must be build or artifact, got %q", scopeName)
			}
			if key != "" && scopeName == "" {
				return fmt.Errorf("--key requires --scope")
			}

			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			onDisk, err := env.onDisk(target, "")
			if err != nil {
				return err
			}

			if key != "" {
				var (
					value string
					found bool
				)
				if scopeName == "build" {
					value, found, err = onDisk.GetBuildValue(ctx, buildinfo.BuildKey(key))
				} else {
					value, found, err = onDisk.GetValue(ctx, buildinfo.ArtifactKey(key))
				}
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%s has no %s entry %q", target, scopeName, key)
				}
				if outputJSON {
					return cli.WriteJSON(streams.Out, map[string]string{key: value})
				}
				fmt.Fprintln(streams.Out, value)
				return nil
			}

			result := metadataResult{Target: target.String()}
			if scopeName != "artifact" {
				result.Build, err = onDisk.GetMetadataForArtifact(ctx)
				if err != nil {
					return err
				}
			}
			if scopeName != "build" {
				result.Artifact, err = env.store.GetAll(ctx, target.String(), buildinfostore.ScopeArtifact)
				if err != nil {
					return err
				}
				if len(result.Artifact) == 0 {
					return fmt.Errorf("%w: %s", buildinfo.ErrNotRecorded, target)
				}
			}

			if outputJSON {
				return cli.WriteJSON(streams.Out, result)
			}
			writeScope(streams, "build", result.Build)
			writeScope(streams, "artifact", result.Artifact)
			return nil
		},
	}
}

func writeScope(streams IO, name string, entries map[string]string) {
	if entries == nil {
		return
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(streams.Out, "%s\t%s\t%s\n", name, key, entries[key])
	}
}
