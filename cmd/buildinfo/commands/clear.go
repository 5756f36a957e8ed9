// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
)

func clearCommand(streams IO) *cli.Command {
	var (
		global  globalFlags
		outputs bool
	)

	return &cli.Command{
		Name:    "clear",
		Summary: "Delete the metadata recorded for a target",
		Description: `Remove every stored entry for a target and its metadata directory.
With --outputs the recorded output paths are removed as well. The
target's next validation reports it as not recorded.`,
		Usage: "buildinfo clear <target> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.BoolVar(&outputs, "outputs", false, "also delete the recorded output paths")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("clear", args)
			if err != nil {
				return err
			}
			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			var recorded []string
			if outputs {
				onDisk, err := env.onDisk(target, "")
				if err != nil {
					return err
				}
				value, found, err := onDisk.GetValue(ctx, buildinfo.KeyRecordedPaths)
				if err != nil {
					return err
				}
				if found {
					if recorded, err = buildinfo.DecodePaths(value); err != nil {
						return err
					}
				}
			}

			if err := env.store.DeleteAll(ctx, target.String()); err != nil {
				return err
			}
			metadataDirectory, err := buildinfo.MetadataDirectory(target, env.config.Paths.OutputDir)
			if err != nil {
				return err
			}
			if err := env.filesystem.RemoveAll(metadataDirectory); err != nil {
				return err
			}
			for _, path := range recorded {
				if path == "." {
					continue
				}
				if err := env.filesystem.RemoveAll(path); err != nil {
					return err
				}
			}

			logger.Info("metadata cleared", "target", target.String(), "outputs_removed", len(recorded))
			fmt.Fprintf(streams.Out, "cleared %s\n", target)
			return nil
		},
	}
}
