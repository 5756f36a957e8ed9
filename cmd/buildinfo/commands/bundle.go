// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/bundle"
	"github.com/bureau-foundation/buildinfo/lib/clock"
)

func packCommand(streams IO) *cli.Command {
	var (
		global      globalFlags
		outputPath  string
		compression string
		recipients  []string
		outputJSON  bool
	)

	return &cli.Command{
		Name:    "pack",
		Summary: "Write a target's artifact and metadata to a bundle",
		Description: `Validate a target's artifact and write it, with its recorded metadata,
to a single compressed bundle. Symlinks that resolve inside the project
are stored as the files they point to, so the bundle unpacks anywhere.

Bundles are encrypted with age when recipients are given, either with
--recipient or bundle.recipients in the configuration.`,
		Usage: "buildinfo pack <target> -o <file|-> [flags]",
		Examples: []cli.Example{
			{
				Description: "Pack an artifact with the configured compression",
				Command:     "buildinfo pack //foo/bar:baz -o baz.bundle",
			},
			{
				Description: "Pack encrypted to a CI key and stream it elsewhere",
				Command:     "buildinfo pack //foo/bar:baz -o - --recipient age1... | upload",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVarP(&outputPath, "output", "o", "", "bundle file to write, or - for stdout")
			flagSet.StringVar(&compression, "compression", "", "zstd, lz4, or none (default: from configuration)")
			flagSet.StringSliceVar(&recipients, "recipient", nil, "age recipient to encrypt to (repeatable)")
			flagSet.BoolVar(&outputJSON, "json", false, "output the summary as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("pack", args)
			if err != nil {
				return err
			}
			if outputPath == "" {
				return fmt.Errorf("--output is required")
			}
			if outputPath == "-" && outputJSON {
				return fmt.Errorf("--json cannot be combined with --output -")
			}

			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			if compression == "" {
				compression = env.config.Bundle.Compression
			}
			bundleCompression, err := bundle.ParseCompression(compression)
			if err != nil {
				return err
			}
			if len(recipients) == 0 {
				recipients = env.config.Bundle.Recipients
			}
			ageRecipients, err := bundle.ParseRecipients(recipients)
			if err != nil {
				return err
			}

			options := bundle.PackOptions{
				Target:      target,
				Filesystem:  env.filesystem,
				Store:       env.store,
				OutputDir:   env.config.Paths.OutputDir,
				Compression: bundleCompression,
				Recipients:  ageRecipients,
				Logger:      logger,
			}

			var summary bundle.Summary
			if outputPath == "-" {
				summary, err = bundle.Pack(ctx, streams.Out, options)
				return err
			}
			summary, err = packToFile(ctx, outputPath, options)
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(streams.Out, summary)
			}
			fmt.Fprintf(streams.Out, "packed %s: %d entries, %d bytes -> %s\n",
				summary.Target, summary.Entries, summary.Bytes, outputPath)
			return nil
		},
	}
}

// packToFile writes the bundle next to path and renames it into place,
// so a failed pack never leaves a truncated bundle behind.
func packToFile(ctx context.Context, path string, options bundle.PackOptions) (bundle.Summary, error) {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return bundle.Summary{}, fmt.Errorf("creating bundle file: %w", err)
	}
	temporaryPath := file.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			file.Close()
			os.Remove(temporaryPath)
		}
	}()

	summary, err := bundle.Pack(ctx, file, options)
	if err != nil {
		return bundle.Summary{}, err
	}
	if err := file.Sync(); err != nil {
		return bundle.Summary{}, fmt.Errorf("syncing bundle: %w", err)
	}
	if err := file.Close(); err != nil {
		return bundle.Summary{}, fmt.Errorf("closing bundle: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return bundle.Summary{}, fmt.Errorf("installing bundle: %w", err)
	}
	succeeded = true
	return summary, nil
}

func unpackCommand(streams IO) *cli.Command {
	var (
		global       globalFlags
		inputPath    string
		identityFile string
		buildID      string
		policyName   string
		outputJSON   bool
	)

	return &cli.Command{
		Name:    "unpack",
		Summary: "Restore a target's artifact and metadata from a bundle",
		Description: `Read a bundle written by "buildinfo pack", replace the target's
recorded outputs with the bundle's files, commit its metadata, and
validate the result. ORIGIN_BUILD_ID and RULE_KEY are preserved;
ADDITIONAL_INFO is regenerated for this unpack.

Encrypted bundles need an age identity file, given with --identity or
bundle.identity_file in the configuration.`,
		Usage: "buildinfo unpack -i <file|-> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVarP(&inputPath, "input", "i", "", "bundle file to read, or - for stdin")
			flagSet.StringVar(&identityFile, "identity", "", "age identity file (default: from configuration)")
			flagSet.StringVar(&buildID, "build-id", "", "id recorded in ADDITIONAL_INFO for this unpack")
			flagSet.StringVar(&policyName, "policy", "", "validation policy for the unpacked artifact")
			flagSet.BoolVar(&outputJSON, "json", false, "output the summary as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			if len(args) != 0 {
				return fmt.Errorf("unpack takes no positional arguments, got %q", args[0])
			}
			if inputPath == "" {
				return fmt.Errorf("--input is required")
			}

			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			policy, err := env.policy(policyName)
			if err != nil {
				return err
			}
			if identityFile == "" {
				identityFile = env.config.Bundle.IdentityFile
			}
			identities, err := loadIdentities(identityFile)
			if err != nil {
				return err
			}

			input := streams.In
			if inputPath != "-" {
				file, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("opening bundle: %w", err)
				}
				defer file.Close()
				input = file
			}

			target, summary, err := bundle.Unpack(ctx, input, bundle.UnpackOptions{
				Filesystem: env.filesystem,
				Store:      env.store,
				OutputDir:  env.config.Paths.OutputDir,
				Identities: identities,
				BuildID:    buildID,
				Policy:     policy,
				Clock:      clock.Real(),
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(streams.Out, summary)
			}
			fmt.Fprintf(streams.Out, "unpacked %s: %d entries, %d bytes\n",
				target, summary.Entries, summary.Bytes)
			return nil
		},
	}
}

// loadIdentities reads an age identity file. An empty path yields no
// identities, which is enough for unencrypted bundles.
func loadIdentities(path string) ([]age.Identity, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("identity file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()
	return bundle.ParseIdentities(io.LimitReader(file, 1<<20))
}
