// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the buildinfo command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/version"
)

// IO carries the streams commands read requests and bundles from and
// write results to. Logs go to the logger, never to Out.
type IO struct {
	In  io.Reader
	Out io.Writer
}

// StandardIO returns stdin and stdout.
func StandardIO() IO {
	return IO{In: os.Stdin, Out: os.Stdout}
}

// Root builds the complete buildinfo command tree.
func Root(streams IO) *cli.Command {
	return &cli.Command{
		Name: "buildinfo",
		Description: `buildinfo: build artifact metadata.

Record what a build step produced, answer questions about it later, and
decide whether the outputs on disk can still be trusted. Metadata lives
in a per-project store (SQLite by default) plus a manifest in each
target's metadata directory.`,
		Subcommands: []*cli.Command{
			recordCommand(streams),
			pathsCommand(streams),
			metadataCommand(streams),
			validateCommand(streams),
			clearCommand(streams),
			packCommand(streams),
			unpackCommand(streams),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Fprintf(streams.Out, "buildinfo %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Record a step's outputs",
				Command:     "buildinfo record //foo/bar:baz --request baz.jsonc",
			},
			{
				Description: "Check whether the outputs can be reused",
				Command:     "buildinfo validate //foo/bar:baz",
			},
			{
				Description: "List every file belonging to the artifact",
				Command:     "buildinfo paths //foo/bar:baz",
			},
			{
				Description: "Ship an artifact to another checkout",
				Command:     "buildinfo pack //foo/bar:baz -o - | ssh ci buildinfo unpack -i -",
			},
		},
	}
}
