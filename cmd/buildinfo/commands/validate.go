// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
)

type validateResult struct {
	Target string `json:"target"`
	Valid  bool   `json:"valid"`
	Policy string `json:"policy"`
	Rule   string `json:"rule,omitempty"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func validateCommand(streams IO) *cli.Command {
	var (
		global     globalFlags
		policyName string
		outputJSON bool
	)

	return &cli.Command{
		Name:    "validate",
		Summary: "Check a target's outputs against its recorded metadata",
		Description: `Validate that the files on disk still match what was recorded for a
target. Exits 0 when the artifact is valid and 1 when it is not (or
when the target was never recorded). Other failures exit 1 with an
error message.

With --policy content, hash-tracked paths are re-fingerprinted;
the default existence policy only checks that they exist. The
default comes from validation.policy in the configuration.`,
		Usage: "buildinfo validate <target> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&policyName, "policy", "", "existence or content (default: from configuration)")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("validate", args)
			if err != nil {
				return err
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
			onDisk, err := env.onDisk(target, policy)
			if err != nil {
				return err
			}

			result := validateResult{Target: target.String(), Valid: true, Policy: string(policy)}
			validationErr := onDisk.ValidateArtifact(ctx)
			var invalid *buildinfo.ValidationError
			switch {
			case validationErr == nil:
			case errors.As(validationErr, &invalid):
				result.Valid = false
				result.Rule = string(invalid.Rule)
				result.Path = invalid.Path
				result.Reason = invalid.Reason
			case errors.Is(validationErr, buildinfo.ErrNotRecorded):
				result.Valid = false
				result.Reason = "no metadata recorded"
			default:
				return validationErr
			}

			if outputJSON {
				if err := cli.WriteJSON(streams.Out, result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(streams.Out, "%s: valid\n", result.Target)
			} else {
				fmt.Fprintf(streams.Out, "%s: invalid: %s", result.Target, result.Reason)
				if result.Path != "" {
					fmt.Fprintf(streams.Out, " (%s)", result.Path)
				}
				if result.Rule != "" {
					fmt.Fprintf(streams.Out, " [%s]", result.Rule)
				}
				fmt.Fprintln(streams.Out)
			}
			if !result.Valid {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
