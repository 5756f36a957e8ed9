// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/fingerprint"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
	"github.com/bureau-foundation/buildinfo/lib/version"
)

// recordRequest is the JSONC document "buildinfo record" reads.
type recordRequest struct {
	// BuildID is used when --build-id is not given. When both are
	// empty a random UUID is generated.
	BuildID string `json:"build_id"`

	RuleKey string `json:"rule_key"`

	// Paths are the project-relative outputs of the step.
	Paths []string `json:"paths"`

	// HashPaths are fingerprinted into RECORDED_PATH_HASHES.
	HashPaths []string `json:"hash_paths"`

	BuildMetadata map[string]string `json:"build_metadata"`
	Metadata      map[string]string `json:"metadata"`
}

// computedKeys are artifact keys record derives from the outputs; a
// request may not supply them.
var computedKeys = []buildinfo.ArtifactKey{
	buildinfo.KeyRecordedPaths,
	buildinfo.KeyRecordedPathHashes,
	buildinfo.KeyOutputSize,
	buildinfo.KeyOutputHash,
	buildinfo.KeyTarget,
}

type recordResult struct {
	Target        string `json:"target"`
	BuildID       string `json:"build_id"`
	RecordedPaths int    `json:"recorded_paths"`
	ClosurePaths  int    `json:"closure_paths"`
	OutputSize    int64  `json:"output_size"`
	OutputHash    string `json:"output_hash"`
	Cleared       bool   `json:"cleared"`
}

func recordCommand(streams IO) *cli.Command {
	var (
		global       globalFlags
		requestPath  string
		buildID      string
		keepExisting bool
		outputJSON   bool
	)

	return &cli.Command{
		Name:    "record",
		Summary: "Record metadata for a target's outputs",
		Description: `Commit build metadata for a target from a JSONC request.

The request lists the step's output paths, optional paths to
fingerprint, and extra metadata:

  {
    "rule_key": "4f6c...",
    "paths": ["buck-out/gen/foo/bar/baz"],
    "hash_paths": ["buck-out/gen/foo/bar/baz/lib.a"],  // optional
    "metadata": {"LINKER": "lld"},
  }

record expands the paths to their closure and stores RECORDED_PATHS,
OUTPUT_SIZE, OUTPUT_HASH, TARGET, and RECORDED_PATH_HASHES alongside
the request's entries. ORIGIN_BUILD_ID and ADDITIONAL_INFO are set from
the build id. Previously stored metadata for the target is replaced
unless --keep-existing is given.`,
		Usage: "buildinfo record <target> --request <file|-> [flags]",
		Examples: []cli.Example{
			{
				Description: "Record outputs described in a request file",
				Command:     "buildinfo record //foo/bar:baz --request baz.jsonc --build-id 7a1c",
			},
			{
				Description: "Read the request from stdin and merge with existing metadata",
				Command:     "gen-request | buildinfo record //foo/bar:baz --request - --keep-existing",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("record", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVarP(&requestPath, "request", "r", "", "JSONC request file, or - for stdin")
			flagSet.StringVar(&buildID, "build-id", "", "id of the build recording the outputs")
			flagSet.BoolVar(&keepExisting, "keep-existing", false, "merge over existing metadata instead of replacing it")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) (err error) {
			target, err := singleTarget("record", args)
			if err != nil {
				return err
			}
			if requestPath == "" {
				return fmt.Errorf("--request is required")
			}
			request, err := readRecordRequest(requestPath, streams.In)
			if err != nil {
				return err
			}
			for key := range request.Metadata {
				if slices.Contains(computedKeys, buildinfo.ArtifactKey(key)) {
					return fmt.Errorf("request metadata may not set %s; record computes it", key)
				}
			}
			if len(request.Paths) == 0 {
				return fmt.Errorf("request lists no paths")
			}

			env, err := global.open(logger)
			if err != nil {
				return err
			}
			defer closeEnvironment(env, &err)

			algorithm, err := fingerprint.ParseAlgorithm(env.config.Fingerprint.Algorithm)
			if err != nil {
				return err
			}
			if buildID == "" {
				buildID = request.BuildID
			}
			if buildID == "" {
				buildID = uuid.NewString()
			}

			extraData := maps.Clone(env.config.Recorder.ExtraData)
			if extraData == nil {
				extraData = make(map[string]string, 1)
			}
			extraData["recorder"] = version.Recorder()

			recorder, err := buildinfo.NewRecorder(buildinfo.RecorderConfig{
				Target:            target,
				Filesystem:        env.filesystem,
				Store:             env.store,
				BuildID:           buildID,
				OutputDir:         env.config.Paths.OutputDir,
				ArtifactData:      env.config.Recorder.ArtifactData,
				ArtifactExtraData: extraData,
				Logger:            logger,
			})
			if err != nil {
				return err
			}
			for _, path := range request.Paths {
				if err := recorder.RecordArtifact(path); err != nil {
					return err
				}
			}
			recorded := recorder.RecordedPaths()

			closure, err := buildinfo.RecursivePaths(env.filesystem, recorded)
			if err != nil {
				return err
			}
			size, err := buildinfo.OutputSize(env.filesystem, closure)
			if err != nil {
				return err
			}
			outputHash, err := outputFingerprint(env.filesystem, closure, algorithm)
			if err != nil {
				return err
			}
			hashes, err := pathFingerprints(env.filesystem, request.HashPaths, algorithm)
			if err != nil {
				return err
			}

			encodedPaths, err := buildinfo.EncodePaths(recorded)
			if err != nil {
				return err
			}
			for key, value := range request.Metadata {
				recorder.AddMetadata(buildinfo.ArtifactKey(key), value)
			}
			recorder.AddMetadata(buildinfo.KeyRecordedPaths, encodedPaths)
			recorder.AddMetadata(buildinfo.KeyOutputSize, strconv.FormatInt(size, 10))
			recorder.AddMetadata(buildinfo.KeyOutputHash, outputHash.String())
			recorder.AddMetadata(buildinfo.KeyTarget, target.String())
			if len(hashes) > 0 {
				encodedHashes, err := buildinfo.EncodeHashes(hashes)
				if err != nil {
					return err
				}
				recorder.AddMetadata(buildinfo.KeyRecordedPathHashes, encodedHashes)
			}

			for key, value := range request.BuildMetadata {
				recorder.AddBuildMetadata(buildinfo.BuildKey(key), value)
			}
			recorder.AddBuildMetadata(buildinfo.KeyOriginBuildID, buildID)
			if request.RuleKey != "" {
				recorder.AddBuildMetadata(buildinfo.KeyRuleKey, request.RuleKey)
			}

			if err := recorder.WriteMetadataToDisk(ctx, !keepExisting); err != nil {
				return err
			}

			result := recordResult{
				Target:        target.String(),
				BuildID:       buildID,
				RecordedPaths: len(recorded),
				ClosurePaths:  len(closure),
				OutputSize:    size,
				OutputHash:    outputHash.String(),
				Cleared:       !keepExisting,
			}
			if outputJSON {
				return cli.WriteJSON(streams.Out, result)
			}
			fmt.Fprintf(streams.Out, "recorded %s: %d paths, %d bytes, %s\n",
				result.Target, result.ClosurePaths, result.OutputSize, result.OutputHash)
			return nil
		},
	}
}

func readRecordRequest(path string, stdin io.Reader) (*recordRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var request recordRequest
	if err := decoder.Decode(&request); err != nil {
		return nil, fmt.Errorf("parsing request %s: %w", path, err)
	}
	return &request, nil
}

// outputFingerprint hashes the closure as a whole: one
// "<path>\x00<fingerprint>\n" line per regular file, in closure order.
// Dangling symlinks contribute nothing.
func outputFingerprint(filesystem *projectfs.Filesystem, closure []string, algorithm fingerprint.Algorithm) (fingerprint.Fingerprint, error) {
	var listing bytes.Buffer
	for _, path := range closure {
		info, err := filesystem.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		absolute, err := filesystem.Resolve(path)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		fileFingerprint, err := fingerprint.File(absolute, algorithm)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		fmt.Fprintf(&listing, "%s\x00%s\n", path, fileFingerprint)
	}
	return fingerprint.Bytes(listing.Bytes(), algorithm)
}

func pathFingerprints(filesystem *projectfs.Filesystem, paths []string, algorithm fingerprint.Algorithm) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))
	for _, path := range paths {
		cleaned, err := projectfs.Clean(path)
		if err != nil {
			return nil, fmt.Errorf("hash path %q: %w", path, err)
		}
		absolute, err := filesystem.Resolve(cleaned)
		if err != nil {
			return nil, err
		}
		pathFingerprint, err := fingerprint.File(absolute, algorithm)
		if err != nil {
			return nil, fmt.Errorf("hash path %s: %w", cleaned, err)
		}
		hashes[cleaned] = pathFingerprint.String()
	}
	return hashes, nil
}
