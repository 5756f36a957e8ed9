// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/buildinfo/cmd/buildinfo/cli"
	"github.com/bureau-foundation/buildinfo/lib/config"
	"github.com/bureau-foundation/buildinfo/lib/testutil"
)

const (
	testTarget        = "//foo/bar:baz"
	outputPath        = "buck-out/gen/foo/bar/baz"
	metadataDirectory = "buck-out/bin/foo/bar/.baz/metadata/artifact"
)

const testRequest = `{
  // outputs of the compile step
  "build_id": "build-1",
  "rule_key": "rk-1",
  "paths": ["buck-out/gen/foo/bar/baz"],
  "hash_paths": ["buck-out/gen/foo/bar/baz/out.txt"],
  "metadata": {"LINKER": "lld"},
}`

// execute runs the command tree with stdin and returns what it wrote
// to stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Root(IO{In: strings.NewReader(stdin), Out: &out}).Execute(context.Background(), args, nil)
	return out.String(), err
}

func mustExecute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := execute(t, stdin, args...)
	if err != nil {
		t.Fatalf("buildinfo %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// newProject creates a project with the outputs of //foo/bar:baz: five
// bytes in out.txt and ten in sub/data.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	filesystem := testutil.NewProject(t)
	testutil.WriteFile(t, filesystem, outputPath+"/out.txt", "hello")
	testutil.WriteFile(t, filesystem, outputPath+"/sub/data", "0123456789")
	return filesystem.Root()
}

func writeRequest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.jsonc")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	return path
}

func recordTestTarget(t *testing.T, root string, extraArgs ...string) recordResult {
	t.Helper()
	args := append([]string{"record", testTarget, "--project-root", root,
		"--request", writeRequest(t, testRequest), "--json"}, extraArgs...)
	out := mustExecute(t, "", args...)
	var result recordResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding record output %q: %v", out, err)
	}
	return result
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want ExitError", err)
	}
	if exitErr.ExitCode() != code {
		t.Fatalf("exit code = %d, want %d", exitErr.ExitCode(), code)
	}
}

func TestRecordComputesOutputMetadata(t *testing.T) {
	root := newProject(t)
	result := recordTestTarget(t, root)

	if result.Target != testTarget {
		t.Errorf("Target = %q, want %q", result.Target, testTarget)
	}
	if result.BuildID != "build-1" {
		t.Errorf("BuildID = %q, want request build id", result.BuildID)
	}
	if result.OutputSize != 15 {
		t.Errorf("OutputSize = %d, want 15", result.OutputSize)
	}
	if result.ClosurePaths != 4 {
		t.Errorf("ClosurePaths = %d, want 4", result.ClosurePaths)
	}
	if !strings.HasPrefix(result.OutputHash, "blake3:") {
		t.Errorf("OutputHash = %q, want blake3 fingerprint", result.OutputHash)
	}
	if !result.Cleared {
		t.Error("Cleared = false, want true without --keep-existing")
	}

	out := mustExecute(t, "", "metadata", testTarget, "--project-root", root, "--json")
	var metadata metadataResult
	if err := json.Unmarshal([]byte(out), &metadata); err != nil {
		t.Fatalf("decoding metadata output: %v", err)
	}
	if metadata.Build["ORIGIN_BUILD_ID"] != "build-1" {
		t.Errorf("ORIGIN_BUILD_ID = %q, want build-1", metadata.Build["ORIGIN_BUILD_ID"])
	}
	if metadata.Build["RULE_KEY"] != "rk-1" {
		t.Errorf("RULE_KEY = %q, want rk-1", metadata.Build["RULE_KEY"])
	}
	additionalInfo := metadata.Build["ADDITIONAL_INFO"]
	if !strings.HasPrefix(additionalInfo, "build_id=build-1,timestamp=") ||
		!strings.Contains(additionalInfo, ",recorder=buildinfo/") {
		t.Errorf("ADDITIONAL_INFO = %q", additionalInfo)
	}
	wantArtifact := map[string]string{
		"LINKER":         "lld",
		"OUTPUT_SIZE":    "15",
		"OUTPUT_HASH":    result.OutputHash,
		"RECORDED_PATHS": `["buck-out/gen/foo/bar/baz"]`,
		"TARGET":         testTarget,
	}
	for key, want := range wantArtifact {
		if got := metadata.Artifact[key]; got != want {
			t.Errorf("artifact %s = %q, want %q", key, got, want)
		}
	}
	if !strings.Contains(metadata.Artifact["RECORDED_PATH_HASHES"], `"buck-out/gen/foo/bar/baz/out.txt":"blake3:`) {
		t.Errorf("RECORDED_PATH_HASHES = %q", metadata.Artifact["RECORDED_PATH_HASHES"])
	}
}

func TestRecordIsDeterministic(t *testing.T) {
	first := recordTestTarget(t, newProject(t))
	second := recordTestTarget(t, newProject(t))
	if first.OutputHash != second.OutputHash {
		t.Errorf("OutputHash differs across identical projects: %q vs %q", first.OutputHash, second.OutputHash)
	}
}

func TestRecordFromStdin(t *testing.T) {
	root := newProject(t)
	out := mustExecute(t, testRequest, "record", testTarget, "--project-root", root, "-r", "-", "--build-id", "flag-id")
	if !strings.Contains(out, "recorded //foo/bar:baz: 4 paths, 15 bytes") {
		t.Errorf("record output = %q", out)
	}
	value := mustExecute(t, "", "metadata", testTarget, "--project-root", root, "--scope", "build", "--key", "ORIGIN_BUILD_ID")
	if value != "flag-id\n" {
		t.Errorf("ORIGIN_BUILD_ID = %q, want the --build-id value", value)
	}
}

func TestRecordRejectsBadRequests(t *testing.T) {
	root := newProject(t)
	tests := []struct {
		name    string
		request string
		want    string
	}{
		{
			name:    "computed key",
			request: `{"paths": ["buck-out/gen/foo/bar/baz"], "metadata": {"OUTPUT_SIZE": "1"}}`,
			want:    "OUTPUT_SIZE",
		},
		{
			name:    "no paths",
			request: `{"metadata": {"LINKER": "lld"}}`,
			want:    "no paths",
		},
		{
			name:    "unknown field",
			request: `{"paths": ["a"], "pathz": ["b"]}`,
			want:    "pathz",
		},
		{
			name:    "reserved build key",
			request: `{"paths": ["buck-out/gen/foo/bar/baz"], "build_metadata": {"ADDITIONAL_INFO": "x"}}`,
			want:    "ADDITIONAL_INFO",
		},
		{
			name:    "escaping path",
			request: `{"paths": ["../outside"]}`,
			want:    "outside",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := execute(t, "", "record", testTarget, "--project-root", root, "--request", writeRequest(t, test.request))
			if err == nil {
				t.Fatal("record succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want mention of %q", err, test.want)
			}
		})
	}
}

func TestRecordKeepExistingMerges(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)

	request := writeRequest(t, `{"paths": ["buck-out/gen/foo/bar/baz"], "metadata": {"SANITIZER": "asan"}}`)
	mustExecute(t, "", "record", testTarget, "--project-root", root, "--request", request, "--keep-existing")

	for key, want := range map[string]string{"LINKER": "lld", "SANITIZER": "asan"} {
		got := mustExecute(t, "", "metadata", testTarget, "--project-root", root, "--scope", "artifact", "--key", key)
		if got != want+"\n" {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	mustExecute(t, "", "validate", testTarget, "--project-root", root)
}

func TestPaths(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)

	out := mustExecute(t, "", "paths", testTarget, "--project-root", root)
	got := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		outputPath,
		outputPath + "/out.txt",
		outputPath + "/sub",
		outputPath + "/sub/data",
		metadataDirectory,
		metadataDirectory + "/ARTIFACT_METADATA",
	}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)
	outputFile := filepath.Join(root, outputPath, "out.txt")

	out := mustExecute(t, "", "validate", testTarget, "--project-root", root)
	if out != testTarget+": valid\n" {
		t.Errorf("validate output = %q", out)
	}

	// Same size, different content: only the content policy notices.
	if err := os.WriteFile(outputFile, []byte("HELLO"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustExecute(t, "", "validate", testTarget, "--project-root", root)

	out, err := execute(t, "", "validate", testTarget, "--project-root", root, "--policy", "content", "--json")
	requireExitCode(t, err, 1)
	var result validateResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding validate output %q: %v", out, err)
	}
	if result.Valid || result.Rule != "fingerprint" || result.Path != outputPath+"/out.txt" {
		t.Errorf("validate result = %+v, want fingerprint failure on out.txt", result)
	}

	if err := os.WriteFile(outputFile, []byte("hello, world"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "", "validate", testTarget, "--project-root", root)
	requireExitCode(t, err, 1)
	if !strings.Contains(out, "invalid") || !strings.Contains(out, "[output-size]") {
		t.Errorf("validate output = %q, want output-size failure", out)
	}
}

func TestValidateNotRecorded(t *testing.T) {
	root := newProject(t)
	out, err := execute(t, "", "validate", "//never:built", "--project-root", root)
	requireExitCode(t, err, 1)
	if !strings.Contains(out, "no metadata recorded") {
		t.Errorf("validate output = %q", out)
	}
}

func TestClear(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)

	mustExecute(t, "", "clear", testTarget, "--project-root", root)
	if _, err := os.Stat(filepath.Join(root, metadataDirectory)); !os.IsNotExist(err) {
		t.Errorf("metadata directory still present after clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, outputPath, "out.txt")); err != nil {
		t.Errorf("outputs removed without --outputs: %v", err)
	}
	_, err := execute(t, "", "validate", testTarget, "--project-root", root)
	requireExitCode(t, err, 1)

	recordTestTarget(t, root)
	mustExecute(t, "", "clear", testTarget, "--project-root", root, "--outputs")
	if _, err := os.Stat(filepath.Join(root, outputPath)); !os.IsNotExist(err) {
		t.Errorf("outputs still present after clear --outputs: %v", err)
	}
}

func TestMetadataFlags(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)

	if _, err := execute(t, "", "metadata", testTarget, "--project-root", root, "--key", "LINKER"); err == nil {
		t.Error("--key without --scope succeeded")
	}
	if _, err := execute(t, "", "metadata", testTarget, "--project-root", root, "--scope", "neither"); err == nil {
		t.Error("invalid --scope succeeded")
	}
	if _, err := execute(t, "", "metadata", testTarget, "--project-root", root, "--scope", "build", "--key", "MISSING"); err == nil {
		t.Error("missing key succeeded")
	}

	out := mustExecute(t, "", "metadata", testTarget, "--project-root", root, "--scope", "artifact")
	if strings.Contains(out, "ORIGIN_BUILD_ID") || !strings.Contains(out, "artifact\tLINKER\tlld\n") {
		t.Errorf("artifact scope output = %q", out)
	}
}

func TestPackUnpackAcrossProjects(t *testing.T) {
	source := newProject(t)
	recordTestTarget(t, source)
	bundlePath := filepath.Join(t.TempDir(), "baz.bundle")

	out := mustExecute(t, "", "pack", testTarget, "--project-root", source, "-o", bundlePath, "--compression", "lz4")
	if !strings.Contains(out, "packed //foo/bar:baz") {
		t.Errorf("pack output = %q", out)
	}

	destination := newProject(t)
	if err := os.RemoveAll(filepath.Join(destination, "buck-out")); err != nil {
		t.Fatal(err)
	}
	mustExecute(t, "", "unpack", "--project-root", destination, "-i", bundlePath, "--build-id", "unpack-1")

	data, err := os.ReadFile(filepath.Join(destination, outputPath, "sub", "data"))
	if err != nil || string(data) != "0123456789" {
		t.Fatalf("unpacked sub/data = %q, %v", data, err)
	}
	mustExecute(t, "", "validate", testTarget, "--project-root", destination, "--policy", "content")

	origin := mustExecute(t, "", "metadata", testTarget, "--project-root", destination, "--scope", "build", "--key", "ORIGIN_BUILD_ID")
	if origin != "build-1\n" {
		t.Errorf("ORIGIN_BUILD_ID after unpack = %q, want build-1", origin)
	}
}

func TestPackStreamsToStdout(t *testing.T) {
	source := newProject(t)
	recordTestTarget(t, source)

	bundleData := mustExecute(t, "", "pack", testTarget, "--project-root", source, "-o", "-")
	if !strings.HasPrefix(bundleData, "BIBUNDLE") {
		t.Fatalf("stdout does not start with the bundle magic: %q", bundleData[:min(len(bundleData), 16)])
	}

	destination := newProject(t)
	out := mustExecute(t, bundleData, "unpack", "--project-root", destination, "-i", "-", "--json")
	if !strings.Contains(out, `"target": "//foo/bar:baz"`) {
		t.Errorf("unpack output = %q", out)
	}
}

func TestPackRefusesInvalidArtifact(t *testing.T) {
	root := newProject(t)
	recordTestTarget(t, root)
	if err := os.Remove(filepath.Join(root, outputPath, "sub", "data")); err != nil {
		t.Fatal(err)
	}
	bundlePath := filepath.Join(t.TempDir(), "baz.bundle")

	if _, err := execute(t, "", "pack", testTarget, "--project-root", root, "-o", bundlePath); err == nil {
		t.Fatal("pack of an invalid artifact succeeded")
	}
	if _, err := os.Stat(bundlePath); !os.IsNotExist(err) {
		t.Errorf("failed pack left %s behind: %v", bundlePath, err)
	}
}

func TestFilesystemEngineFromConfigFile(t *testing.T) {
	root := newProject(t)
	configPath := filepath.Join(t.TempDir(), "buildinfo.yaml")
	contents := "environment: ci\nstore:\n  engine: filesystem\nfingerprint:\n  algorithm: sha256\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	recordArgs := []string{"record", testTarget, "--config", configPath, "--project-root", root,
		"--request", writeRequest(t, testRequest), "--json"}
	out := mustExecute(t, "", recordArgs...)
	if !strings.Contains(out, `"output_hash": "sha256:`) {
		t.Errorf("record output = %q, want sha256 output hash", out)
	}

	info, err := os.Stat(filepath.Join(root, "buck-out", "cache", "metadata"))
	if err != nil || !info.IsDir() {
		t.Fatalf("filesystem store directory missing: %v", err)
	}
	mustExecute(t, "", "validate", testTarget, "--config", configPath, "--project-root", root, "--policy", "content")
}

func TestConfigFromEnvironment(t *testing.T) {
	root := newProject(t)
	configPath := filepath.Join(t.TempDir(), "buildinfo.yaml")
	if err := os.WriteFile(configPath, []byte("store:\n  engine: cassandra\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvironmentVariable, configPath)

	_, err := execute(t, "", "paths", testTarget, "--project-root", root)
	if err == nil || !strings.Contains(err.Error(), "store.engine") {
		t.Errorf("error = %v, want invalid store.engine from %s", err, config.EnvironmentVariable)
	}
}

func TestSingleTargetArgument(t *testing.T) {
	root := newProject(t)
	if _, err := execute(t, "", "paths", "--project-root", root); err == nil {
		t.Error("paths without a target succeeded")
	}
	if _, err := execute(t, "", "paths", "//a:b", "//c:d", "--project-root", root); err == nil {
		t.Error("paths with two targets succeeded")
	}
	if _, err := execute(t, "", "paths", "not-a-target", "--project-root", root); err == nil {
		t.Error("paths with a malformed target succeeded")
	}
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, "", "version")
	if !strings.HasPrefix(out, "buildinfo ") {
		t.Errorf("version output = %q", out)
	}
}
