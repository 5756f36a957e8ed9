// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/clock"
	"github.com/bureau-foundation/buildinfo/lib/codec"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

// maxHeaderSize bounds the metadata header entry.
const maxHeaderSize = 64 << 20

// UnpackOptions configures Unpack.
type UnpackOptions struct {
	Filesystem *projectfs.Filesystem
	Store      buildinfostore.Store

	// OutputDir defaults to buildinfo.DefaultOutputDir.
	OutputDir string

	// Identities decrypt encrypted bundles.
	Identities []age.Identity

	// BuildID identifies this unpack in the regenerated
	// ADDITIONAL_INFO. The original ORIGIN_BUILD_ID is preserved.
	BuildID string

	// Policy is used for the final validation.
	Policy buildinfo.Policy

	Clock  clock.Clock
	Logger *slog.Logger
}

// Unpack reads a bundle from r, writes its files into the project,
// commits its metadata (replacing whatever the target had), and
// validates the result. It returns the unpacked target.
func Unpack(ctx context.Context, r io.Reader, options UnpackOptions) (buildtarget.Target, Summary, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	compression, encrypted, err := readPreamble(r)
	if err != nil {
		return buildtarget.Target{}, Summary{}, err
	}

	payload := r
	if encrypted {
		if len(options.Identities) == 0 {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("bundle: bundle is encrypted and no identities were given")
		}
		payload, err = age.Decrypt(r, options.Identities...)
		if err != nil {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("bundle: decrypting: %w", err)
		}
	}
	decompressed, release, err := decompressReader(payload, compression)
	if err != nil {
		return buildtarget.Target{}, Summary{}, fmt.Errorf("bundle: %w", err)
	}
	defer release()
	archive := tar.NewReader(decompressed)

	bundleHeader, err := readHeader(archive)
	if err != nil {
		return buildtarget.Target{}, Summary{}, err
	}
	target, err := buildtarget.Parse(bundleHeader.Target)
	if err != nil {
		return buildtarget.Target{}, Summary{}, fmt.Errorf("%w: header target: %v", ErrMalformed, err)
	}
	recorded, err := buildinfo.DecodePaths(bundleHeader.Artifact[string(buildinfo.KeyRecordedPaths)])
	if err != nil {
		return buildtarget.Target{}, Summary{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Outputs from a previous build of the target would otherwise mix
	// with the unpacked ones.
	for _, recordedPath := range recorded {
		if recordedPath == "." {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("%w: recorded path is the project root", ErrMalformed)
		}
		if err := options.Filesystem.RemoveAll(recordedPath); err != nil {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("bundle: clearing %s: %w", recordedPath, err)
		}
	}

	summary := Summary{Target: target.String()}
	links := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return buildtarget.Target{}, Summary{}, err
		}
		entry, err := archive.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err != nil {
			return buildtarget.Target{}, Summary{}, fmt.Errorf("bundle: reading entry: %w", err)
		}
		written, err := unpackEntry(archive, entry, options.Filesystem, links)
		if err != nil {
			return buildtarget.Target{}, Summary{}, err
		}
		summary.Entries++
		summary.Bytes += written
	}

	if err := commitHeader(ctx, target, bundleHeader, recorded, options, logger); err != nil {
		return buildtarget.Target{}, Summary{}, err
	}

	onDisk, err := buildinfo.NewOnDiskBuildInfo(buildinfo.OnDiskConfig{
		Target:     target,
		Filesystem: options.Filesystem,
		Store:      options.Store,
		OutputDir:  options.OutputDir,
		Policy:     options.Policy,
		Logger:     logger,
	})
	if err != nil {
		return buildtarget.Target{}, Summary{}, err
	}
	if err := onDisk.ValidateArtifact(ctx); err != nil {
		return target, summary, fmt.Errorf("bundle: unpacked artifact %s does not validate: %w", target, err)
	}

	logger.Info("artifact unpacked",
		"target", target.String(),
		"entries", summary.Entries,
		"bytes", summary.Bytes,
	)
	return target, summary, nil
}

func readPreamble(r io.Reader) (Compression, bool, error) {
	preamble := make([]byte, preambleLength)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return 0, false, fmt.Errorf("%w: reading preamble: %v", ErrMalformed, err)
	}
	if !bytes.Equal(preamble[:len(magic)], magic[:]) {
		return 0, false, fmt.Errorf("%w: not a bundle", ErrMalformed)
	}
	version := preamble[len(magic)]
	if version != formatVersion {
		return 0, false, fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}
	compression := Compression(preamble[len(magic)+1])
	flags := preamble[len(magic)+2]
	return compression, flags&flagEncrypted != 0, nil
}

func readHeader(archive *tar.Reader) (*header, error) {
	entry, err := archive.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header entry: %v", ErrMalformed, err)
	}
	if entry.Name != headerName || entry.Typeflag != tar.TypeReg {
		return nil, fmt.Errorf("%w: first entry is %q, want %q", ErrMalformed, entry.Name, headerName)
	}
	if entry.Size > maxHeaderSize {
		return nil, fmt.Errorf("%w: header entry is %d bytes", ErrMalformed, entry.Size)
	}
	data, err := io.ReadAll(archive)
	if err != nil {
		return nil, fmt.Errorf("bundle: reading header: %w", err)
	}
	var bundleHeader header
	if err := codec.Unmarshal(data, &bundleHeader); err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", ErrMalformed, err)
	}
	if bundleHeader.Version != formatVersion {
		return nil, fmt.Errorf("%w: header version %d", ErrMalformed, bundleHeader.Version)
	}
	return &bundleHeader, nil
}

// unpackEntry writes one tar entry. links tracks symlinks written so
// far; no later entry may be written through one.
func unpackEntry(archive *tar.Reader, entry *tar.Header, filesystem *projectfs.Filesystem, links map[string]struct{}) (int64, error) {
	name, err := projectfs.Clean(strings.TrimSuffix(entry.Name, "/"))
	if err != nil {
		return 0, fmt.Errorf("%w: entry %q: %v", ErrMalformed, entry.Name, err)
	}
	for parent := path.Dir(name); parent != "."; parent = path.Dir(parent) {
		if _, throughLink := links[parent]; throughLink {
			return 0, fmt.Errorf("%w: entry %s is inside symlink %s", ErrMalformed, name, parent)
		}
	}

	switch entry.Typeflag {
	case tar.TypeDir:
		if err := filesystem.Mkdirs(name); err != nil {
			return 0, fmt.Errorf("bundle: creating %s: %w", name, err)
		}
		return 0, nil

	case tar.TypeReg:
		if err := filesystem.CreateParentDirs(name); err != nil {
			return 0, fmt.Errorf("bundle: creating parent of %s: %w", name, err)
		}
		// A symlink already in the project must not redirect the
		// write outside it.
		if _, err := filesystem.RealPath(path.Dir(name)); err != nil {
			return 0, fmt.Errorf("bundle: resolving parent of %s: %w", name, err)
		}
		absolute, err := filesystem.Resolve(name)
		if err != nil {
			return 0, err
		}
		if err := writeEntryFile(absolute, archive, fs.FileMode(entry.Mode).Perm()); err != nil {
			return 0, fmt.Errorf("bundle: writing %s: %w", name, err)
		}
		return entry.Size, nil

	case tar.TypeSymlink:
		if path.IsAbs(entry.Linkname) {
			return 0, fmt.Errorf("%w: symlink %s has absolute target %s", ErrMalformed, name, entry.Linkname)
		}
		if err := filesystem.CreateParentDirs(name); err != nil {
			return 0, fmt.Errorf("bundle: creating parent of %s: %w", name, err)
		}
		if err := filesystem.RemoveIfExists(name); err != nil {
			return 0, fmt.Errorf("bundle: replacing %s: %w", name, err)
		}
		if err := filesystem.CreateSymlink(name, entry.Linkname); err != nil {
			return 0, fmt.Errorf("bundle: creating symlink %s: %w", name, err)
		}
		links[name] = struct{}{}
		return 0, nil

	default:
		return 0, fmt.Errorf("%w: entry %s has unsupported type %q", ErrMalformed, name, entry.Typeflag)
	}
}

// commitHeader records the bundle's metadata for target, replacing
// whatever the target had. ADDITIONAL_INFO is regenerated for this
// unpack.
func commitHeader(ctx context.Context, target buildtarget.Target, bundleHeader *header, recorded []string, options UnpackOptions, logger *slog.Logger) error {
	recorder, err := buildinfo.NewRecorder(buildinfo.RecorderConfig{
		Target:       target,
		Filesystem:   options.Filesystem,
		Store:        options.Store,
		Clock:        options.Clock,
		BuildID:      options.BuildID,
		OutputDir:    options.OutputDir,
		ArtifactData: "bundle",
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	for key, value := range bundleHeader.Build {
		if buildinfo.BuildKey(key) == buildinfo.KeyAdditionalInfo {
			continue
		}
		recorder.AddBuildMetadata(buildinfo.BuildKey(key), value)
	}
	for key, value := range bundleHeader.Artifact {
		recorder.AddMetadata(buildinfo.ArtifactKey(key), value)
	}
	for _, recordedPath := range recorded {
		if err := recorder.RecordArtifact(recordedPath); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := recorder.WriteMetadataToDisk(ctx, true); err != nil {
		if errors.Is(err, buildinfo.ErrUsage) {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return fmt.Errorf("bundle: committing metadata for %s: %w", target, err)
	}
	return nil
}
