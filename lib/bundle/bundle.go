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
	"time"

	"filippo.io/age"

	"github.com/bureau-foundation/buildinfo/lib/buildinfo"
	"github.com/bureau-foundation/buildinfo/lib/buildinfostore"
	"github.com/bureau-foundation/buildinfo/lib/buildtarget"
	"github.com/bureau-foundation/buildinfo/lib/codec"
	"github.com/bureau-foundation/buildinfo/lib/projectfs"
)

const (
	formatVersion  = 1
	headerName     = "buildinfo.cbor"
	flagEncrypted  = 1 << 0
	preambleLength = len(magic) + 3
)

var magic = [8]byte{'B', 'I', 'B', 'U', 'N', 'D', 'L', 'E'}

// ErrMalformed is returned by Unpack for streams that are not bundles
// or that contain unsafe entries.
var ErrMalformed = errors.New("bundle: malformed bundle")

// header is the first tar entry of every bundle.
type header struct {
	Version  int               `cbor:"version"`
	Target   string            `cbor:"target"`
	Build    map[string]string `cbor:"build"`
	Artifact map[string]string `cbor:"artifact"`
}

// PackOptions configures Pack.
type PackOptions struct {
	Target     buildtarget.Target
	Filesystem *projectfs.Filesystem
	Store      buildinfostore.Store

	// OutputDir defaults to buildinfo.DefaultOutputDir.
	OutputDir string

	Compression Compression

	// Recipients, when non-empty, encrypt the payload with age.
	Recipients []age.Recipient

	Logger *slog.Logger
}

// Summary describes a packed or unpacked bundle.
type Summary struct {
	Target  string `json:"target"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Pack validates the target's artifact and writes it to w as a bundle.
func Pack(ctx context.Context, w io.Writer, options PackOptions) (Summary, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	onDisk, err := buildinfo.NewOnDiskBuildInfo(buildinfo.OnDiskConfig{
		Target:     options.Target,
		Filesystem: options.Filesystem,
		Store:      options.Store,
		OutputDir:  options.OutputDir,
		Logger:     logger,
	})
	if err != nil {
		return Summary{}, err
	}
	if err := onDisk.ValidateArtifact(ctx); err != nil {
		return Summary{}, fmt.Errorf("bundle: refusing to pack %s: %w", options.Target, err)
	}

	target := options.Target.String()
	build, err := options.Store.GetAll(ctx, target, buildinfostore.ScopeBuild)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: reading build metadata: %w", err)
	}
	artifact, err := options.Store.GetAll(ctx, target, buildinfostore.ScopeArtifact)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: reading artifact metadata: %w", err)
	}
	recorded, err := buildinfo.DecodePaths(artifact[string(buildinfo.KeyRecordedPaths)])
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: %w", err)
	}
	closure, err := buildinfo.RecursivePaths(options.Filesystem, recorded)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: expanding %s: %w", target, err)
	}

	headerData, err := codec.Marshal(header{
		Version:  formatVersion,
		Target:   target,
		Build:    build,
		Artifact: artifact,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: encoding header: %w", err)
	}

	var flags byte
	if len(options.Recipients) > 0 {
		flags |= flagEncrypted
	}
	preamble := make([]byte, 0, preambleLength)
	preamble = append(preamble, magic[:]...)
	preamble = append(preamble, formatVersion, byte(options.Compression), flags)
	if _, err := w.Write(preamble); err != nil {
		return Summary{}, fmt.Errorf("bundle: writing preamble: %w", err)
	}

	payload := io.WriteCloser(nopWriteCloser{w})
	if len(options.Recipients) > 0 {
		payload, err = age.Encrypt(w, options.Recipients...)
		if err != nil {
			return Summary{}, fmt.Errorf("bundle: creating age encryptor: %w", err)
		}
	}
	compressed, err := compressWriter(payload, options.Compression)
	if err != nil {
		return Summary{}, fmt.Errorf("bundle: %w", err)
	}
	archive := tar.NewWriter(compressed)

	summary := Summary{Target: target}
	if err := writeRegular(archive, headerName, 0o644, bytes.NewReader(headerData), int64(len(headerData))); err != nil {
		return Summary{}, err
	}
	for _, path := range closure {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		written, err := packPath(archive, options.Filesystem, path)
		if err != nil {
			return Summary{}, err
		}
		summary.Entries++
		summary.Bytes += written
	}

	if err := archive.Close(); err != nil {
		return Summary{}, fmt.Errorf("bundle: finishing tar stream: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return Summary{}, fmt.Errorf("bundle: finishing %s stream: %w", options.Compression, err)
	}
	if err := payload.Close(); err != nil {
		return Summary{}, fmt.Errorf("bundle: finishing encryption: %w", err)
	}

	logger.Info("artifact packed",
		"target", target,
		"entries", summary.Entries,
		"bytes", summary.Bytes,
		"compression", options.Compression.String(),
		"encrypted", len(options.Recipients) > 0,
	)
	return summary, nil
}

// packPath writes one closure path. Resolvable symlinks are
// materialized as what they point at.
func packPath(archive *tar.Writer, filesystem *projectfs.Filesystem, path string) (int64, error) {
	info, err := filesystem.Lstat(path)
	if err != nil {
		return 0, fmt.Errorf("bundle: inspecting %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		resolved, err := filesystem.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			link, err := filesystem.ReadLink(path)
			if err != nil {
				return 0, fmt.Errorf("bundle: reading link %s: %w", path, err)
			}
			return 0, writeHeader(archive, &tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     path,
				Linkname: link,
				Mode:     0o777,
			})
		}
		if err != nil {
			return 0, fmt.Errorf("bundle: following %s: %w", path, err)
		}
		info = resolved
	}

	switch {
	case info.IsDir():
		return 0, writeHeader(archive, &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     path + "/",
			Mode:     int64(info.Mode().Perm()),
		})
	case info.Mode().IsRegular():
		file, err := filesystem.Open(path)
		if err != nil {
			return 0, fmt.Errorf("bundle: opening %s: %w", path, err)
		}
		defer file.Close()
		if err := writeRegular(archive, path, info.Mode().Perm(), file, info.Size()); err != nil {
			return 0, err
		}
		return info.Size(), nil
	default:
		return 0, fmt.Errorf("bundle: %s has unsupported file type %s", path, info.Mode().Type())
	}
}

func writeHeader(archive *tar.Writer, entry *tar.Header) error {
	// Fixed timestamps keep bundles of identical artifacts identical.
	entry.ModTime = time.Unix(0, 0)
	entry.Format = tar.FormatPAX
	if err := archive.WriteHeader(entry); err != nil {
		return fmt.Errorf("bundle: writing entry %s: %w", entry.Name, err)
	}
	return nil
}

func writeRegular(archive *tar.Writer, name string, mode fs.FileMode, content io.Reader, size int64) error {
	if err := writeHeader(archive, &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode),
		Size:     size,
	}); err != nil {
		return err
	}
	written, err := io.Copy(archive, content)
	if err != nil {
		return fmt.Errorf("bundle: writing %s: %w", name, err)
	}
	if written != size {
		return fmt.Errorf("bundle: %s changed size while packing (%d != %d)", name, written, size)
	}
	return nil
}
