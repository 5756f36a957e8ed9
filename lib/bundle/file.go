// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"io"
	"io/fs"
	"os"
)

// writeEntryFile creates (or truncates) the file at absolute and copies
// content into it.
func writeEntryFile(absolute string, content io.Reader, mode fs.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	file, err := os.OpenFile(absolute, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
