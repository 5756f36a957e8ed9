// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package buildinfostore

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockTarget takes an exclusive flock on path, creating it if needed.
// flock locks belong to the open file description, so two goroutines
// in one process that each call lockTarget exclude each other just as
// two processes do.
func lockTarget(path string) (unlock func(), err error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return func() {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
	}, nil
}
