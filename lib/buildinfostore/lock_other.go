// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package buildinfostore

import "sync"

var targetLocks sync.Map

// lockTarget serializes writers within this process only. Platforms
// without flock get no cross-process exclusion.
func lockTarget(path string) (unlock func(), err error) {
	value, _ := targetLocks.LoadOrStore(path, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock, nil
}
