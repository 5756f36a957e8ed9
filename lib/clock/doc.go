// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall-clock source.
//
// Build metadata carries timestamps (the ADDITIONAL_INFO record written
// by the recorder), and those timestamps must be reproducible in tests.
// Production code takes a Clock and uses Real(); tests use Fake() and
// move time explicitly with Advance or Set.
//
//	c := clock.Fake(time.Unix(1, 0))
//	recorder, err := buildinfo.NewRecorder(buildinfo.RecorderConfig{Clock: c, ...})
package clock
