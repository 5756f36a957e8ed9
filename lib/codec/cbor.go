// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// maxEntries bounds the number of pairs in one decoded map. A target
// with more metadata keys than this is a corrupt or hostile file.
const maxEntries = 1 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// buildtarget.Target serializes through MarshalText as a CBOR text
	// string rather than as an empty map of unexported fields.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// A manifest with a repeated key has two answers for one
		// question; reject it instead of keeping whichever came last.
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: maxEntries,
		// Metadata maps always use string keys. Without this an
		// any-typed target decodes to map[interface{}]interface{}.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Trailing bytes after the first
// item are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// IsDuplicateKey reports whether err came from decoding a map that
// repeats a key.
func IsDuplicateKey(err error) bool {
	var duplicate *cbor.DupMapKeyError
	return errors.As(err, &duplicate)
}
