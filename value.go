// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"github.com/joeycumines/go-dedicatedworker/internal/structuredclone"
)

// Go representations of structured-clone values without a native
// counterpart.
type (
	Undefined   = structuredclone.Undefined
	Map         = structuredclone.Map
	MapEntry    = structuredclone.Entry
	Set         = structuredclone.Set
	ClonedError = structuredclone.Error
)

var (
	// ErrDataClone is returned when a value cannot be cloned.
	ErrDataClone = structuredclone.ErrDataClone
	// ErrMalformedClone is returned when decoding invalid data.
	ErrMalformedClone = structuredclone.ErrMalformed
)

// EncodeValue serializes a Go value, for [Handle.PostMessage]. See
// [DecodeValue] for the mapping.
func EncodeValue(v any) ([]byte, error) {
	return structuredclone.Encode(v)
}

// DecodeValue deserializes a structured-clone payload. Arrays decode as
// []any, objects as map[string]any, numbers as float64, Date as
// [time.Time], Map as [*Map], Set as [*Set], Error as [*ClonedError], and
// undefined as [Undefined].
func DecodeValue(data []byte) (any, error) {
	return structuredclone.Decode(data)
}
