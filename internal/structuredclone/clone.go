// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package structuredclone serializes values between isolated script
// runtimes, and between a runtime and Go, preserving the subset of the HTML
// structured clone semantics that matter for message passing: undefined,
// non-finite numbers, negative zero, Date, Map, Set, Error, and shared or
// cyclic references.
package structuredclone

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const formatVersion = 1

// maxDepth bounds recursion for values without reference tracking.
const maxDepth = 10000

var (
	// ErrDataClone is returned for values that cannot be cloned, such as
	// functions and symbols.
	ErrDataClone = errors.New("structuredclone: value could not be cloned")

	// ErrMalformed is returned when decoding data not produced by this
	// package.
	ErrMalformed = errors.New("structuredclone: malformed data")
)

// node tags
const (
	tagUndefined = "u"
	tagNull      = "z"
	tagBool      = "b"
	tagNumber    = "n"
	tagString    = "s"
	tagArray     = "a"
	tagObject    = "o"
	tagDate      = "d"
	tagMap       = "m"
	tagSet       = "S"
	tagError     = "e"
	tagRef       = "r"
)

// node is the wire representation. Containers carry a non-zero ID the first
// time they appear, and are referenced by tagRef nodes afterwards. Str holds
// strings, special numbers ("NaN", "Infinity", "-Infinity", "-0"), and error
// messages.
type node struct {
	Type  string   `json:"t"`
	Str   string   `json:"s,omitempty"`
	Keys  []string `json:"k,omitempty"`
	Items []*node  `json:"i,omitempty"`
	Num   float64  `json:"n,omitempty"`
	ID    int      `json:"r,omitempty"`
	Bool  bool     `json:"b,omitempty"`
}

type document struct {
	Root    *node `json:"root"`
	Version int   `json:"v"`
}

func marshal(root *node) ([]byte, error) {
	return json.Marshal(document{Version: formatVersion, Root: root})
}

func unmarshal(data []byte) (*node, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, doc.Version)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("%w: missing root", ErrMalformed)
	}
	return doc.Root, nil
}

func numberNode(f float64) *node {
	switch {
	case math.IsNaN(f):
		return &node{Type: tagNumber, Str: "NaN"}
	case math.IsInf(f, 1):
		return &node{Type: tagNumber, Str: "Infinity"}
	case math.IsInf(f, -1):
		return &node{Type: tagNumber, Str: "-Infinity"}
	case f == 0 && math.Signbit(f):
		return &node{Type: tagNumber, Str: "-0"}
	default:
		return &node{Type: tagNumber, Num: f}
	}
}

func (n *node) number() (float64, error) {
	switch n.Str {
	case "":
		return n.Num, nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	case "-0":
		return math.Copysign(0, -1), nil
	default:
		return 0, fmt.Errorf("%w: bad number %s", ErrMalformed, strconv.Quote(n.Str))
	}
}

// entries validates that a map node holds key/value pairs.
func (n *node) entries() error {
	if len(n.Items)%2 != 0 {
		return fmt.Errorf("%w: odd map entry count", ErrMalformed)
	}
	return nil
}

func (n *node) fields() error {
	if len(n.Keys) != len(n.Items) {
		return fmt.Errorf("%w: object key count mismatch", ErrMalformed)
	}
	return nil
}
