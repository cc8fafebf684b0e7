// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
)

func TestWorkerLogger_fields(t *testing.T) {
	var buf bytes.Buffer
	parent := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	workerLogger(parent, "w1", "i1", 7).Info().Log(`hello`)

	out := buf.String()
	assert.Contains(t, out, `"worker":"w1","instance":"i1","address":"7"`)
	assert.Contains(t, out, `"msg":"hello"`)
}

func TestWorkerLogger_nilParent(t *testing.T) {
	l := workerLogger(nil, "w1", "i1", 7)
	// a nil logger is a no-op
	l.Info().Log(`ignored`)
}

func TestLogThrottle(t *testing.T) {
	x := newLogThrottle(map[time.Duration]int{time.Minute: 1})
	a, b := reflect.TypeOf(unknownControl{}), reflect.TypeOf(&EvaluateScript{})

	assert.True(t, x.allow(a))
	assert.False(t, x.allow(a))
	assert.True(t, x.allow(b))
	assert.False(t, x.allow(b))

	var nilThrottle *logThrottle
	assert.True(t, nilThrottle.allow(a))
}
