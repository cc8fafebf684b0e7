// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// framePosition matches the file:line:col of a goja stack frame, e.g.
// "\tat main.js:3:9(12)".
var framePosition = regexp.MustCompile(`([^\s()]+):(\d+):(\d+)`)

// reportError forwards an uncaught error to the owner, as an error event on
// the worker object. Interrupts are not errors, and are dropped.
func (e *engine) reportError(err error) {
	if err == nil || isInterrupted(err) {
		return
	}

	rec := errorRecordOf(err, e.scope.url)

	e.metrics.scriptError()
	e.console.pageError(rec)

	e.logger.Debug().
		Err(err).
		Str("filename", rec.Filename).
		Uint64("line", uint64(rec.Line)).
		Log(`uncaught script error`)

	if perr := e.owner.PostOwnerTask(e.ctx, errorTask(e.addr, rec)); perr != nil {
		e.logger.Debug().
			Err(perr).
			Log(`dropped script error report`)
	}
}

// errorRecordOf builds the record for err. Script exceptions carry their own
// position, other errors are attributed to defaultURL.
func errorRecordOf(err error, defaultURL string) ErrorRecord {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Record
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		rec := ErrorRecord{Filename: defaultURL, Message: exceptionMessage(exc)}
		if file, line, col, ok := innermostFrame(exc.String()); ok {
			rec.Filename, rec.Line, rec.Column = file, line, col
		}
		return rec
	}

	return ErrorRecord{Message: err.Error(), Filename: defaultURL}
}

// exceptionMessage is the thrown value as a string, falling back to the
// exception's own message if no value was recorded.
func exceptionMessage(exc *goja.Exception) string {
	if v := exc.Value(); v != nil {
		return v.String()
	}
	return exc.Error()
}

// innermostFrame finds the first positioned frame in a goja stack trace.
func innermostFrame(stack string) (file string, line, col uint32, ok bool) {
	for text := range strings.Lines(stack) {
		text = strings.TrimSpace(text)
		if !strings.HasPrefix(text, "at ") {
			continue
		}
		m := framePosition.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		l, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		c, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			continue
		}
		return m[1], uint32(l), uint32(c), true
	}
	return "", 0, 0, false
}
