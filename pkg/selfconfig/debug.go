// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig

import (
	"context"
	"io"
	"log"
	"strconv"
	"sync"
)

// Loggers are the three severities apteryx.Context carries, the
// apteryx analogue of danos-configd's Context.{Dlog,Elog,Wlog}.
type Loggers struct {
	Debug *log.Logger
	Error *log.Logger
	Warn  *log.Logger
}

// Debug/error/none levels, matching common.LogLevel's ordering (least
// to most verbose) so a numeric comparison decides what is enabled.
const (
	levelNone = iota
	levelError
	levelDebug
)

// debugLevels implements the /apteryx/debug watcher of spec.md §4.7: a
// single integer level gates the debug and error loggers on or off by
// swapping their output between the real writer and io.Discard,
// adapted from common.SetConfigDebug/LoggingIsEnabledAtLevel's
// per-logtype table to the single flat level spec.md's value calls for.
type debugLevels struct {
	mu    sync.Mutex
	level int

	dlog, elog         *log.Logger
	dlogReal, elogReal io.Writer
}

func newDebugLevels(l *Loggers) *debugLevels {
	d := &debugLevels{level: levelError}
	if l != nil {
		d.dlog = l.Debug
		d.elog = l.Error
		if l.Debug != nil {
			d.dlogReal = l.Debug.Writer()
		}
		if l.Error != nil {
			d.elogReal = l.Error.Writer()
		}
	}
	d.apply()
	return d
}

func (d *debugLevels) apply() {
	if d.dlog != nil {
		if d.level >= levelDebug {
			d.dlog.SetOutput(d.dlogReal)
		} else {
			d.dlog.SetOutput(io.Discard)
		}
	}
	if d.elog != nil {
		if d.level >= levelError {
			d.elog.SetOutput(d.elogReal)
		} else {
			d.elog.SetOutput(io.Discard)
		}
	}
}

// onWrite is the OnWatch callback registered at /apteryx/debug.
func (d *debugLevels) onWrite(ctx context.Context, path string, value []byte) {
	if len(value) == 0 {
		d.mu.Lock()
		d.level = levelError
		d.apply()
		d.mu.Unlock()
		return
	}
	level, err := strconv.Atoi(string(value))
	if err != nil || level < levelNone || level > levelDebug {
		return
	}
	d.mu.Lock()
	d.level = level
	d.apply()
	d.mu.Unlock()
}
