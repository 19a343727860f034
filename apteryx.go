// Copyright (c) 2018-2020, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package apteryx holds the daemon-wide Context and logger
// construction used by cmd/apteryxd, adapted from
// the teacher daemon's root package of the same shape.
package apteryx

import (
	"log"
	"log/syslog"
	"os"
	"path/filepath"
)

// Config carries the daemon's startup parameters, the apteryx
// analogue of the teacher's session/auth-heavy Config: apteryx has no
// users, groups, or capability model, so only the transport and
// logging knobs survive.
type Config struct {
	Socket   string
	Pidfile  string
	Logfile  string
	Workers  int
}

// Context bundles the loggers every package above C1-C6 shares, in
// place of the teacher's per-request auth/session Context (apteryx has
// no session concept: every connection is one originator, per
// spec.md §4.5).
type Context struct {
	Config *Config
	Dlog   *log.Logger
	Elog   *log.Logger
	Wlog   *log.Logger
}

// NewLogger mirrors configd's syslog.NewLogger wrapper: a *log.Logger
// tagged with the binary's own name, falling back to a stderr logger
// (prefixed with the same tag) when syslog is unreachable (e.g. under
// a test harness or a container with no syslog socket), rather than
// failing startup.
func NewLogger(p syslog.Priority, logFlag int) *log.Logger {
	tag := filepath.Base(os.Args[0])
	s, err := syslog.New(p, tag)
	if err != nil {
		return log.New(os.Stderr, tag+": ", logFlag)
	}
	return log.New(s, "", logFlag)
}
