// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package status carries the wire-level status taxonomy of spec.md §6
// and §7 across package boundaries: the engine and the RPC codec both
// speak the same Code.
package status

import "fmt"

// Code is a 32-bit signed status as carried on the wire; negative
// values are errors, zero is success (spec.md §6).
type Code int32

const (
	OK         Code = 0
	EPERM      Code = -1   // validator refusal
	EBUSY      Code = -16  // CAS conflict
	ETIMEDOUT  Code = -110 // callback or RPC timeout
	EINVAL     Code = -22  // malformed path
	ERANGE     Code = -34  // value does not parse as requested type
)

// String renders a Code by its errno-style name, for logging.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case EPERM:
		return "EPERM"
	case EBUSY:
		return "EBUSY"
	case ETIMEDOUT:
		return "ETIMEDOUT"
	case EINVAL:
		return "EINVAL"
	case ERANGE:
		return "ERANGE"
	default:
		return "EUNKNOWN"
	}
}

// Error pairs a wire status code with a human-readable message.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds an *Error with the given code and message.
func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Permission, Busy, TimedOut, InvalidPath and Range are convenience
// constructors for the five named failure modes of spec.md §7.
func Permission(msg string) *Error  { return New(EPERM, msg) }
func Busy(msg string) *Error        { return New(EBUSY, msg) }
func TimedOut(msg string) *Error    { return New(ETIMEDOUT, msg) }
func InvalidPath(msg string) *Error { return New(EINVAL, msg) }
func Range(msg string) *Error       { return New(ERANGE, msg) }

// CodeOf maps any error to its wire status code: Code(0) for nil,
// the embedded Code for an *Error, or a generic EINVAL otherwise (a
// malformed-frame catch-all, per spec.md §7 "Protocol").
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if se, ok := err.(*Error); ok {
		return se.Code
	}
	return EINVAL
}

// Is reports whether err is a status *Error with the given code.
func Is(err error, code Code) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}
