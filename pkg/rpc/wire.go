// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package rpc implements the apteryx wire transport (C6): length-
// prefixed binary frames over UNIX/TCP/TCP6 sockets carrying the ten
// opcodes of spec.md §6.
//
// Every frame is a 4-byte big-endian length (covering everything that
// follows) followed by a 1-byte opcode and its payload. This replaces
// the teacher daemon's JSON-over-stream framing (encoding/json over a
// net.Conn, one Request/Response object per round trip): the wire
// format here is spec-mandated, not left to the teacher's convention.
package rpc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/cpackham-atlnz/apteryx/pkg/status"
)

// Op identifies one request/reply shape on the wire (spec.md §6).
type Op byte

const (
	OpSet       Op = 0x01
	OpGet       Op = 0x02
	OpSearch    Op = 0x03
	OpTraverse  Op = 0x04
	OpPrune     Op = 0x05
	OpTimestamp Op = 0x06
	OpFind      Op = 0x07
	OpQuery     Op = 0x08
	OpMemuse    Op = 0x09
	OpTest      Op = 0x10
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpGet:
		return "GET"
	case OpSearch:
		return "SEARCH"
	case OpTraverse:
		return "TRAVERSE"
	case OpPrune:
		return "PRUNE"
	case OpTimestamp:
		return "TIMESTAMP"
	case OpFind:
		return "FIND"
	case OpQuery:
		return "QUERY"
	case OpMemuse:
		return "MEMUSE"
	case OpTest:
		return "TEST"
	default:
		return "UNKNOWN"
	}
}

// ErrProtocol marks a malformed frame or unknown opcode; per spec.md
// §7 "Protocol" errors, the connection is closed rather than answered.
var ErrProtocol = errors.New("apteryx: malformed frame")

// maxFrameBytes bounds a single frame to defend the server against a
// runaway length prefix exhausting memory (spec.md §7's "Resource"
// failure class).
const maxFrameBytes = 64 << 20

// readFrame reads one length-prefixed frame and splits it into its
// opcode and remaining payload bytes.
func readFrame(r io.Reader) (Op, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || uint64(n) > maxFrameBytes {
		return 0, nil, ErrProtocol
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return Op(body[0]), body[1:], nil
}

// writeFrame writes op and payload as one length-prefixed frame.
func writeFrame(w io.Writer, op Op, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+1))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if bw, ok := w.(*bufio.Writer); ok {
		if err := bw.WriteByte(byte(op)); err != nil {
			return err
		}
		if _, err := bw.Write(payload); err != nil {
			return err
		}
		return bw.Flush()
	}
	if _, err := w.Write([]byte{byte(op)}); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// --- scalar encode/decode helpers, all length-prefixed (spec.md §6:
// "length prefix wins" when both a NUL terminator and a length prefix
// could apply) ---

type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }

func (e *encoder) byt(v byte) { e.buf = append(e.buf, v) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// bytesOptional encodes an absent value as length 0xFFFFFFFF, distinct
// from a present empty value (length 0), matching spec.md §3's "empty
// byte-string means delete" needing to stay distinguishable from "no
// value at all" on the wire.
const absentMarker = 0xFFFFFFFF

func (e *encoder) bytesOptional(b []byte, ok bool) {
	if !ok {
		e.u32(absentMarker)
		return
	}
	e.bytes(b)
}

type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) u32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrProtocol
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrProtocol
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) i32() (int32, error) {
	v, err := d.u32()
	return int32(v), err
}

func (d *decoder) byt() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, ErrProtocol
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n == absentMarker {
		return nil, nil
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, ErrProtocol
	}
	v := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return v, nil
}

func (d *decoder) bytesOptional() ([]byte, bool, error) {
	if d.pos+4 > len(d.buf) {
		return nil, false, ErrProtocol
	}
	n := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	if n == absentMarker {
		d.pos += 4
		return nil, false, nil
	}
	b, err := d.bytes()
	return b, true, err
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) done() bool { return d.pos >= len(d.buf) }

// statusReply encodes a single status:i32 reply payload, the shape
// shared by SET and PRUNE replies.
func statusReply(err error) []byte {
	var e encoder
	e.i32(int32(status.CodeOf(err)))
	return e.buf
}

func statusFromReply(payload []byte) error {
	d := newDecoder(payload)
	code, err := d.i32()
	if err != nil {
		return err
	}
	if status.Code(code) == status.OK {
		return nil
	}
	return status.New(status.Code(code), "apteryx: remote returned "+status.Code(code).String())
}
