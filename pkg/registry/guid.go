// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package registry

import (
	"encoding/binary"
	"encoding/hex"
)

// GUID identifies a callback record by the triple spec.md §3 defines:
// the registering process, an opaque callback handle, and a content
// hash of the registration payload. The GUID is the tuple's hex
// encoding — see DESIGN.md for why this rules out a generated UUID.
type GUID struct {
	PID    int32
	Handle uint64
	Hash   uint64
}

// String returns the 40-character hex encoding of the GUID.
func (g GUID) String() string {
	var buf [20]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(g.PID))
	binary.BigEndian.PutUint64(buf[4:12], g.Handle)
	binary.BigEndian.PutUint64(buf[12:20], g.Hash)
	return hex.EncodeToString(buf[:])
}

// ParseGUID decodes a GUID previously produced by String.
func ParseGUID(s string) (GUID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 20 {
		return GUID{}, errInvalidGUID
	}
	return GUID{
		PID:    int32(binary.BigEndian.Uint32(raw[0:4])),
		Handle: binary.BigEndian.Uint64(raw[4:12]),
		Hash:   binary.BigEndian.Uint64(raw[12:20]),
	}, nil
}
