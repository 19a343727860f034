// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"strings"

	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

// leafTS is one (path, value, expected-timestamp) triple of a SET
// request's repeated leaf list (spec.md §6).
type leafTS struct {
	Path  string
	Value []byte
	Ts    int64
}

type setRequest struct {
	Leaves []leafTS
	// FinalTs gates the whole batch, per spec.md §6's "final ts:u64
	// for CAS": zero means an unconditional set.
	FinalTs int64
}

func encodeSetRequest(req setRequest) []byte {
	var e encoder
	e.u32(uint32(len(req.Leaves)))
	for _, l := range req.Leaves {
		e.str(l.Path)
		e.bytes(l.Value)
		e.i64(l.Ts)
	}
	e.i64(req.FinalTs)
	return e.buf
}

func decodeSetRequest(payload []byte) (setRequest, error) {
	d := newDecoder(payload)
	n, err := d.u32()
	if err != nil {
		return setRequest{}, err
	}
	req := setRequest{Leaves: make([]leafTS, n)}
	for i := range req.Leaves {
		path, err := d.str()
		if err != nil {
			return setRequest{}, err
		}
		value, err := d.bytes()
		if err != nil {
			return setRequest{}, err
		}
		ts, err := d.i64()
		if err != nil {
			return setRequest{}, err
		}
		req.Leaves[i] = leafTS{Path: path, Value: value, Ts: ts}
	}
	req.FinalTs, err = d.i64()
	if err != nil {
		return setRequest{}, err
	}
	return req, nil
}

// commonAncestor returns the longest path prefix shared by every leaf,
// used as SetTree's CAS gate path when a SET request batches multiple
// leaves under one expected timestamp (spec.md §6 does not carry a
// separate root-path field, so the root is inferred from the batch).
func commonAncestor(paths []string) string {
	if len(paths) == 0 {
		return "/"
	}
	segsOf := func(p string) []string {
		if p == "/" {
			return nil
		}
		return strings.Split(strings.TrimPrefix(p, "/"), "/")
	}
	common := segsOf(paths[0])
	for _, p := range paths[1:] {
		segs := segsOf(p)
		i := 0
		for i < len(common) && i < len(segs) && common[i] == segs[i] {
			i++
		}
		common = common[:i]
	}
	if len(common) == 0 {
		return "/"
	}
	return "/" + strings.Join(common, "/")
}

func encodeGetRequest(path string) []byte {
	var e encoder
	e.str(path)
	return e.buf
}

func decodeGetRequest(payload []byte) (string, error) {
	return newDecoder(payload).str()
}

func encodeGetReply(value []byte, ok bool) []byte {
	var e encoder
	e.bytesOptional(value, ok)
	return e.buf
}

func decodeGetReply(payload []byte) ([]byte, bool, error) {
	return newDecoder(payload).bytesOptional()
}

func encodeStringListReply(list []string) []byte {
	var e encoder
	e.u32(uint32(len(list)))
	for _, s := range list {
		e.str(s)
	}
	return e.buf
}

func decodeStringListReply(payload []byte) ([]string, error) {
	d := newDecoder(payload)
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = d.str()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeTreeReply(entries []tree.PrunedEntry) []byte {
	var e encoder
	e.u32(uint32(len(entries)))
	for _, pe := range entries {
		e.str(pe.Path)
		e.bytes(pe.Value)
	}
	return e.buf
}

func decodeTreeReply(payload []byte) ([]tree.PrunedEntry, error) {
	d := newDecoder(payload)
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]tree.PrunedEntry, n)
	for i := range out {
		path, err := d.str()
		if err != nil {
			return nil, err
		}
		value, err := d.bytes()
		if err != nil {
			return nil, err
		}
		out[i] = tree.PrunedEntry{Path: path, Value: value}
	}
	return out, nil
}

type pruneRequest struct {
	Path string
	Ts   int64
}

func encodePruneRequest(req pruneRequest) []byte {
	var e encoder
	e.str(req.Path)
	e.i64(req.Ts)
	return e.buf
}

func decodePruneRequest(payload []byte) (pruneRequest, error) {
	d := newDecoder(payload)
	path, err := d.str()
	if err != nil {
		return pruneRequest{}, err
	}
	ts, err := d.i64()
	if err != nil {
		return pruneRequest{}, err
	}
	return pruneRequest{Path: path, Ts: ts}, nil
}

func encodeTimestampReply(ts int64) []byte {
	var e encoder
	e.i64(ts)
	return e.buf
}

func decodeTimestampReply(payload []byte) (int64, error) {
	return newDecoder(payload).i64()
}

type findRequest struct {
	Pattern string
	Leaves  []LeafValue
}

// LeafValue is one (relative leaf suffix, expected value) constraint
// of a FIND request, exported so rpc.Client callers can build one
// without reaching into package-internal wire types.
type LeafValue struct {
	Leaf  string
	Value []byte
}

func encodeFindRequest(req findRequest) []byte {
	var e encoder
	e.str(req.Pattern)
	e.u32(uint32(len(req.Leaves)))
	for _, l := range req.Leaves {
		e.str(l.Leaf)
		e.bytes(l.Value)
	}
	return e.buf
}

func decodeFindRequest(payload []byte) (findRequest, error) {
	d := newDecoder(payload)
	pattern, err := d.str()
	if err != nil {
		return findRequest{}, err
	}
	n, err := d.u32()
	if err != nil {
		return findRequest{}, err
	}
	leaves := make([]LeafValue, n)
	for i := range leaves {
		leaf, err := d.str()
		if err != nil {
			return findRequest{}, err
		}
		value, err := d.bytes()
		if err != nil {
			return findRequest{}, err
		}
		leaves[i] = LeafValue{Leaf: leaf, Value: value}
	}
	return findRequest{Pattern: pattern, Leaves: leaves}, nil
}

// queryRequest carries a query template as a flat list of paths whose
// "*" segments mark a search-expand point, reassembled into a
// engine.QueryNode tree server-side (see buildQueryTree).
type queryRequest struct {
	TemplatePaths []string
}

func encodeQueryRequest(req queryRequest) []byte {
	return encodeStringListReply(req.TemplatePaths)
}

func decodeQueryRequest(payload []byte) (queryRequest, error) {
	paths, err := decodeStringListReply(payload)
	if err != nil {
		return queryRequest{}, err
	}
	return queryRequest{TemplatePaths: paths}, nil
}

func encodeMemuseRequest(path string) []byte {
	var e encoder
	e.str(path)
	return e.buf
}

func decodeMemuseRequest(payload []byte) (string, error) {
	return newDecoder(payload).str()
}

func encodeMemuseReply(n int64) []byte {
	var e encoder
	e.u64(uint64(n))
	return e.buf
}

func decodeMemuseReply(payload []byte) (int64, error) {
	v, err := newDecoder(payload).u64()
	return int64(v), err
}

type testRequest struct {
	Mode byte
	Echo string
}

func encodeTestRequest(req testRequest) []byte {
	var e encoder
	e.byt(req.Mode)
	e.str(req.Echo)
	return e.buf
}

func decodeTestRequest(payload []byte) (testRequest, error) {
	d := newDecoder(payload)
	mode, err := d.byt()
	if err != nil {
		return testRequest{}, err
	}
	echo, err := d.str()
	if err != nil {
		return testRequest{}, err
	}
	return testRequest{Mode: mode, Echo: echo}, nil
}

func encodeTestReply(echo string) []byte {
	var e encoder
	e.str(echo)
	return e.buf
}

func decodeTestReply(payload []byte) (string, error) {
	return newDecoder(payload).str()
}
