// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package engine

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrInvalidPattern is returned by Find/FindTree when the pattern
// argument is not a well-formed absolute path with whole-segment "*"
// wildcards.
var ErrInvalidPattern = errors.New("apteryx: invalid find pattern")

// LeafConstraint is one (relative leaf suffix, expected value) pair
// of a FindTree query, matching the FIND opcode's wire payload
// (spec.md §6): a single wildcarded pattern plus a set of leaf
// constraints applied to every concrete instantiation of it.
type LeafConstraint struct {
	Leaf  string
	Value []byte
}

func splitPatternSegs(pattern string) ([]string, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, ErrInvalidPattern
	}
	if pattern == "/" {
		return nil, nil
	}
	segs := strings.Split(pattern[1:], "/")
	for _, s := range segs {
		if s == "" {
			return nil, ErrInvalidPattern
		}
	}
	return segs, nil
}

func joinPath(prefix string, seg string) string {
	if prefix == "/" {
		return "/" + seg
	}
	return prefix + "/" + seg
}

// expandConcrete enumerates every concrete path under prefix matching
// the remaining wildcarded segments, consulting the live tree
// structure at each "*" to discover which children actually exist.
func (e *Engine) expandConcrete(ctx context.Context, prefix string, remaining []string) ([]string, error) {
	if len(remaining) == 0 {
		return []string{prefix}, nil
	}
	seg, rest := remaining[0], remaining[1:]
	if seg != "*" {
		return e.expandConcrete(ctx, joinPath(prefix, seg), rest)
	}

	children, err := e.Search(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range children {
		sub, err := e.expandConcrete(ctx, c, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// FindTree resolves pattern's wildcards against the live tree and
// returns every concrete instantiation whose appended leaves all
// equal their expected value (spec.md §4.4.6's find/find_tree,
// unified by the FIND opcode's wire shape). An empty Leaf in a
// constraint tests the candidate path's own value.
func (e *Engine) FindTree(ctx context.Context, pattern string, leaves []LeafConstraint) ([]string, error) {
	segs, err := splitPatternSegs(pattern)
	if err != nil {
		return nil, err
	}
	candidates, err := e.expandConcrete(ctx, "/", segs)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(candidates))
candidate:
	for _, c := range candidates {
		for _, lc := range leaves {
			leafPath := c
			if lc.Leaf != "" {
				leafPath = joinPath(c, strings.TrimPrefix(lc.Leaf, "/"))
			}
			v, ok, err := e.Get(ctx, leafPath)
			if err != nil {
				return nil, err
			}
			if !ok || !bytes.Equal(v, lc.Value) {
				continue candidate
			}
		}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Find returns every concrete instantiation of pattern whose own
// value equals expected (spec.md §4.4.6).
func (e *Engine) Find(ctx context.Context, pattern string, expected []byte) ([]string, error) {
	return e.FindTree(ctx, pattern, []LeafConstraint{{Leaf: "", Value: expected}})
}
