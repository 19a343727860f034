// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package engine

import (
	"context"

	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

// QueryNode shapes a batched read (spec.md §4.4.6's query: "a single
// RPC that performs a server-side combination of get and search").
// A node with no Children is a leaf: its path is resolved with Get.
// A node with Children is an interior node: if a child named "*" is
// present, that child's own Children act as a template repeated over
// every name Search discovers under the parent, mirroring the way a
// client would otherwise issue its own search-then-get round trips.
type QueryNode struct {
	Name     string
	Children []*QueryNode
}

// Query resolves root (whose own Name is never consulted; callers
// drive the walk from an explicit basePath) against the live store.
func (e *Engine) Query(ctx context.Context, basePath string, root *QueryNode) ([]tree.PrunedEntry, error) {
	var out []tree.PrunedEntry
	if err := e.queryWalk(ctx, basePath, root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) queryWalk(ctx context.Context, path string, node *QueryNode, out *[]tree.PrunedEntry) error {
	if len(node.Children) == 0 {
		value, ok, err := e.Get(ctx, path)
		if err != nil {
			return err
		}
		if ok {
			*out = append(*out, tree.PrunedEntry{Path: path, Value: value})
		}
		return nil
	}

	for _, child := range node.Children {
		if child.Name == "*" {
			names, err := e.Search(ctx, path)
			if err != nil {
				return err
			}
			for _, full := range names {
				if err := e.queryWalk(ctx, full, child, out); err != nil {
					return err
				}
			}
			continue
		}
		if err := e.queryWalk(ctx, joinPath(path, child.Name), child, out); err != nil {
			return err
		}
	}
	return nil
}
