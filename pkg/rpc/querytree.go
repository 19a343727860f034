// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"strings"

	"github.com/cpackham-atlnz/apteryx/pkg/engine"
)

// buildQueryTree reassembles a flat list of "*"-marked template paths
// (the QUERY opcode's wire shape) into the engine.QueryNode tree
// Engine.Query walks, merging paths that share a prefix into the same
// branch.
func buildQueryTree(paths []string) *engine.QueryNode {
	root := &engine.QueryNode{}
	for _, p := range paths {
		insertTemplatePath(root, p)
	}
	return root
}

func insertTemplatePath(root *engine.QueryNode, path string) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	cur := root
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		var next *engine.QueryNode
		for _, c := range cur.Children {
			if c.Name == seg {
				next = c
				break
			}
		}
		if next == nil {
			next = &engine.QueryNode{Name: seg}
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
}

// flattenQueryTree is the client-side inverse of buildQueryTree: it
// turns a QueryNode the caller built up into the flat template-path
// list the QUERY opcode carries on the wire.
func flattenQueryTree(node *engine.QueryNode, prefix string, out *[]string) {
	if len(node.Children) == 0 {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}
	for _, c := range node.Children {
		flattenQueryTree(c, prefix+"/"+c.Name, out)
	}
}
