// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package registry

import "sort"

// trieNode is one segment position in a kind's pattern trie. Concrete
// children are keyed by literal segment name; star is the single
// wildcard child. A node may carry records terminating in any of the
// three trailing forms simultaneously (e.g. both "/a/b" and "/a/b/"
// can be registered at once).
type trieNode struct {
	children map[string]*trieNode
	star     *trieNode

	exact    []*Record
	oneLevel []*Record
	allBelow []*Record
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// insert walks/creates the path for segs and appends rec at the node
// per its trailing form.
func (n *trieNode) insert(segs []string, trail trailKind, rec *Record) {
	cur := n
	for _, s := range segs {
		var child *trieNode
		if s == star {
			if cur.star == nil {
				cur.star = newTrieNode()
			}
			child = cur.star
		} else {
			c, ok := cur.children[s]
			if !ok {
				c = newTrieNode()
				cur.children[s] = c
			}
			child = c
		}
		cur = child
	}
	switch trail {
	case trailOneLevel:
		cur.oneLevel = append(cur.oneLevel, rec)
	case trailAllBelow:
		cur.allBelow = append(cur.allBelow, rec)
	default:
		cur.exact = append(cur.exact, rec)
	}
}

// remove deletes rec from the node its pattern terminates at.
func (n *trieNode) remove(segs []string, trail trailKind, rec *Record) {
	cur := n
	for _, s := range segs {
		if s == star {
			if cur.star == nil {
				return
			}
			cur = cur.star
		} else {
			c, ok := cur.children[s]
			if !ok {
				return
			}
			cur = c
		}
	}
	switch trail {
	case trailOneLevel:
		cur.oneLevel = removeRecord(cur.oneLevel, rec)
	case trailAllBelow:
		cur.allBelow = removeRecord(cur.allBelow, rec)
	default:
		cur.exact = removeRecord(cur.exact, rec)
	}
}

func removeRecord(list []*Record, rec *Record) []*Record {
	out := list[:0]
	for _, r := range list {
		if r != rec {
			out = append(out, r)
		}
	}
	return out
}

// matchHit is one candidate record plus the specificity metrics used
// to rank it (spec.md §4.2: "most-specific first (fewer wildcards,
// deeper matches rank earlier); ties break by registration order").
type matchHit struct {
	rec       *Record
	wildcards int
	depth     int
}

// collectMatches walks the trie against a concrete segment list,
// gathering every record whose pattern matches exactly. Registry.Search
// uses collectSearchMatches instead, and Registry.Exists uses
// hasCompatiblePattern.
func collectMatches(n *trieNode, segs []string, wildcards, depth int, out *[]matchHit) {
	if len(segs) == 0 {
		for _, r := range n.exact {
			*out = append(*out, matchHit{r, wildcards, depth})
		}
		return
	}
	if len(segs) == 1 {
		for _, r := range n.oneLevel {
			*out = append(*out, matchHit{r, wildcards, depth})
		}
	}
	for _, r := range n.allBelow {
		*out = append(*out, matchHit{r, wildcards, depth})
	}

	first, rest := segs[0], segs[1:]
	if c, ok := n.children[first]; ok {
		collectMatches(c, rest, wildcards, depth+1, out)
	}
	if n.star != nil {
		collectMatches(n.star, rest, wildcards+1, depth+1, out)
	}
}

// sortMatches orders hits most-specific-first with registration order
// as the final tiebreaker.
func sortMatches(hits []matchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.wildcards != b.wildcards {
			return a.wildcards < b.wildcards
		}
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		return a.rec.seq < b.rec.seq
	})
}

// hasCompatiblePattern walks every registered pattern under this trie
// (regardless of kind-specific trail) and reports whether
// any pattern's concrete (pre-wildcard) prefix is compatible with
// prefixSegs — i.e. one is a segment-wise prefix of the other. This
// backs Registry.Exists, spec.md's "cheap predicate used to decide
// whether to consult indexers/providers/refreshers".
func (n *trieNode) hasCompatiblePattern(prefixSegs []string) bool {
	return n.walkCompatible(prefixSegs)
}

// walkAll appends every record reachable from n, regardless of trail
// kind or pattern shape, to out. Used by Registry.All to give
// /apteryx/statistics/* a full walk of one kind's registrations.
func (n *trieNode) walkAll(out *[]*Record) {
	*out = append(*out, n.exact...)
	*out = append(*out, n.oneLevel...)
	*out = append(*out, n.allBelow...)
	for _, c := range n.children {
		c.walkAll(out)
	}
	if n.star != nil {
		n.star.walkAll(out)
	}
}

func (n *trieNode) walkCompatible(remaining []string) bool {
	if len(n.exact) > 0 || len(n.oneLevel) > 0 || len(n.allBelow) > 0 {
		return true
	}
	if len(remaining) == 0 {
		// Any pattern continuing below this node is still
		// compatible with a prefix that ends exactly here.
		return len(n.children) > 0 || n.star != nil
	}
	first, rest := remaining[0], remaining[1:]
	if c, ok := n.children[first]; ok && c.walkCompatible(rest) {
		return true
	}
	if n.star != nil && n.star.walkCompatible(rest) {
		return true
	}
	return false
}
