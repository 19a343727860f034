// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package registry implements the apteryx callback registry (C2): the
// table of watcher/validator/provider/refresher/indexer/proxy
// registrations, keyed by possibly-wildcarded paths, with
// longest-prefix/most-specific matching.
package registry

import (
	"sync"
)

// Registry holds every callback registration, organized as one trie
// per kind (spec.md §4.2). Its own RWMutex is acquired independently
// of the path tree's lock; per spec.md §5's lock ordering
// (registry → refresh cache → tree), callers must never hold the tree
// lock while calling into the registry.
type Registry struct {
	mu    sync.RWMutex
	roots [numKinds]*trieNode
	byGUID map[GUID]*Record
	seq   uint64
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{byGUID: make(map[GUID]*Record)}
	for i := range r.roots {
		r.roots[i] = newTrieNode()
	}
	return r
}

// Registration describes a new callback record to create.
type Registration struct {
	Kind     Kind
	Pattern  string
	PID      int32
	Handle   uint64
	Hash     uint64
	ProxyURI string

	OnWatch     WatchFunc
	OnWatchTree WatchTreeFunc
	OnValidate  ValidateFunc
	OnProvide   ProvideFunc
	OnRefresh   RefreshFunc
	OnIndex     IndexFunc
}

// Register creates and inserts a new record, returning it. The
// record's GUID is created when the registry path is written with a
// non-empty value (spec.md §3); callers at the RPC/self-config layer
// are responsible for that lifecycle trigger.
func (r *Registry) Register(reg Registration) (*Record, error) {
	segs, trail, err := parsePattern(reg.Pattern)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Kind:     reg.Kind,
		Pattern:  reg.Pattern,
		ProxyURI: reg.ProxyURI,
		segs:     segs,
		trail:    trail,
		guid: GUID{
			PID:    reg.PID,
			Handle: reg.Handle,
			Hash:   reg.Hash,
		},
		OnWatch:     reg.OnWatch,
		OnWatchTree: reg.OnWatchTree,
		OnValidate:  reg.OnValidate,
		OnProvide:   reg.OnProvide,
		OnRefresh:   reg.OnRefresh,
		OnIndex:     reg.OnIndex,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.seq = r.seq
	r.roots[reg.Kind].insert(segs, trail, rec)
	r.byGUID[rec.guid] = rec
	return rec, nil
}

// Deregister removes a record, identified by its GUID, from its kind's
// trie. It stays reachable via any refcount already taken out by an
// in-flight dispatch, per spec.md §4.2: "kept alive until its refcount
// reaches zero."
func (r *Registry) Deregister(guid GUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byGUID[guid]
	if !ok {
		return false
	}
	delete(r.byGUID, guid)
	r.roots[rec.Kind].remove(rec.segs, rec.trail, rec)
	return true
}

// Lookup returns the record for a GUID, used by self-configuration
// writes that target an existing registration (e.g. disabling it).
func (r *Registry) Lookup(guid GUID) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byGUID[guid]
	return rec, ok
}

// Match returns every enabled record of kind whose pattern matches
// path exactly, most-specific first, each with its refcount
// incremented. Callers must Release every returned record.
func (r *Registry) Match(kind Kind, path string) ([]*Record, error) {
	segs, err := splitConcrete(path)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []matchHit
	collectMatches(r.roots[kind], segs, 0, 0, &hits)
	sortMatches(hits)

	out := make([]*Record, 0, len(hits))
	for _, h := range hits {
		if h.rec.Disabled() {
			continue
		}
		h.rec.acquire()
		out = append(out, h.rec)
	}
	return out, nil
}

// Search returns every enabled record of kind whose pattern could
// produce a child of prefix (spec.md §4.2), most-specific first, each
// refcounted.
func (r *Registry) Search(kind Kind, prefix string) ([]*Record, error) {
	segs, err := splitConcrete(prefix)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []matchHit
	collectSearchMatches(r.roots[kind], segs, 0, 0, &hits)
	sortMatches(hits)

	out := make([]*Record, 0, len(hits))
	for _, h := range hits {
		if h.rec.Disabled() {
			continue
		}
		h.rec.acquire()
		out = append(out, h.rec)
	}
	return out, nil
}

// Exists is the cheap predicate from spec.md §4.2, used to decide
// whether search/traverse need to consult indexers/providers/
// refreshers at all for a given prefix.
func (r *Registry) Exists(kind Kind, prefix string) (bool, error) {
	segs, err := splitConcrete(prefix)
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roots[kind].hasCompatiblePattern(segs), nil
}

// All returns every enabled record of kind, refcounted, in no
// particular order. The /apteryx/statistics/* refresher (spec.md §4.7)
// uses this to walk the registry and publish per-callback counters.
func (r *Registry) All(kind Kind) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var recs []*Record
	r.roots[kind].walkAll(&recs)
	out := make([]*Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Disabled() {
			continue
		}
		rec.acquire()
		out = append(out, rec)
	}
	return out
}

func collectSearchMatches(n *trieNode, segs []string, wildcards, depth int, out *[]matchHit) {
	for _, rec := range n.allBelow {
		*out = append(*out, matchHit{rec, wildcards, depth})
	}
	if len(segs) == 0 {
		for _, rec := range n.exact {
			*out = append(*out, matchHit{rec, wildcards, depth})
		}
		for _, rec := range n.oneLevel {
			*out = append(*out, matchHit{rec, wildcards, depth})
		}
		return
	}
	first, rest := segs[0], segs[1:]
	if c, ok := n.children[first]; ok {
		collectSearchMatches(c, rest, wildcards, depth+1, out)
	}
	if n.star != nil {
		collectSearchMatches(n.star, rest, wildcards+1, depth+1, out)
	}
}
