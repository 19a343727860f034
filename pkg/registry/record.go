// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errInvalidGUID = errors.New("apteryx: malformed GUID")

// Kind identifies one of the six callback flavours of spec.md §1/§3,
// plus watch_tree, which is watch's tree-shaped sibling used by Prune.
type Kind int

const (
	Watch Kind = iota
	WatchTree
	Validate
	Provide
	Refresh
	Index
	Proxy
	numKinds
)

// AllKinds lists every callback kind in registration order, for
// callers outside this package (the self-configuration statistics
// surface, C7) that need to walk every kind without depending on the
// unexported sentinel.
func AllKinds() []Kind {
	return []Kind{Watch, WatchTree, Validate, Provide, Refresh, Index, Proxy}
}

func (k Kind) String() string {
	switch k {
	case Watch:
		return "watch"
	case WatchTree:
		return "watch_tree"
	case Validate:
		return "validate"
	case Provide:
		return "provide"
	case Refresh:
		return "refresh"
	case Index:
		return "index"
	case Proxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// WatchFunc is invoked once per matching mutation, asynchronously, in
// stamp order (spec.md §4.5). ctx carries the dispatcher's reentrancy
// marker for the originator that triggered the mutation, so a watcher
// that calls back into a set_wait for its own originator can be
// detected rather than deadlock (spec.md §7).
type WatchFunc func(ctx context.Context, path string, value []byte)

// WatchTreeEvent is one leaf of a Prune delivered to a watch_tree
// callback as a single tree-shaped event (spec.md §4.4.7).
type WatchTreeEvent struct {
	Path  string
	Value []byte
}

// WatchTreeFunc receives every removed leaf of one Prune in a single
// call.
type WatchTreeFunc func(root string, events []WatchTreeEvent)

// ValidateFunc vetoes a pending mutation; a non-nil return aborts the
// operation with that error (spec.md §4.4.1 step 1).
type ValidateFunc func(path string, value []byte) error

// ProvideFunc synthesizes a value on read when no DB entry exists for
// path (spec.md §4.4.4 step 3).
type ProvideFunc func(path string) (value []byte, ok bool)

// RefreshFunc repopulates a stale subtree by calling back into Set; it
// returns the TTL for which its writes may be reused (spec.md §4.3).
type RefreshFunc func(path string) (ttl int64)

// IndexFunc enumerates dynamic children of a path for Search
// (spec.md §4.4.5).
type IndexFunc func(prefix string) []string

// Stats mirrors the {count, min, max, total} counters spec.md §3
// attaches to every callback record, consumed by the
// /apteryx/statistics/* refresher (§4.7).
type Stats struct {
	Count int64
	Min   int64
	Max   int64
	Total int64
}

// Record is one callback registration. Fields are safe for concurrent
// read; mutation goes through the registry's methods.
type Record struct {
	Kind     Kind
	Pattern  string
	ProxyURI string

	guid GUID
	segs []string
	trail trailKind
	seq  uint64

	disabled atomic.Bool
	refcount atomic.Int32

	statsMu sync.Mutex
	stats   Stats

	OnWatch     WatchFunc
	OnWatchTree WatchTreeFunc
	OnValidate  ValidateFunc
	OnProvide   ProvideFunc
	OnRefresh   RefreshFunc
	OnIndex     IndexFunc
}

// GUID returns the record's stable identity.
func (r *Record) GUID() GUID { return r.guid }

// Disabled reports whether future dispatches should skip this record.
// A disabled record stays alive (and matchable by GUID lookups) until
// its refcount drops to zero, per spec.md §4.2.
func (r *Record) Disabled() bool { return r.disabled.Load() }

// Disable flags the record so Match, Search and All skip it. The
// record stays in the registry until Registry.Deregister removes it.
func (r *Record) Disable() { r.disabled.Store(true) }

// Release drops a reference acquired via Match/Search.
func (r *Record) Release() { r.refcount.Add(-1) }

func (r *Record) acquire() { r.refcount.Add(1) }

// RefCount reports the current number of live borrows.
func (r *Record) RefCount() int32 { return r.refcount.Load() }

// RecordStats returns a snapshot of the invocation counters.
func (r *Record) RecordStats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// observe folds one callback invocation's latency (in microseconds)
// into the running {count, min, max, total}.
func (r *Record) observe(latencyUs int64) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.Count++
	r.stats.Total += latencyUs
	if r.stats.Count == 1 || latencyUs < r.stats.Min {
		r.stats.Min = latencyUs
	}
	if latencyUs > r.stats.Max {
		r.stats.Max = latencyUs
	}
}

// Invoke runs fn and folds its wall-clock latency into the record's
// statistics (spec.md §3, §4.7). Callers outside this package use it
// to time a callback without reaching into the unexported stats
// bookkeeping directly.
func (r *Record) Invoke(fn func()) {
	start := time.Now()
	fn()
	r.observe(time.Since(start).Microseconds())
}
