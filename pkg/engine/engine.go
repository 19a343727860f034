// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package engine implements the apteryx operation engine (C4): it
// composes the path tree (C1), the callback registry (C2), the
// refresh cache (C3) and the callback dispatcher (C5) into the set of
// client-visible operations (spec.md §4.4).
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/cpackham-atlnz/apteryx/pkg/dispatch"
	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/status"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

// Originator re-exports dispatch.Originator so callers of pkg/engine
// never need to import pkg/dispatch directly.
type Originator = dispatch.Originator

// callTimeout bounds every synchronous callback invocation the engine
// makes directly (validators, providers, refreshers, indexers), per
// spec.md §4.5/§7: "a timeout... is treated as a failure of that
// specific call only."
const callTimeout = time.Second

// Engine is the concurrency-safe implementation of every apteryx
// client operation. The zero value is not usable; use New.
type Engine struct {
	tr      *tree.Tree
	reg     *registry.Registry
	refresh *refresh.Cache
	disp    *dispatch.Dispatcher
	proxy   ProxyDialer
}

// New assembles an Engine from its components. proxy may be nil when
// no proxy forwarding is configured (every proxy lookup then falls
// through to the local tree as if unreachable).
func New(tr *tree.Tree, reg *registry.Registry, rc *refresh.Cache, disp *dispatch.Dispatcher, proxy ProxyDialer) *Engine {
	if proxy == nil {
		proxy = noProxy{}
	}
	return &Engine{tr: tr, reg: reg, refresh: rc, disp: disp, proxy: proxy}
}

// runWithTimeout invokes fn on its own goroutine and returns false if
// it did not finish within callTimeout. A leaked goroutine from a
// hung callback is an accepted cost, matching spec.md §7's
// "failed/timed-out sources are logged and treated as returning no
// data," which does not require killing the offending goroutine.
func runWithTimeout(fn func()) (completed bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return true
	case <-time.After(callTimeout):
		return false
	}
}

// runValidators invokes every matching validator synchronously, in
// most-specific-first order, releasing each as it goes. The first
// non-nil error aborts the whole batch with the remaining validators
// left uncalled (spec.md §4.4.1 step 1).
func (e *Engine) runValidators(path string, value []byte) error {
	recs, err := e.reg.Match(registry.Validate, path)
	if err != nil {
		return err
	}
	var verr error
	for _, r := range recs {
		if verr == nil {
			fn := r.OnValidate
			ok := runWithTimeout(func() { r.Invoke(func() { verr = fn(path, value) }) })
			if !ok {
				verr = status.TimedOut("validator callback timed out")
			}
			if verr != nil && !isStatusErr(verr) {
				verr = status.Permission(verr.Error())
			}
		}
		r.Release()
	}
	return verr
}

func isStatusErr(err error) bool {
	_, ok := err.(*status.Error)
	return ok
}

// queueWatchers enqueues every matching watcher for (originator,
// path, value) onto the dispatcher, most-specific-first, preserving
// that order within the originator's FIFO lane (spec.md §4.4.1 step
// 3, §4.5).
func (e *Engine) queueWatchers(o Originator, path string, value []byte) error {
	recs, err := e.reg.Match(registry.Watch, path)
	if err != nil {
		return err
	}
	for _, r := range recs {
		rec := r
		e.disp.Enqueue(o, func(ctx context.Context) {
			defer rec.Release()
			rec.Invoke(func() { rec.OnWatch(ctx, path, value) })
		})
	}
	return nil
}

// Set writes value at path: validate, apply, then asynchronously
// notify watchers (spec.md §4.4.1).
func (e *Engine) Set(ctx context.Context, o Originator, path string, value []byte) error {
	if handled, err := e.proxySet(ctx, path, value); handled {
		return err
	}
	if err := e.runValidators(path, value); err != nil {
		return err
	}
	_, _, _, err := e.tr.Set(path, value)
	if err != nil {
		return status.InvalidPath(err.Error())
	}
	return e.queueWatchers(o, path, value)
}

// SetWait is Set, but blocks until every watcher it queued (and any
// already-queued backlog for o) has finished running, per spec.md
// §4.5's set_wait semantics. If ctx is already running inside a
// dispatch for o — a watcher calling set_wait back on its own
// originator — draining would deadlock the watcher against itself, so
// spec.md §7 requires this to fail as a timeout instead of blocking.
func (e *Engine) SetWait(ctx context.Context, o Originator, path string, value []byte) error {
	if err := e.Set(ctx, o, path, value); err != nil {
		return err
	}
	if dispatch.IsReentrant(ctx, o) {
		return status.TimedOut("reentrant set_wait")
	}
	e.disp.Wait(o)
	return nil
}

// Cas performs Set only if path's current timestamp equals
// expectedTs, reporting EBUSY otherwise (spec.md §4.4.2). Validators
// still run first, against the pending value, consistent with the
// invariant that no matching validator is ever bypassed.
func (e *Engine) Cas(ctx context.Context, o Originator, path string, value []byte, expectedTs int64) error {
	if handled, err := e.proxyCas(ctx, path, value, expectedTs); handled {
		return err
	}
	if err := e.runValidators(path, value); err != nil {
		return err
	}
	applied, _, _, _, _, err := e.tr.CAS(path, value, expectedTs)
	if err != nil {
		return status.InvalidPath(err.Error())
	}
	if !applied {
		return status.Busy("timestamp mismatch")
	}
	return e.queueWatchers(o, path, value)
}

// SetTree applies a whole batch of leaves atomically: every matching
// validator across every leaf runs first, any veto aborts the batch
// untouched, then the whole batch is applied under one tree-wide
// timestamp before watchers fire (spec.md §4.4.3). When expectedTs is
// non-zero the batch is additionally gated on rootPath's timestamp.
func (e *Engine) SetTree(ctx context.Context, o Originator, leaves []tree.LeafWrite, rootPath string, expectedTs int64) error {
	for _, l := range leaves {
		if err := e.runValidators(l.Path, l.Value); err != nil {
			return err
		}
	}

	if expectedTs != 0 {
		applied, _, _, _, err := e.tr.CASMany(leaves, rootPath, expectedTs)
		if err != nil {
			return status.InvalidPath(err.Error())
		}
		if !applied {
			return status.Busy("timestamp mismatch")
		}
	} else {
		if _, _, err := e.tr.SetMany(leaves); err != nil {
			return status.InvalidPath(err.Error())
		}
	}

	for _, l := range leaves {
		if err := e.queueWatchers(o, l.Path, l.Value); err != nil {
			return err
		}
	}
	return nil
}

// ensureRefreshers runs every refresher matching path (or an ancestor
// wildcard covering it), collapsing concurrent callers onto one
// in-flight call per (pattern, path) via the refresh cache
// (spec.md §4.3, §4.4.4 step 1).
func (e *Engine) ensureRefreshers(recs []*registry.Record, path string) {
	for _, r := range recs {
		rec := r
		_, _ = e.refresh.Ensure(rec.Pattern, path, func() (int64, error) {
			var ttl int64
			ok := runWithTimeout(func() { rec.Invoke(func() { ttl = rec.OnRefresh(path) }) })
			if !ok {
				return 0, status.TimedOut("refresher callback timed out")
			}
			return ttl, nil
		})
		rec.Release()
	}
}

// Get resolves path: run any applicable refreshers, read the tree,
// and fall back to the first matching provider when the tree has no
// value (spec.md §4.4.4). A DB entry always shadows a provider.
func (e *Engine) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if handled, value, ok, err := e.proxyGet(ctx, path); handled {
		return value, ok, err
	}

	refreshers, err := e.reg.Match(registry.Refresh, path)
	if err != nil {
		return nil, false, err
	}
	e.ensureRefreshers(refreshers, path)

	value, ok, err := e.tr.Get(path)
	if err != nil {
		return nil, false, status.InvalidPath(err.Error())
	}
	if ok {
		return value, true, nil
	}

	providers, err := e.reg.Match(registry.Provide, path)
	if err != nil {
		return nil, false, err
	}
	if len(providers) == 0 {
		return nil, false, nil
	}
	for _, r := range providers[1:] {
		r.Release()
	}
	first := providers[0]
	defer first.Release()

	var pv []byte
	var pok bool
	completed := runWithTimeout(func() { first.Invoke(func() { pv, pok = first.OnProvide(path) }) })
	if !completed || !pok {
		return nil, false, nil
	}
	return pv, true, nil
}

// Search lists prefix's live immediate children: tree children merged
// with whatever indexers (exact or ancestor-wildcarded) contribute,
// after running any applicable refreshers (spec.md §4.4.5).
func (e *Engine) Search(ctx context.Context, prefix string) ([]string, error) {
	if handled, children, err := e.proxySearch(ctx, prefix); handled {
		return children, err
	}

	refreshers, err := e.reg.Search(registry.Refresh, prefix)
	if err != nil {
		return nil, err
	}
	e.ensureRefreshers(refreshers, prefix)

	out := map[string]struct{}{}
	treeChildren, err := e.tr.Search(prefix)
	if err != nil {
		return nil, status.InvalidPath(err.Error())
	}
	for _, c := range treeChildren {
		out[c] = struct{}{}
	}

	indexers, err := e.reg.Search(registry.Index, prefix)
	if err != nil {
		return nil, err
	}
	for _, r := range indexers {
		rec := r
		var children []string
		runWithTimeout(func() { rec.Invoke(func() { children = rec.OnIndex(prefix) }) })
		for _, c := range children {
			out[c] = struct{}{}
		}
		rec.Release()
	}

	result := make([]string, 0, len(out))
	for c := range out {
		result = append(result, c)
	}
	sort.Strings(result)
	return result, nil
}

// Prune removes path's subtree and notifies watchers of every removed
// leaf, plus any watch_tree registration covering path with a single
// tree-shaped event (spec.md §4.4.7).
func (e *Engine) Prune(ctx context.Context, o Originator, path string) error {
	if handled, err := e.proxyPrune(ctx, path); handled {
		return err
	}

	removed, _, err := e.tr.Prune(path)
	if err != nil {
		return status.InvalidPath(err.Error())
	}
	if len(removed) == 0 {
		return nil
	}

	treeRecs, err := e.reg.Match(registry.WatchTree, path)
	if err != nil {
		return err
	}
	if len(treeRecs) > 0 {
		events := make([]registry.WatchTreeEvent, len(removed))
		for i, re := range removed {
			events[i] = registry.WatchTreeEvent{Path: re.Path, Value: re.Value}
		}
		for _, r := range treeRecs {
			rec := r
			e.disp.Enqueue(o, func(ctx context.Context) {
				defer rec.Release()
				rec.Invoke(func() { rec.OnWatchTree(path, events) })
			})
		}
	}

	for _, re := range removed {
		if err := e.queueWatchers(o, re.Path, nil); err != nil {
			return err
		}
	}
	return nil
}

// Traverse returns every value-bearing leaf at or below path,
// refreshing applicable subtrees first (spec.md §4.4.6).
func (e *Engine) Traverse(ctx context.Context, path string) ([]tree.PrunedEntry, error) {
	refreshers, err := e.reg.Search(registry.Refresh, path)
	if err != nil {
		return nil, err
	}
	e.ensureRefreshers(refreshers, path)

	out, err := e.tr.Traverse(path)
	if err != nil {
		return nil, status.InvalidPath(err.Error())
	}
	return out, nil
}

// Timestamp returns path's most recent modification stamp
// (spec.md §4.4.6, §6).
func (e *Engine) Timestamp(ctx context.Context, path string) (int64, bool, error) {
	if handled, ts, exists, err := e.proxyTimestamp(ctx, path); handled {
		return ts, exists, err
	}
	ts, exists, err := e.tr.Timestamp(path)
	if err != nil {
		return 0, false, status.InvalidPath(err.Error())
	}
	return ts, exists, nil
}

// Memuse reports the approximate byte footprint of path's subtree.
func (e *Engine) Memuse(ctx context.Context, path string) (int64, error) {
	n, err := e.tr.Memuse(path)
	if err != nil {
		return 0, status.InvalidPath(err.Error())
	}
	return n, nil
}
