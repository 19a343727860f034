// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package selfconfig implements the apteryx self-configuration
// surface (C7): the well-known /apteryx/* prefixes that mirror the
// callback registry and let the daemon's own state be read, searched
// and traversed like any other value (spec.md §4.7).
package selfconfig

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/rpc"
)

// originator identifies every write this package makes on its own
// behalf, distinct from any RPC client's per-connection originator
// (spec.md §4.5, §4.7).
const originator = engine.Originator("apteryx.selfconfig")

// Manager wires the /apteryx/* surface onto a running Engine+Registry.
// Every Register* call both installs the callback in the registry and
// mirrors its pattern under the well-known guid prefix spec.md §4.7
// names, so the registration is itself readable (get/search/traverse)
// like any other apteryx value — there is no separate "list
// registrations" RPC, mirroring is the whole mechanism.
type Manager struct {
	eng *engine.Engine
	reg *registry.Registry
	pid int32

	mu      sync.Mutex
	nextSeq uint64

	sockets *socketManager
	debug   *debugLevels
	metrics *counterSet
}

// New builds the built-in self-configuration registrations (debug,
// sockets, counters, statistics) against eng/reg and returns a Manager
// other daemon components can use to register their own callbacks with
// the same mirroring behavior. srv may be nil when the daemon exposes
// no additional sockets beyond its initial listener; loggers may be nil
// under a test harness with no real syslog target.
func New(eng *engine.Engine, reg *registry.Registry, srv *rpc.Server, pid int32, loggers *Loggers) (*Manager, error) {
	m := &Manager{eng: eng, reg: reg, pid: pid}
	m.debug = newDebugLevels(loggers)
	m.metrics = newCounterSet(reg)
	m.sockets = newSocketManager(srv)

	if _, err := m.RegisterWatch("/apteryx/debug", m.debug.onWrite); err != nil {
		return nil, err
	}
	if _, err := m.RegisterWatch("/apteryx/sockets/", m.sockets.onWrite); err != nil {
		return nil, err
	}
	if _, err := m.RegisterProvide("/apteryx/counters/*", m.metrics.onRead); err != nil {
		return nil, err
	}
	if _, err := m.RegisterRefresh("/apteryx/statistics/*", m.statisticsRefresh); err != nil {
		return nil, err
	}
	return m, nil
}

// MetricsRegistry exposes the prometheus registry backing
// /apteryx/counters/*, for internal/httpapi's /metrics handler.
func (m *Manager) MetricsRegistry() *prometheus.Registry { return m.metrics.Registry() }

// RegisterWatch installs a watcher and mirrors it at
// /apteryx/watchers/<guid>.
func (m *Manager) RegisterWatch(pattern string, fn registry.WatchFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Watch, Pattern: pattern, OnWatch: fn})
}

// RegisterWatchTree installs a watch_tree callback, mirrored the same
// way as an ordinary watcher (spec.md §4.7 groups both under
// /apteryx/watchers/).
func (m *Manager) RegisterWatchTree(pattern string, fn registry.WatchTreeFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.WatchTree, Pattern: pattern, OnWatchTree: fn})
}

// RegisterValidate installs a validator and mirrors it at
// /apteryx/validators/<guid>.
func (m *Manager) RegisterValidate(pattern string, fn registry.ValidateFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Validate, Pattern: pattern, OnValidate: fn})
}

// RegisterProvide installs a provider and mirrors it at
// /apteryx/providers/<guid>.
func (m *Manager) RegisterProvide(pattern string, fn registry.ProvideFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Provide, Pattern: pattern, OnProvide: fn})
}

// RegisterRefresh installs a refresher and mirrors it at
// /apteryx/refreshers/<guid>.
func (m *Manager) RegisterRefresh(pattern string, fn registry.RefreshFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Refresh, Pattern: pattern, OnRefresh: fn})
}

// RegisterIndex installs an indexer and mirrors it at
// /apteryx/indexers/<guid>.
func (m *Manager) RegisterIndex(pattern string, fn registry.IndexFunc) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Index, Pattern: pattern, OnIndex: fn})
}

// RegisterProxy installs a proxy forward and mirrors it at
// /apteryx/proxies/<guid>, whose value carries both the URI and the
// pattern (spec.md §4.7: "value is the pattern path (and for proxies
// the unix:// or tcp:// URI plus path)").
func (m *Manager) RegisterProxy(pattern, uri string) (registry.GUID, error) {
	return m.register(registry.Registration{Kind: registry.Proxy, Pattern: pattern, ProxyURI: uri})
}

// Deregister removes guid from the registry and prunes its mirror.
func (m *Manager) Deregister(guid registry.GUID) error {
	rec, ok := m.reg.Lookup(guid)
	if !ok {
		return nil
	}
	kind := rec.Kind
	rec.Disable()
	m.reg.Deregister(guid)

	prefix := mirrorPrefix(kind)
	if prefix == "" {
		return nil
	}
	return m.eng.Prune(context.Background(), originator, prefix+guid.String())
}

func (m *Manager) register(reg registry.Registration) (registry.GUID, error) {
	guid := m.newGUID()
	reg.PID, reg.Handle, reg.Hash = guid.PID, guid.Handle, guid.Hash

	rec, err := m.reg.Register(reg)
	if err != nil {
		return registry.GUID{}, err
	}
	if err := m.publishMirror(rec); err != nil {
		m.reg.Deregister(rec.GUID())
		return registry.GUID{}, err
	}
	return rec.GUID(), nil
}

func (m *Manager) publishMirror(rec *registry.Record) error {
	prefix := mirrorPrefix(rec.Kind)
	if prefix == "" {
		return nil
	}
	value := rec.Pattern
	if rec.Kind == registry.Proxy && rec.ProxyURI != "" {
		value = rec.ProxyURI + " " + rec.Pattern
	}
	return m.eng.Set(context.Background(), originator, prefix+rec.GUID().String(), []byte(value))
}

func mirrorPrefix(kind registry.Kind) string {
	switch kind {
	case registry.Watch, registry.WatchTree:
		return "/apteryx/watchers/"
	case registry.Validate:
		return "/apteryx/validators/"
	case registry.Refresh:
		return "/apteryx/refreshers/"
	case registry.Provide:
		return "/apteryx/providers/"
	case registry.Index:
		return "/apteryx/indexers/"
	case registry.Proxy:
		return "/apteryx/proxies/"
	default:
		return ""
	}
}

// newGUID mints a (PID, Handle, Hash) triple for a registration made
// through this Manager: PID is the daemon's own process id, Handle is
// a monotonic per-process sequence, and Hash is derived from Handle
// rather than the registration payload, since this package always
// mints fresh GUIDs rather than deduplicating re-registrations of an
// identical pattern (spec.md §3 leaves Hash's derivation to the
// implementation).
func (m *Manager) newGUID() registry.GUID {
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()

	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(seq >> (8 * i))
	}
	h.Write(buf[:])
	return registry.GUID{PID: m.pid, Handle: seq, Hash: h.Sum64()}
}
