// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpackham-atlnz/apteryx/pkg/dispatch"
	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/status"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

func newEngine() (*engine.Engine, *registry.Registry, *dispatch.Dispatcher) {
	reg := registry.New()
	disp := dispatch.New()
	e := engine.New(tree.New(), reg, refresh.New(), disp, nil)
	return e, reg, disp
}

func TestSetGetRoundTrip(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))

	v, ok, err := e.Get(ctx, "/test/zones/home/name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("home"), v)
}

func TestValidatorVetoesSet(t *testing.T) {
	e, reg, _ := newEngine()
	ctx := context.Background()
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Validate,
		Pattern: "/test/zones/*",
		Hash:    1,
		OnValidate: func(path string, value []byte) error {
			return status.Permission("zones are read-only")
		},
	})
	require.NoError(t, err)

	err = e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home"))
	require.Error(t, err)
	assert.Equal(t, status.EPERM, status.CodeOf(err))

	_, ok, err := e.Get(ctx, "/test/zones/home/name")
	require.NoError(t, err)
	assert.False(t, ok, "vetoed set must not reach the tree")
}

func TestWatcherFiresAsynchronouslyOnSet(t *testing.T) {
	e, reg, disp := newEngine()
	ctx := context.Background()

	seen := make(chan string, 1)
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/test/zones/*",
		Hash:    2,
		OnWatch: func(ctx context.Context, path string, value []byte) { seen <- string(value) },
	})
	require.NoError(t, err)

	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	disp.Wait("peer-1")

	select {
	case v := <-seen:
		assert.Equal(t, "home", v)
	default:
		t.Fatal("watcher never ran")
	}
}

func TestSetWaitIsTimedOutWhenCalledReentrantly(t *testing.T) {
	e, reg, disp := newEngine()
	ctx := context.Background()

	reentrantErr := make(chan error, 1)
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/test/zones/home/*",
		Hash:    3,
		OnWatch: func(ctx context.Context, path string, value []byte) {
			reentrantErr <- e.SetWait(ctx, "peer-1", "/test/output/value", []byte("x"))
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	disp.Wait("peer-1")

	select {
	case err := <-reentrantErr:
		require.Error(t, err)
		assert.True(t, status.Is(err, status.ETIMEDOUT))
	default:
		t.Fatal("watcher never ran")
	}
}

func TestSetWaitFromUnrelatedOriginatorDoesNotTimeOut(t *testing.T) {
	e, reg, disp := newEngine()
	ctx := context.Background()

	done := make(chan error, 1)
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/test/zones/home/*",
		Hash:    4,
		OnWatch: func(ctx context.Context, path string, value []byte) {
			done <- e.SetWait(context.Background(), "peer-2", "/test/output/value", []byte("x"))
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	disp.Wait("peer-1")

	select {
	case err := <-done:
		assert.NoError(t, err)
	default:
		t.Fatal("watcher never ran")
	}
}

func TestCasRejectsStaleTimestamp(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/counter", []byte("1")))

	err := e.Cas(ctx, "peer-1", "/test/counter", []byte("2"), 1)
	require.Error(t, err)
	assert.Equal(t, status.EBUSY, status.CodeOf(err))
}

func TestCasSucceedsOnMatchingTimestamp(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/counter", []byte("1")))
	ts, _, err := e.Timestamp(ctx, "/test/counter")
	require.NoError(t, err)

	require.NoError(t, e.Cas(ctx, "peer-1", "/test/counter", []byte("2"), ts))
	v, _, _ := e.Get(ctx, "/test/counter")
	assert.Equal(t, []byte("2"), v)
}

func TestSetTreeAbortsWholeBatchOnVeto(t *testing.T) {
	e, reg, _ := newEngine()
	ctx := context.Background()
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Validate,
		Pattern: "/test/zones/home/locked",
		Hash:    3,
		OnValidate: func(path string, value []byte) error {
			return status.Permission("locked")
		},
	})
	require.NoError(t, err)

	err = e.SetTree(ctx, "peer-1", []tree.LeafWrite{
		{Path: "/test/zones/home/name", Value: []byte("home")},
		{Path: "/test/zones/home/locked", Value: []byte("x")},
	}, "/test/zones/home", 0)
	require.Error(t, err)

	_, ok, _ := e.Get(ctx, "/test/zones/home/name")
	assert.False(t, ok, "batch must be all-or-nothing")
}

func TestGetFallsBackToProviderWhenTreeEmpty(t *testing.T) {
	e, reg, _ := newEngine()
	ctx := context.Background()
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Provide,
		Pattern: "/test/uptime",
		Hash:    4,
		OnProvide: func(path string) ([]byte, bool) {
			return []byte("42"), true
		},
	})
	require.NoError(t, err)

	v, ok, err := e.Get(ctx, "/test/uptime")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("42"), v)
}

func TestTreeValueShadowsProvider(t *testing.T) {
	e, reg, _ := newEngine()
	ctx := context.Background()
	_, err := reg.Register(registry.Registration{
		Kind:      registry.Provide,
		Pattern:   "/test/uptime",
		Hash:      5,
		OnProvide: func(path string) ([]byte, bool) { return []byte("stale"), true },
	})
	require.NoError(t, err)
	require.NoError(t, e.Set(ctx, "peer-1", "/test/uptime", []byte("live")))

	v, ok, err := e.Get(ctx, "/test/uptime")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("live"), v)
}

func TestSearchMergesIndexerChildren(t *testing.T) {
	e, reg, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Index,
		Pattern: "/test/zones",
		Hash:    6,
		OnIndex: func(prefix string) []string {
			return []string{"/test/zones/office"}
		},
	})
	require.NoError(t, err)

	children, err := e.Search(ctx, "/test/zones")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/test/zones/home", "/test/zones/office"}, children)
}

func TestPruneFiresWatchersAndWatchTree(t *testing.T) {
	e, reg, disp := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/active", []byte("1")))

	var leafHits int
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/test/zones/home/*",
		Hash:    7,
		OnWatch: func(ctx context.Context, path string, value []byte) { leafHits++ },
	})
	require.NoError(t, err)

	var treeEvents []registry.WatchTreeEvent
	done := make(chan struct{})
	_, err = reg.Register(registry.Registration{
		Kind:    registry.WatchTree,
		Pattern: "/test/zones/home",
		Hash:    8,
		OnWatchTree: func(root string, events []registry.WatchTreeEvent) {
			treeEvents = events
			close(done)
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Prune(ctx, "peer-1", "/test/zones/home"))
	disp.Wait("peer-1")
	<-done

	assert.Equal(t, 2, leafHits)
	assert.Len(t, treeEvents, 2)

	_, ok, _ := e.Get(ctx, "/test/zones/home/name")
	assert.False(t, ok)
}

func TestFindMatchesWildcardLeaf(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/state", []byte("active")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/office/state", []byte("idle")))

	matches, err := e.Find(ctx, "/test/zones/*/state", []byte("active"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/test/zones/home/state"}, matches)
}

func TestFindTreeAppliesAllLeafConstraints(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/state", []byte("active")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/kind", []byte("internal")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/dmz/state", []byte("active")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/dmz/kind", []byte("external")))

	matches, err := e.FindTree(ctx, "/test/zones/*", []engine.LeafConstraint{
		{Leaf: "state", Value: []byte("active")},
		{Leaf: "kind", Value: []byte("internal")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/test/zones/home"}, matches)
}

func TestQueryBatchesSearchAndGet(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/home/name", []byte("home")))
	require.NoError(t, e.Set(ctx, "peer-1", "/test/zones/office/name", []byte("office")))

	results, err := e.Query(ctx, "/test/zones", &engine.QueryNode{
		Children: []*engine.QueryNode{
			{Name: "*", Children: []*engine.QueryNode{{Name: "name"}}},
		},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
