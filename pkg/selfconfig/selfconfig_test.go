// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig_test

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpackham-atlnz/apteryx/pkg/dispatch"
	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/rpc"
	"github.com/cpackham-atlnz/apteryx/pkg/selfconfig"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

func newTestEngine() (*engine.Engine, *registry.Registry) {
	reg := registry.New()
	e := engine.New(tree.New(), reg, refresh.New(), dispatch.New(), nil)
	return e, reg
}

func TestNewRegistersBuiltinSurface(t *testing.T) {
	eng, reg := newTestEngine()
	_, err := selfconfig.New(eng, reg, nil, 1, nil)
	require.NoError(t, err)

	ctx := context.Background()
	children, err := eng.Search(ctx, "/apteryx/watchers")
	require.NoError(t, err)
	assert.Len(t, children, 2) // debug + sockets watchers
}

func TestRegisterWatchMirrorsPattern(t *testing.T) {
	eng, reg := newTestEngine()
	m, err := selfconfig.New(eng, reg, nil, 1, nil)
	require.NoError(t, err)

	guid, err := m.RegisterWatch("/test/*", func(ctx context.Context, path string, value []byte) {})
	require.NoError(t, err)

	value, ok, err := eng.Get(context.Background(), "/apteryx/watchers/"+guid.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/test/*", string(value))
}

func TestDeregisterPrunesMirror(t *testing.T) {
	eng, reg := newTestEngine()
	m, err := selfconfig.New(eng, reg, nil, 1, nil)
	require.NoError(t, err)

	guid, err := m.RegisterValidate("/test/*", func(string, []byte) error { return nil })
	require.NoError(t, err)
	require.NoError(t, m.Deregister(guid))

	_, ok, err := eng.Get(context.Background(), "/apteryx/validators/"+guid.String())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDebugWatcherTogglesOutput(t *testing.T) {
	eng, reg := newTestEngine()
	var dbuf, ebuf bytes.Buffer
	loggers := &selfconfig.Loggers{
		Debug: log.New(&dbuf, "", 0),
		Error: log.New(&ebuf, "", 0),
	}
	_, err := selfconfig.New(eng, reg, nil, 1, loggers)
	require.NoError(t, err)

	require.NoError(t, eng.Set(context.Background(), "t", "/apteryx/debug", []byte("2")))
	time.Sleep(10 * time.Millisecond) // watcher delivery is async

	loggers.Debug.Print("hello")
	assert.Contains(t, dbuf.String(), "hello")
}

func TestCountersProvider(t *testing.T) {
	eng, reg := newTestEngine()
	m, err := selfconfig.New(eng, reg, nil, 1, nil)
	require.NoError(t, err)

	_, err = m.RegisterWatch("/a/*", func(context.Context, string, []byte) {})
	require.NoError(t, err)

	value, ok, err := eng.Get(context.Background(), "/apteryx/counters/watchers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", string(value)) // debug + sockets watchers + /a/*
}

func TestStatisticsRefresherPublishesStats(t *testing.T) {
	eng, reg := newTestEngine()
	_, err := selfconfig.New(eng, reg, nil, 1, nil)
	require.NoError(t, err)

	guid, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/a/*",
		OnWatch: func(context.Context, string, []byte) {},
	})
	require.NoError(t, err)

	require.NoError(t, eng.Set(context.Background(), "t", "/a/b", []byte("v")))
	eng.SetWait(context.Background(), "t", "/a/b", []byte("v2"))

	_, ok, err := eng.Get(context.Background(), "/apteryx/statistics/watch/"+guid.GUID().String())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSocketManagerBindsAndReleases(t *testing.T) {
	eng, reg := newTestEngine()
	srv := rpc.NewServer(eng, nil, 0)
	m, err := selfconfig.New(eng, reg, srv, 1, nil)
	require.NoError(t, err)
	_ = m

	require.NoError(t, eng.Set(context.Background(), "t", "/apteryx/sockets/s1", []byte("tcp://127.0.0.1:0")))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, eng.Prune(context.Background(), "t", "/apteryx/sockets/s1"))
	time.Sleep(10 * time.Millisecond)
}
