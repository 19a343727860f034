// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpackham-atlnz/apteryx/pkg/registry"
)

func TestMatchWildcardSegment(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register(registry.Registration{
		Kind:    registry.Watch,
		Pattern: "/test/zones/*",
		PID:     1,
		Handle:  1,
	})
	require.NoError(t, err)

	hits, err := reg.Match(registry.Watch, "/test/zones/private")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hits[0].Release()

	hits, err = reg.Match(registry.Watch, "/test/zones/private/extra")
	require.NoError(t, err)
	assert.Len(t, hits, 1, "trailing * matches all below, not just one level")
	for _, h := range hits {
		h.Release()
	}
}

func TestMatchMostSpecificFirst(t *testing.T) {
	reg := registry.New()
	_, _ = reg.Register(registry.Registration{Kind: registry.Validate, Pattern: "/a/*/c", PID: 1, Handle: 1})
	_, _ = reg.Register(registry.Registration{Kind: registry.Validate, Pattern: "/a/b/c", PID: 1, Handle: 2})

	hits, err := reg.Match(registry.Validate, "/a/b/c")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(2), hits[0].GUID().Handle, "the exact, zero-wildcard pattern should rank first")
	for _, h := range hits {
		h.Release()
	}
}

func TestOneLevelTrailingSlash(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register(registry.Registration{Kind: registry.Watch, Pattern: "/a/", PID: 1, Handle: 1})
	require.NoError(t, err)

	hits, err := reg.Match(registry.Watch, "/a/b")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	for _, h := range hits {
		h.Release()
	}

	hits, err = reg.Match(registry.Watch, "/a/b/c")
	require.NoError(t, err)
	assert.Empty(t, hits, "/a/ only matches one level below")
}

func TestDisabledRecordSkippedButAlive(t *testing.T) {
	reg := registry.New()
	rec, _ := reg.Register(registry.Registration{Kind: registry.Watch, Pattern: "/a/*", PID: 1, Handle: 1})
	rec.Disable()

	hits, err := reg.Match(registry.Watch, "/a/b")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeregisterRemovesFromMatch(t *testing.T) {
	reg := registry.New()
	rec, _ := reg.Register(registry.Registration{Kind: registry.Provide, Pattern: "/a/b", PID: 1, Handle: 1})

	ok := reg.Deregister(rec.GUID())
	assert.True(t, ok)

	hits, err := reg.Match(registry.Provide, "/a/b")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestExistsCheapPredicate(t *testing.T) {
	reg := registry.New()
	_, _ = reg.Register(registry.Registration{Kind: registry.Index, Pattern: "/if/*", PID: 1, Handle: 1})

	ok, err := reg.Exists(registry.Index, "/if")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Exists(registry.Index, "/unrelated")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGUIDRoundTrip(t *testing.T) {
	g := registry.GUID{PID: 42, Handle: 0xdeadbeef, Hash: 0xfeedface}
	parsed, err := registry.ParseGUID(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}
