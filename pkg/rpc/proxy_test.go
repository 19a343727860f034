// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyClientForwardsSetAndGet(t *testing.T) {
	remote := newTestEngine()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	srv := NewServer(remote, nil, 4)
	go srv.Serve(l)

	pc := NewProxyClient(NewPool(4, time.Second))
	uri := "tcp://" + l.Addr().String()

	handled, err := pc.ProxySet(context.Background(), uri, "/a/b", []byte("v1"))
	require.True(t, handled)
	require.NoError(t, err)

	handled, value, ok, err := pc.ProxyGet(context.Background(), uri, "/a/b")
	require.True(t, handled)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestProxyClientUnreachableIsNotHandled(t *testing.T) {
	pc := NewProxyClient(NewPool(4, time.Second))
	handled, err := pc.ProxySet(context.Background(), "tcp://127.0.0.1:1", "/a/b", []byte("v1"))
	assert.False(t, handled)
	assert.NoError(t, err)
}

func TestProxyClientMalformedURIIsNotHandled(t *testing.T) {
	pc := NewProxyClient(nil)
	handled, _, _, err := pc.ProxyGet(context.Background(), "ftp://example.com", "/a/b")
	assert.False(t, handled)
	assert.NoError(t, err)
}
