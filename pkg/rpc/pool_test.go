// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer binds a Server to an in-process TCP listener and returns
// it, for Pool tests that dial through the pool rather than Dial
// directly.
func startServer(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(newTestEngine(), nil, 4)
	go srv.Serve(l)
	return l
}

func TestPoolReusesConnection(t *testing.T) {
	l := startServer(t)
	defer l.Close()

	p := NewPool(4, time.Second)
	defer p.Close()

	c1, err := p.Get("tcp", l.Addr().String())
	require.NoError(t, err)
	c2, err := p.Get("tcp", l.Addr().String())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestPoolDropClosesConnection(t *testing.T) {
	l := startServer(t)
	defer l.Close()

	p := NewPool(4, time.Second)
	defer p.Close()

	c1, err := p.Get("tcp", l.Addr().String())
	require.NoError(t, err)

	p.Drop("tcp", l.Addr().String())
	// Drop evicts c1 from the cache and the pool's evict callback
	// closes it, so c1 can no longer be used.
	require.Error(t, c1.Set("/a/b", []byte("v")))

	c2, err := p.Get("tcp", l.Addr().String())
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
}

func TestPoolCallDropsTimedOutConnection(t *testing.T) {
	// A bare listener with nothing accepting: any call through it
	// blocks until the pool's timeout fires.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	p := NewPool(4, 20*time.Millisecond)
	defer p.Close()

	addr := l.Addr().String()
	c1, err := p.Get("tcp", addr)
	require.NoError(t, err)

	callErr := p.Call("tcp", addr, func(c *Client) error {
		_, _, getErr := c.Get("/never/answered")
		return getErr
	})
	require.Error(t, callErr)

	c2, err := p.Get("tcp", addr)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
}
