// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpackham-atlnz/apteryx/pkg/dispatch"
	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
	"github.com/cpackham-atlnz/apteryx/pkg/registry"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

func newTestEngine() *engine.Engine {
	return engine.New(tree.New(), registry.New(), refresh.New(), dispatch.New(), nil)
}

// newLoopback starts a Server on an in-process TCP listener and returns a
// connected Client and a closer, mirroring how cmd/apteryxd wires a real
// socket but without touching the filesystem.
func newLoopback(t *testing.T, eng *engine.Engine) (*Client, func()) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(eng, nil, 4)
	go srv.Serve(l)

	c, err := Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	return c, func() {
		c.Close()
		l.Close()
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf fakeConn
	err := writeFrame(&buf, OpGet, []byte("hello"))
	require.NoError(t, err)

	op, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpGet, op)
	assert.Equal(t, []byte("hello"), payload)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf fakeConn
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, _, err := readFrame(&buf)
	assert.Equal(t, ErrProtocol, err)
}

func TestBytesOptionalRoundTrip(t *testing.T) {
	var e encoder
	e.bytesOptional([]byte("v"), true)
	e.bytesOptional(nil, false)

	d := newDecoder(e.buf)
	v, ok, err := d.bytesOptional()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	v, ok, err = d.bytesOptional()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestCommonAncestor(t *testing.T) {
	assert.Equal(t, "/a/b", commonAncestor([]string{"/a/b/c", "/a/b/d"}))
	assert.Equal(t, "/", commonAncestor([]string{"/a/b", "/c/d"}))
	assert.Equal(t, "/a", commonAncestor([]string{"/a"}))
	assert.Equal(t, "/", commonAncestor(nil))
}

func TestBuildAndFlattenQueryTree(t *testing.T) {
	tmpl := buildQueryTree([]string{"/interfaces/*/name", "/interfaces/*/state/up", "/hostname"})
	var out []string
	flattenQueryTree(tmpl, "", &out)
	assert.ElementsMatch(t, []string{
		"/interfaces/*/name", "/interfaces/*/state/up", "/hostname",
	}, out)
}

func TestClientSetGet(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	require.NoError(t, c.Set("/a/b", []byte("v1")))

	value, ok, err := c.Get("/a/b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestClientCasMismatch(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	require.NoError(t, c.Set("/a/b", []byte("v1")))
	err := c.Cas("/a/b", []byte("v2"), 1)
	require.Error(t, err)
}

func TestClientSearchAndTraverse(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	require.NoError(t, c.Set("/a/b", []byte("1")))
	require.NoError(t, c.Set("/a/c", []byte("2")))

	children, err := c.Search("/a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a/b", "/a/c"}, children)

	entries, err := c.Traverse("/a")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClientPrune(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	require.NoError(t, c.Set("/a/b", []byte("1")))
	require.NoError(t, c.Prune("/a", 0))

	_, ok, err := c.Get("/a/b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientFindTree(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	require.NoError(t, c.Set("/a/1/name", []byte("eth0")))
	require.NoError(t, c.Set("/a/2/name", []byte("eth1")))

	matches, err := c.FindTree("/a/*", []LeafValue{{Leaf: "name", Value: []byte("eth0")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/1"}, matches)
}

func TestClientTest(t *testing.T) {
	eng := newTestEngine()
	c, closeFn := newLoopback(t, eng)
	defer closeFn()

	echo, err := c.Test(0, "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", echo)
}

// fakeConn is an in-memory io.ReadWriter standing in for a net.Conn when a
// test only needs the frame codec, not a real socket.
type fakeConn struct {
	buf []byte
	pos int
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *fakeConn) Read(p []byte) (int, error) {
	n := copy(p, f.buf[f.pos:])
	f.pos += n
	return n, nil
}
