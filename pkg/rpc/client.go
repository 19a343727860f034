// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cpackham-atlnz/apteryx/pkg/status"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

// DefaultRPCTimeout is RPC_TIMEOUT_US from spec.md §4.6/§6: a request
// without a reply within this long fails with ETIMEDOUT.
const DefaultRPCTimeout = time.Second

// Client is a connection to one apteryx daemon, offering one typed
// method per operation — the same shape as
// danos-configd/client/client.go's Client, adapted from a JSON-RPC
// call(method, args...) core to this package's binary frame codec.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	mu      sync.Mutex
	timeout time.Duration
}

// Dial connects to an apteryx daemon at address over network ("unix",
// "tcp", or "tcp6"), mirroring client.Dial's signature. The returned
// Client enforces DefaultRPCTimeout on every call; use Pool.Call for a
// pooled client whose timed-out connection is dropped from the pool.
func Dial(network, address string) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		timeout: DefaultRPCTimeout,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// roundTrip sends one request frame and waits for the matching reply.
// Requests on one Client are not pipelined: the next call blocks
// until the previous reply has been read, matching the synchronous
// request/response loop of serverConn.serveOne. A request without a
// reply within c.timeout fails with ETIMEDOUT (spec.md §6
// "Timeouts"); the connection is left for the caller (typically a
// Pool) to close and drop.
func (c *Client) roundTrip(op Op, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := writeFrame(c.w, op, payload); err != nil {
		return nil, timeoutOrErr(err)
	}
	_, reply, err := readFrame(c.r)
	if err != nil {
		return nil, timeoutOrErr(err)
	}
	return reply, nil
}

func timeoutOrErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return status.TimedOut("apteryx: rpc timed out")
	}
	return err
}

// Set writes value at path unconditionally.
func (c *Client) Set(path string, value []byte) error {
	payload := encodeSetRequest(setRequest{Leaves: []leafTS{{Path: path, Value: value}}})
	reply, err := c.roundTrip(OpSet, payload)
	if err != nil {
		return err
	}
	return statusFromReply(reply)
}

// Cas performs a compare-and-swap of path gated on expectedTs.
func (c *Client) Cas(path string, value []byte, expectedTs int64) error {
	payload := encodeSetRequest(setRequest{
		Leaves:  []leafTS{{Path: path, Value: value}},
		FinalTs: expectedTs,
	})
	reply, err := c.roundTrip(OpSet, payload)
	if err != nil {
		return err
	}
	return statusFromReply(reply)
}

// SetTree applies a batch of leaves atomically, optionally gated on
// expectedTs (0 for an unconditional batch).
func (c *Client) SetTree(leaves []tree.LeafWrite, expectedTs int64) error {
	wireLeaves := make([]leafTS, len(leaves))
	for i, l := range leaves {
		wireLeaves[i] = leafTS{Path: l.Path, Value: l.Value}
	}
	payload := encodeSetRequest(setRequest{Leaves: wireLeaves, FinalTs: expectedTs})
	reply, err := c.roundTrip(OpSet, payload)
	if err != nil {
		return err
	}
	return statusFromReply(reply)
}

// Get resolves path.
func (c *Client) Get(path string) ([]byte, bool, error) {
	reply, err := c.roundTrip(OpGet, encodeGetRequest(path))
	if err != nil {
		return nil, false, err
	}
	return decodeGetReply(reply)
}

// Search lists prefix's live immediate children.
func (c *Client) Search(prefix string) ([]string, error) {
	reply, err := c.roundTrip(OpSearch, encodeGetRequest(prefix))
	if err != nil {
		return nil, err
	}
	return decodeStringListReply(reply)
}

// Traverse returns every value-bearing leaf at or below path.
func (c *Client) Traverse(path string) ([]tree.PrunedEntry, error) {
	reply, err := c.roundTrip(OpTraverse, encodeGetRequest(path))
	if err != nil {
		return nil, err
	}
	return decodeTreeReply(reply)
}

// Prune removes path's subtree, optionally gated on expectedTs.
func (c *Client) Prune(path string, expectedTs int64) error {
	reply, err := c.roundTrip(OpPrune, encodePruneRequest(pruneRequest{Path: path, Ts: expectedTs}))
	if err != nil {
		return err
	}
	return statusFromReply(reply)
}

// Timestamp returns path's most recent modification stamp.
func (c *Client) Timestamp(path string) (int64, error) {
	reply, err := c.roundTrip(OpTimestamp, encodeGetRequest(path))
	if err != nil {
		return 0, err
	}
	return decodeTimestampReply(reply)
}

// Find returns every concrete instantiation of pattern whose own
// value equals expected.
func (c *Client) Find(pattern string, expected []byte) ([]string, error) {
	return c.FindTree(pattern, []LeafValue{{Value: expected}})
}

// FindTree returns every concrete instantiation of pattern satisfying
// every leaf constraint.
func (c *Client) FindTree(pattern string, leaves []LeafValue) ([]string, error) {
	reply, err := c.roundTrip(OpFind, encodeFindRequest(findRequest{Pattern: pattern, Leaves: leaves}))
	if err != nil {
		return nil, err
	}
	return decodeStringListReply(reply)
}

// Query resolves a batched get/search template, given as a flat list
// of "*"-marked paths, against the remote store.
func (c *Client) Query(templatePaths []string) ([]tree.PrunedEntry, error) {
	reply, err := c.roundTrip(OpQuery, encodeQueryRequest(queryRequest{TemplatePaths: templatePaths}))
	if err != nil {
		return nil, err
	}
	return decodeTreeReply(reply)
}

// Memuse reports the approximate byte footprint of path's subtree.
func (c *Client) Memuse(path string) (int64, error) {
	reply, err := c.roundTrip(OpMemuse, encodeMemuseRequest(path))
	if err != nil {
		return 0, err
	}
	return decodeMemuseReply(reply)
}

// Test exercises the connection end to end, echoing back payload.
func (c *Client) Test(mode byte, payload string) (string, error) {
	reply, err := c.roundTrip(OpTest, encodeTestRequest(testRequest{Mode: mode, Echo: payload}))
	if err != nil {
		return "", err
	}
	return decodeTestReply(reply)
}
