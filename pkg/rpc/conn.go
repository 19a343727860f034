// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/status"
	"github.com/cpackham-atlnz/apteryx/pkg/tree"
)

// errConnClosed marks an orderly EOF, distinct from a transport
// failure, mirroring danos-configd/server/conn.go's Handle() loop
// ("if err != io.EOF { conn.srv.LogError(err) }").
var errConnClosed = errors.New("apteryx: connection closed")

// serverConn is one accepted connection's request/response loop,
// grounded on danos-configd/server/conn.go's SrvConn: a buffered
// reader/writer pair and a sending mutex guarding the write side
// (kept here even though this server never pipelines replies, since a
// future multiplexed client could).
type serverConn struct {
	r          *bufio.Reader
	w          *bufio.Writer
	sending    sync.Mutex
	eng        *engine.Engine
	originator engine.Originator
	logger     *log.Logger
	ctx        context.Context
}

func newServerConn(conn net.Conn, eng *engine.Engine, originator engine.Originator, logger *log.Logger) *serverConn {
	return &serverConn{
		r:          bufio.NewReader(conn),
		w:          bufio.NewWriter(conn),
		eng:        eng,
		originator: originator,
		logger:     logger,
		ctx:        context.Background(),
	}
}

func (c *serverConn) reply(op Op, payload []byte) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	return writeFrame(c.w, op, payload)
}

// serveOne reads and answers one request. It returns errConnClosed on
// a clean EOF.
func (c *serverConn) serveOne() error {
	op, payload, err := readFrame(c.r)
	if err != nil {
		if err == io.EOF {
			return errConnClosed
		}
		return err
	}

	replyPayload, err := c.dispatch(op, payload)
	if err != nil {
		// A malformed frame or unknown opcode is a protocol fault:
		// spec.md §7 says the connection is closed, not answered.
		if err == ErrProtocol {
			return err
		}
		c.logger.Printf("apteryx: %s: %v", op, err)
	}
	return c.reply(op, replyPayload)
}

func (c *serverConn) dispatch(op Op, payload []byte) ([]byte, error) {
	switch op {
	case OpSet:
		return c.handleSet(payload)
	case OpGet:
		return c.handleGet(payload)
	case OpSearch:
		return c.handleSearch(payload)
	case OpTraverse:
		return c.handleTraverse(payload)
	case OpPrune:
		return c.handlePrune(payload)
	case OpTimestamp:
		return c.handleTimestamp(payload)
	case OpFind:
		return c.handleFind(payload)
	case OpQuery:
		return c.handleQuery(payload)
	case OpMemuse:
		return c.handleMemuse(payload)
	case OpTest:
		return c.handleTest(payload)
	default:
		return nil, ErrProtocol
	}
}

func (c *serverConn) handleSet(payload []byte) ([]byte, error) {
	req, err := decodeSetRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}

	var opErr error
	switch {
	case len(req.Leaves) == 0:
		opErr = nil
	case len(req.Leaves) == 1 && req.FinalTs == 0:
		opErr = c.eng.Set(c.ctx, c.originator, req.Leaves[0].Path, req.Leaves[0].Value)
	case len(req.Leaves) == 1:
		opErr = c.eng.Cas(c.ctx, c.originator, req.Leaves[0].Path, req.Leaves[0].Value, req.FinalTs)
	default:
		leaves := make([]tree.LeafWrite, len(req.Leaves))
		paths := make([]string, len(req.Leaves))
		for i, l := range req.Leaves {
			leaves[i] = tree.LeafWrite{Path: l.Path, Value: l.Value}
			paths[i] = l.Path
		}
		opErr = c.eng.SetTree(c.ctx, c.originator, leaves, commonAncestor(paths), req.FinalTs)
	}
	return statusReply(opErr), nil
}

func (c *serverConn) handleGet(payload []byte) ([]byte, error) {
	path, err := decodeGetRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	value, ok, err := c.eng.Get(c.ctx, path)
	if err != nil {
		return encodeGetReply(nil, false), err
	}
	return encodeGetReply(value, ok), nil
}

func (c *serverConn) handleSearch(payload []byte) ([]byte, error) {
	prefix, err := decodeGetRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	children, err := c.eng.Search(c.ctx, prefix)
	if err != nil {
		return encodeStringListReply(nil), err
	}
	return encodeStringListReply(children), nil
}

func (c *serverConn) handleTraverse(payload []byte) ([]byte, error) {
	path, err := decodeGetRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	entries, err := c.eng.Traverse(c.ctx, path)
	if err != nil {
		return encodeTreeReply(nil), err
	}
	return encodeTreeReply(entries), nil
}

func (c *serverConn) handlePrune(payload []byte) ([]byte, error) {
	req, err := decodePruneRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	if req.Ts != 0 {
		if ts, _, terr := c.eng.Timestamp(c.ctx, req.Path); terr == nil && ts != req.Ts {
			return statusReply(status.Busy("timestamp mismatch")), nil
		}
	}
	opErr := c.eng.Prune(c.ctx, c.originator, req.Path)
	return statusReply(opErr), nil
}

func (c *serverConn) handleTimestamp(payload []byte) ([]byte, error) {
	path, err := decodeGetRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	ts, _, err := c.eng.Timestamp(c.ctx, path)
	if err != nil {
		return encodeTimestampReply(0), err
	}
	return encodeTimestampReply(ts), nil
}

func (c *serverConn) handleFind(payload []byte) ([]byte, error) {
	req, err := decodeFindRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	constraints := make([]engine.LeafConstraint, len(req.Leaves))
	for i, l := range req.Leaves {
		constraints[i] = engine.LeafConstraint{Leaf: l.Leaf, Value: l.Value}
	}
	matches, err := c.eng.FindTree(c.ctx, req.Pattern, constraints)
	if err != nil {
		return encodeStringListReply(nil), err
	}
	return encodeStringListReply(matches), nil
}

func (c *serverConn) handleQuery(payload []byte) ([]byte, error) {
	req, err := decodeQueryRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	tmpl := buildQueryTree(req.TemplatePaths)
	entries, err := c.eng.Query(c.ctx, "/", tmpl)
	if err != nil {
		return encodeTreeReply(nil), err
	}
	return encodeTreeReply(entries), nil
}

func (c *serverConn) handleMemuse(payload []byte) ([]byte, error) {
	path, err := decodeMemuseRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	n, err := c.eng.Memuse(c.ctx, path)
	if err != nil {
		return encodeMemuseReply(0), err
	}
	return encodeMemuseReply(n), nil
}

func (c *serverConn) handleTest(payload []byte) ([]byte, error) {
	req, err := decodeTestRequest(payload)
	if err != nil {
		return nil, ErrProtocol
	}
	return encodeTestReply(req.Echo), nil
}
