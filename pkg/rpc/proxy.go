// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/cpackham-atlnz/apteryx/pkg/engine"
	"github.com/cpackham-atlnz/apteryx/pkg/status"
)

// ProxyClient implements engine.ProxyDialer by forwarding operations
// over this package's own wire protocol to whatever unix://, tcp://
// or tcp6:// URI a proxy registration names (spec.md §4.4.8), reusing
// one pooled connection per remote address.
type ProxyClient struct {
	pool *Pool
}

var _ engine.ProxyDialer = (*ProxyClient)(nil)

// NewProxyClient builds a ProxyClient backed by pool. A nil pool gets
// a private one with default sizing.
func NewProxyClient(pool *Pool) *ProxyClient {
	if pool == nil {
		pool = NewPool(0, 0)
	}
	return &ProxyClient{pool: pool}
}

func splitProxyURI(uri string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(uri, "unix://"):
		return "unix", strings.TrimPrefix(uri, "unix://"), nil
	case strings.HasPrefix(uri, "tcp://"):
		return "tcp", strings.TrimPrefix(uri, "tcp://"), nil
	case strings.HasPrefix(uri, "tcp6://"):
		return "tcp6", strings.TrimPrefix(uri, "tcp6://"), nil
	default:
		return "", "", fmt.Errorf("apteryx: unsupported proxy uri %q", uri)
	}
}

// forward dials (or reuses) the connection for uri and runs do against
// it. handled is false whenever the remote could not be reached at
// all — malformed URI, dial failure, or a request timeout — so the
// engine falls through to the local tree per spec.md §4.4.8; handled
// is true whenever the remote actually answered, even if that answer
// is itself an error status (a validator refusal, say).
func (p *ProxyClient) forward(uri string, do func(c *Client) error) (handled bool, err error) {
	network, address, perr := splitProxyURI(uri)
	if perr != nil {
		return false, nil
	}
	c, derr := p.pool.Get(network, address)
	if derr != nil {
		return false, nil
	}
	err = do(c)
	if err != nil && status.Is(err, status.ETIMEDOUT) {
		p.pool.Drop(network, address)
		return false, nil
	}
	return true, err
}

func (p *ProxyClient) ProxySet(ctx context.Context, uri, path string, value []byte) (bool, error) {
	return p.forward(uri, func(c *Client) error { return c.Set(path, value) })
}

func (p *ProxyClient) ProxyCas(ctx context.Context, uri, path string, value []byte, expectedTs int64) (bool, error) {
	return p.forward(uri, func(c *Client) error { return c.Cas(path, value, expectedTs) })
}

func (p *ProxyClient) ProxyGet(ctx context.Context, uri, path string) (handled bool, value []byte, ok bool, err error) {
	network, address, perr := splitProxyURI(uri)
	if perr != nil {
		return false, nil, false, nil
	}
	c, derr := p.pool.Get(network, address)
	if derr != nil {
		return false, nil, false, nil
	}
	value, ok, err = c.Get(path)
	if err != nil && status.Is(err, status.ETIMEDOUT) {
		p.pool.Drop(network, address)
		return false, nil, false, nil
	}
	return true, value, ok, err
}

func (p *ProxyClient) ProxySearch(ctx context.Context, uri, prefix string) (handled bool, children []string, err error) {
	network, address, perr := splitProxyURI(uri)
	if perr != nil {
		return false, nil, nil
	}
	c, derr := p.pool.Get(network, address)
	if derr != nil {
		return false, nil, nil
	}
	children, err = c.Search(prefix)
	if err != nil && status.Is(err, status.ETIMEDOUT) {
		p.pool.Drop(network, address)
		return false, nil, nil
	}
	return true, children, err
}

func (p *ProxyClient) ProxyPrune(ctx context.Context, uri, path string) (bool, error) {
	return p.forward(uri, func(c *Client) error { return c.Prune(path, 0) })
}

func (p *ProxyClient) ProxyTimestamp(ctx context.Context, uri, path string) (handled bool, ts int64, exists bool, err error) {
	network, address, perr := splitProxyURI(uri)
	if perr != nil {
		return false, 0, false, nil
	}
	c, derr := p.pool.Get(network, address)
	if derr != nil {
		return false, 0, false, nil
	}
	ts, err = c.Timestamp(path)
	if err != nil && status.Is(err, status.ETIMEDOUT) {
		p.pool.Drop(network, address)
		return false, 0, false, nil
	}
	return true, ts, ts != 0, err
}
