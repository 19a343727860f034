// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cpackham-atlnz/apteryx/pkg/status"
)

// defaultPoolSize bounds the number of idle connections a Pool keeps
// per process, evicting (and closing) the least-recently-used one
// beyond that bound.
const defaultPoolSize = 32

// Pool maintains a bounded set of pooled connections keyed by remote
// address, the client-side half of spec.md §4.6: "Clients maintain a
// pool of connections per remote; a connection that times out is
// closed and dropped from the pool."
type Pool struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Client]
	timeout time.Duration
}

// NewPool returns a Pool with room for maxConns idle connections and
// timeout applied to every call made through a pooled Client. maxConns
// <= 0 falls back to defaultPoolSize; timeout <= 0 falls back to
// DefaultRPCTimeout.
func NewPool(maxConns int, timeout time.Duration) *Pool {
	if maxConns <= 0 {
		maxConns = defaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	p := &Pool{timeout: timeout}
	cache, _ := lru.NewWithEvict[string, *Client](maxConns, func(_ string, c *Client) {
		c.Close()
	})
	p.cache = cache
	return p
}

func poolKey(network, address string) string {
	return network + "://" + address
}

// Get returns a pooled Client for network/address, dialing a fresh
// connection on a cache miss.
func (p *Pool) Get(network, address string) (*Client, error) {
	key := poolKey(network, address)

	p.mu.Lock()
	c, ok := p.cache.Get(key)
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("apteryx: dial %s: %w", key, err)
	}
	c.timeout = p.timeout

	p.mu.Lock()
	p.cache.Add(key, c)
	p.mu.Unlock()
	return c, nil
}

// Call runs fn against the pooled connection for network/address,
// dropping and closing that connection if fn reports a timeout so the
// next Get dials a fresh one (spec.md §4.6).
func (p *Pool) Call(network, address string, fn func(*Client) error) error {
	c, err := p.Get(network, address)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		if status.Is(err, status.ETIMEDOUT) {
			p.Drop(network, address)
		}
		return err
	}
	return nil
}

// Drop closes and evicts the pooled connection for network/address,
// if one is cached.
func (p *Pool) Drop(network, address string) {
	key := poolKey(network, address)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key)
}

// Close closes every pooled connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}
