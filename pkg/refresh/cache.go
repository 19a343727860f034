// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package refresh implements the apteryx refresh cache (C3): the
// per-(pattern, prefix) ledger of when a refresher last ran, so reads
// within its TTL skip re-invoking it.
package refresh

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock returns microseconds since the epoch; pluggable for tests.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMicro() }

// Cache tracks refresher staleness windows. A sync/singleflight.Group
// collapses concurrent readers that land on the same (pattern, prefix)
// into one in-flight refresher call, which is the mechanism spec.md
// §4.3 describes as "serialize on a per-entry lock so the callback
// runs at most once per staleness window" — see DESIGN.md.
type Cache struct {
	mu      sync.Mutex
	expires map[string]int64
	group   singleflight.Group
	clock   Clock
}

// New returns an empty cache using the system clock.
func New() *Cache { return NewWithClock(systemClock) }

// NewWithClock returns an empty cache using a test-controlled clock.
func NewWithClock(c Clock) *Cache {
	if c == nil {
		c = systemClock
	}
	return &Cache{expires: make(map[string]int64), clock: c}
}

func key(pattern, prefix string) string { return pattern + "\x00" + prefix }

// Stale reports whether (pattern, prefix) has no recorded entry or its
// entry has expired, without invoking anything.
func (c *Cache) Stale(pattern, prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expires[key(pattern, prefix)]
	if !ok {
		return true
	}
	return c.clock() >= exp
}

// Ensure runs fn if (pattern, prefix) is stale or missing, recording
// the TTL (in microseconds) it returns. A TTL of zero means "always
// stale": the entry is never recorded as fresh, so the very next read
// re-invokes the refresher (spec.md §4.3). Concurrent callers on the
// same key share one fn invocation and its error.
func (c *Cache) Ensure(pattern, prefix string, fn func() (ttlUs int64, err error)) (invoked bool, err error) {
	if !c.Stale(pattern, prefix) {
		return false, nil
	}

	k := key(pattern, prefix)
	_, err, _ = c.group.Do(k, func() (interface{}, error) {
		// Re-check under the singleflight lock: a sibling call may
		// have already refreshed this key while we queued.
		if !c.Stale(pattern, prefix) {
			return nil, nil
		}
		ttl, ferr := fn()
		if ferr != nil {
			return nil, ferr
		}
		c.mu.Lock()
		if ttl > 0 {
			c.expires[k] = c.clock() + ttl
		} else {
			delete(c.expires, k)
		}
		c.mu.Unlock()
		return nil, nil
	})
	return true, err
}

// Invalidate forgets any recorded freshness for (pattern, prefix),
// forcing the next read to re-invoke the refresher.
func (c *Cache) Invalidate(pattern, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expires, key(pattern, prefix))
}

// Forget drops every entry for pattern, used when a refresher
// registration is torn down.
func (c *Cache) Forget(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := pattern + "\x00"
	for k := range c.expires {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.expires, k)
		}
	}
}
