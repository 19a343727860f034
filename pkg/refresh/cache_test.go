// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package refresh_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpackham-atlnz/apteryx/pkg/refresh"
)

func TestEnsureRunsOnceWithinTTL(t *testing.T) {
	now := int64(1_000_000)
	c := refresh.NewWithClock(func() int64 { return now })

	var calls int32
	run := func() (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 5000, nil // 5ms TTL
	}

	invoked, err := c.Ensure("/test/if/*", "/test/if/eth0", run)
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.EqualValues(t, 1, calls)

	invoked, err = c.Ensure("/test/if/*", "/test/if/eth0", run)
	require.NoError(t, err)
	assert.False(t, invoked)
	assert.EqualValues(t, 1, calls)

	now += 6000
	invoked, err = c.Ensure("/test/if/*", "/test/if/eth0", run)
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.EqualValues(t, 2, calls)
}

func TestZeroTTLAlwaysStale(t *testing.T) {
	c := refresh.New()
	var calls int32
	run := func() (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}
	for i := 0; i < 3; i++ {
		_, err := c.Ensure("/p", "/p/x", run)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls)
}

func TestConcurrentReadersCollapseToOneCall(t *testing.T) {
	c := refresh.New()
	var calls int32
	var wg sync.WaitGroup
	run := func() (int64, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return int64(time.Second.Microseconds()), nil
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Ensure("/test/if/*", "/test/if/eth0", run)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls)
}
