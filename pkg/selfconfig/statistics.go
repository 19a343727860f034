// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig

import (
	"context"
	"fmt"

	"github.com/cpackham-atlnz/apteryx/pkg/registry"
)

// statisticsTTLUs is the staleness window spec.md §4.7 gives the
// /apteryx/statistics/* surface: "periodically refreshed ... (1 s
// TTL)".
const statisticsTTLUs = 1_000_000

// statisticsRefresh is the OnRefresh callback registered at
// /apteryx/statistics/*: it walks every registered callback and
// republishes its {count, min, avg, max} latency stats through the
// public Set path, so its own writes are timestamped and watchable
// like any other mutation (spec.md §4.7, §9's "dogfooding" note —
// nothing here special-cases the write).
func (m *Manager) statisticsRefresh(path string) (ttl int64) {
	ctx := context.Background()
	for _, kind := range registry.AllKinds() {
		recs := m.reg.All(kind)
		for _, rec := range recs {
			stats := rec.RecordStats()
			var avg int64
			if stats.Count > 0 {
				avg = stats.Total / stats.Count
			}
			value := fmt.Sprintf("%d,%d,%d,%d", stats.Count, stats.Min, avg, stats.Max)
			target := fmt.Sprintf("/apteryx/statistics/%s/%s", kind, rec.GUID())
			_ = m.eng.Set(ctx, originator, target, []byte(value))
			rec.Release()
		}
	}
	return statisticsTTLUs
}
