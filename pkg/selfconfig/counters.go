// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cpackham-atlnz/apteryx/pkg/registry"
)

// counterSet backs /apteryx/counters/* (spec.md §4.7) with real
// prometheus.Gauge instruments rather than hand-rolled counters: every
// read of a per-kind counter both answers the apteryx query and updates
// the matching gauge, so the same figures are independently scrapable
// over internal/httpapi's /metrics endpoint. The uptime counter has no
// gauge.
type counterSet struct {
	reg    *registry.Registry
	start  time.Time
	gauges *prometheus.GaugeVec
	promReg *prometheus.Registry
}

func newCounterSet(reg *registry.Registry) *counterSet {
	gauges := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "apteryx",
		Name:      "registered_callbacks",
		Help:      "Number of live callback registrations, by kind.",
	}, []string{"kind"})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(gauges)

	return &counterSet{reg: reg, start: time.Now(), gauges: gauges, promReg: promReg}
}

// Registry exposes the prometheus registry backing this counter set,
// for internal/httpapi's /metrics handler.
func (c *counterSet) Registry() *prometheus.Registry { return c.promReg }

// onRead is the OnProvide callback registered at /apteryx/counters/*.
func (c *counterSet) onRead(path string) (value []byte, ok bool) {
	name := lastSegment(path)
	if name == "uptime" {
		return []byte(strconv.FormatInt(int64(time.Since(c.start).Seconds()), 10)), true
	}

	kind, known := kindByCounterName(name)
	if !known {
		return nil, false
	}
	recs := c.reg.All(kind)
	n := len(recs)
	for _, r := range recs {
		r.Release()
	}
	c.gauges.WithLabelValues(name).Set(float64(n))
	return []byte(strconv.Itoa(n)), true
}

func kindByCounterName(name string) (registry.Kind, bool) {
	switch name {
	case "watchers":
		return registry.Watch, true
	case "validators":
		return registry.Validate, true
	case "providers":
		return registry.Provide, true
	case "refreshers":
		return registry.Refresh, true
	case "indexers":
		return registry.Index, true
	case "proxies":
		return registry.Proxy, true
	default:
		return 0, false
	}
}
