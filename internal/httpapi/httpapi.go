// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package httpapi exposes an optional debug HTTP listener alongside
// the binary RPC transport: a prometheus /metrics endpoint backing
// /apteryx/counters/* (pkg/selfconfig.Manager.MetricsRegistry) and a
// /healthz liveness probe, routed with gorilla/mux the way
// ClusterCockpit-cc-backend/cmd/cc-backend/server.go wires its own
// router, and exporting metrics the way
// other_examples/...ap.configd-configd.go's promhttp.Handler() call
// does. This is purely additive: the RPC path (pkg/rpc) never depends
// on it.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a small HTTP front door for operational visibility into a
// running apteryxd: metrics scraping and a liveness check. It carries
// no apteryx operation traffic.
type Server struct {
	httpSrv *http.Server
}

// New builds a Server whose /metrics handler reads reg (typically
// pkg/selfconfig.Manager.MetricsRegistry()) and whose /healthz always
// replies 200 while the process is up.
func New(reg *prometheus.Registry) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &Server{httpSrv: &http.Server{Handler: r}}
}

// Serve runs the debug listener's accept loop until l is closed.
func (s *Server) Serve(l net.Listener) error {
	return s.httpSrv.Serve(l)
}

// Shutdown gives in-flight requests up to the given grace period to
// finish before closing the listener, matching the bounded-drain
// shutdown behavior spec.md §5 asks of the daemon as a whole.
func (s *Server) Shutdown(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
