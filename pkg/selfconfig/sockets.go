// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/cpackham-atlnz/apteryx/pkg/rpc"
)

// socketManager implements the /apteryx/sockets/<guid> watcher of
// spec.md §4.7: "reacts to writes ... by binding or releasing a
// listener at the configured URI." A write binds (or rebinds) a
// listener and hands it to the shared rpc.Server; a delete (the empty
// value queueWatchers delivers on prune) releases it.
type socketManager struct {
	srv *rpc.Server

	mu        sync.Mutex
	listeners map[string]net.Listener
}

func newSocketManager(srv *rpc.Server) *socketManager {
	return &socketManager{srv: srv, listeners: make(map[string]net.Listener)}
}

func (s *socketManager) onWrite(ctx context.Context, path string, value []byte) {
	guid := lastSegment(path)
	if len(value) == 0 {
		s.release(guid)
		return
	}

	network, address, err := parseListenURI(string(value))
	if err != nil {
		return
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return
	}

	s.mu.Lock()
	old, hadOld := s.listeners[guid]
	s.listeners[guid] = l
	s.mu.Unlock()
	if hadOld {
		old.Close()
	}
	if s.srv != nil {
		go s.srv.Serve(l)
	}
}

func (s *socketManager) release(guid string) {
	s.mu.Lock()
	l, ok := s.listeners[guid]
	delete(s.listeners, guid)
	s.mu.Unlock()
	if ok {
		l.Close()
	}
}

// parseListenURI splits a "unix://" or "tcp://" listen URI into the
// (network, address) pair net.Listen expects.
func parseListenURI(uri string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(uri, "unix://"):
		return "unix", strings.TrimPrefix(uri, "unix://"), nil
	case strings.HasPrefix(uri, "tcp://"):
		return "tcp", strings.TrimPrefix(uri, "tcp://"), nil
	case strings.HasPrefix(uri, "tcp6://"):
		return "tcp6", strings.TrimPrefix(uri, "tcp6://"), nil
	default:
		return "", "", fmt.Errorf("apteryx: unsupported socket URI %q", uri)
	}
}
