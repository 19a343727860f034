// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rpc

import (
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/cpackham-atlnz/apteryx/pkg/engine"
)

// Server accepts connections on one or more listeners and answers
// apteryx operations against a shared Engine, grounded on
// danos-configd/server/server.go's Srv: one accept loop per listener,
// one goroutine per accepted connection, a shared error logger.
type Server struct {
	eng       *engine.Engine
	logger    *log.Logger
	workerSem chan struct{}
}

// NewServer returns a Server answering requests against eng, bounding
// concurrent in-flight requests to maxWorkers (the server-side half of
// spec.md §6's "pools worker threads on the server"; 0 means
// unbounded).
func NewServer(eng *engine.Engine, logger *log.Logger, maxWorkers int) *Server {
	if logger == nil {
		logger = log.Default()
	}
	var sem chan struct{}
	if maxWorkers > 0 {
		sem = make(chan struct{}, maxWorkers)
	}
	return &Server{eng: eng, logger: logger, workerSem: sem}
}

// Serve runs l's accept loop until it returns an error (including on
// Close), matching the teacher's Srv.Serve transient-error retry
// idiom.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	originator := engine.Originator(uuid.NewString())
	c := newServerConn(conn, s.eng, originator, s.logger)
	for {
		if s.workerSem != nil {
			s.workerSem <- struct{}{}
		}
		err := c.serveOne()
		if s.workerSem != nil {
			<-s.workerSem
		}
		if err != nil {
			if err != errConnClosed {
				s.logger.Printf("apteryx: connection %s: %v", originator, err)
			}
			return
		}
	}
}
