// Package server accepts TCP connections and drives each one through the
// wire/dispatch pipeline, one goroutine per connection.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/mongowire/mongowired/internal/dispatch"
	"github.com/sirupsen/logrus"
)

// Server listens on a single TCP address and serves the wire protocol on
// every accepted connection.
type Server struct {
	addr       string
	dispatcher *dispatch.Dispatcher
	log        *logrus.Logger
	nextConnID atomic.Int64
}

// New builds a Server bound to addr, routing every connection's frames
// through d and logging through log (nil selects logrus's standard logger).
func New(addr string, d *dispatch.Dispatcher, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{addr: addr, dispatcher: d, log: log}
}

// ListenAndServe binds addr and serves connections until the listener
// fails. A transient per-connection Accept error is logged and does not
// stop the loop.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	defer ln.Close()

	s.log.WithField("addr", s.addr).Info("mongowired listening")

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		id := s.nextConnID.Add(1)
		c := &conn{
			nc:         nc,
			id:         id,
			dispatcher: s.dispatcher,
			log:        s.log.WithField("conn_id", id),
		}
		go c.serve()
	}
}
