// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"cascade/internal/counterpipe/telemetry"
	"cascade/internal/counterpipe/wire"
)

// DefaultListenAddr is the collector's endpoint unless configured.
const DefaultListenAddr = "127.0.0.1:7878"

// Config configures the collector. Zero values select the defaults.
type Config struct {
	// Addr to bind; defaults to DefaultListenAddr.
	Addr string
	// MaxFrame bounds accepted frame payloads. Zero selects the default;
	// values below the protocol floor are raised to it.
	MaxFrame uint32
	// IdleTimeout, when positive, bounds how long a connection may sit
	// between frames before it is dropped.
	IdleTimeout time.Duration
	// Clock overrides arrival stamping; nil selects the system clock.
	Clock wire.Clock
}

// Server accepts connections and dispatches framed counter messages against
// the store. Each connection is served by its own goroutine; updates for
// distinct counters proceed in parallel and updates for one counter
// serialize under its mutex.
type Server struct {
	cfg   Config
	store *Store

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// New returns a collector over store.
func New(store *Store, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultListenAddr
	}
	if cfg.MaxFrame == 0 {
		cfg.MaxFrame = wire.DefaultMaxFrame
	}
	if cfg.Clock == nil {
		cfg.Clock = wire.SystemClock
	}
	return &Server{
		cfg:   cfg,
		store: store,
		conns: make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address. Call before Serve when the caller
// needs the bound address (tests bind port 0).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr reports the bound address. Only valid after Listen.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve accepts connections until Shutdown. It returns nil on graceful
// shutdown.
func (s *Server) Serve() error {
	log.Printf("server: collector listening on %s", s.Addr())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Shutdown stops accepting, closes live connections, and waits for their
// goroutines to finish. Idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	if s.ln != nil {
		s.ln.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// handleConn reads framed messages until EOF or error. Decode and transport
// failures close this connection only.
func (s *Server) handleConn(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return
			}
		}
		msg, err := wire.ReadMessage(r, s.cfg.MaxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// Timeouts and closed or reset sockets are transport failures,
			// not decode errors.
			var netErr net.Error
			if !errors.As(err, &netErr) {
				telemetry.RecordDecodeError()
			}
			log.Printf("server: connection from %s dropped: %v", conn.RemoteAddr(), err)
			return
		}
		telemetry.RecordFrameDecoded()

		// Arrival is stamped after decode so slow frames age correctly.
		now := s.cfg.Clock()
		switch {
		case msg.Update != nil:
			s.applyUpdate(*msg.Update, now)
		case msg.Read != nil:
			if err := s.serveRead(conn, *msg.Read, now); err != nil {
				log.Printf("server: reply to %s failed: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}

func (s *Server) applyUpdate(msg wire.UpdateMessage, now uint64) {
	for _, st := range msg.State {
		log.Printf("%s [%d]: %d", msg.Counter, st.EpochMinutes, st.Count)
	}
	dropped := s.store.ApplyUpdate(msg, now)
	telemetry.RecordUpdateApplied(dropped)
}

// serveRead writes the framed summary reply on the same connection the
// request arrived on.
func (s *Server) serveRead(conn net.Conn, counter string, now uint64) error {
	summary := s.store.ReadSummary(counter, now)
	telemetry.RecordReadServed()
	if s.cfg.IdleTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return err
		}
	}
	return wire.WriteState(conn, summary)
}
