// Package emit provides the client-side update sinks: the primary TCP
// emitter that delivers framed Update messages to the collector, plus
// optional mirrors (Redis, Kafka) that fan published updates out to other
// systems.
//
// Mirrors are best-effort observers of what was published; they never affect
// the outcome of the primary emission.
package emit

import (
	"fmt"
	"log"
	"net"
	"time"

	"cascade/internal/counterpipe/wire"
)

// Emitter delivers one Update message somewhere.
type Emitter interface {
	EmitUpdate(msg wire.UpdateMessage) error
}

// TCPEmitter is the primary sink: it opens a connection to the collector,
// writes exactly one framed Update, and closes. Connection pooling is a
// possible optimization, not part of the contract.
type TCPEmitter struct {
	Addr        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewTCPEmitter returns an emitter for the given collector address with
// sane timeouts.
func NewTCPEmitter(addr string) *TCPEmitter {
	return &TCPEmitter{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		IOTimeout:   10 * time.Second,
	}
}

// EmitUpdate sends msg as a single frame on a fresh connection.
func (e *TCPEmitter) EmitUpdate(msg wire.UpdateMessage) error {
	conn, err := net.DialTimeout("tcp", e.Addr, e.DialTimeout)
	if err != nil {
		return fmt.Errorf("emit: dial %s: %w", e.Addr, err)
	}
	defer conn.Close()
	if e.IOTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(e.IOTimeout)); err != nil {
			return fmt.Errorf("emit: set deadline: %w", err)
		}
	}
	if err := wire.WriteMessage(conn, wire.NewUpdate(msg.Counter, msg.State)); err != nil {
		return fmt.Errorf("emit: send update for %q: %w", msg.Counter, err)
	}
	return nil
}

// Multi wraps a primary emitter with mirrors. The primary's error is the
// result; mirror errors are logged and dropped.
type Multi struct {
	Primary Emitter
	Mirrors []Emitter
}

// EmitUpdate delivers to the primary first, then to each mirror.
func (m *Multi) EmitUpdate(msg wire.UpdateMessage) error {
	err := m.Primary.EmitUpdate(msg)
	for _, mirror := range m.Mirrors {
		if merr := mirror.EmitUpdate(msg); merr != nil {
			log.Printf("emit: mirror failed for %q: %v", msg.Counter, merr)
		}
	}
	return err
}
