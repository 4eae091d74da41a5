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

package client

import (
	"log"
	"net"
	"sync"
	"time"

	"cascade/internal/counterpipe/emit"
	"cascade/internal/counterpipe/telemetry"
	"cascade/internal/counterpipe/wire"
	"cascade/pkg/bgpub"
)

// DefaultCollectorAddr is where the collector listens unless configured
// otherwise.
const DefaultCollectorAddr = "127.0.0.1:7878"

// Config assembles a Pipeline. Zero values select the defaults.
type Config struct {
	// CollectorAddr is the collector endpoint, for both publishing and
	// reads. Defaults to DefaultCollectorAddr.
	CollectorAddr string
	// Emitter overrides the publish sink. When nil, a TCP emitter to
	// CollectorAddr is used.
	Emitter emit.Emitter
	// Clock overrides the sample clock. When nil, the system clock.
	Clock wire.Clock
	// DialTimeout and IOTimeout bound GetCount's connection use.
	DialTimeout time.Duration
	IOTimeout   time.Duration
	// MaxFrame bounds reply frames on reads. Zero selects the default.
	MaxFrame uint32
}

// Pipeline is one counter namespace: an increment queue feeding a dedicated
// aggregator worker, plus a synchronous read path to the collector.
type Pipeline struct {
	cfg Config
	bg  *bgpub.Background[string]
}

// New builds a Pipeline from cfg. The worker starts lazily on the first
// Increment.
func New(cfg Config) *Pipeline {
	if cfg.CollectorAddr == "" {
		cfg.CollectorAddr = DefaultCollectorAddr
	}
	if cfg.Clock == nil {
		cfg.Clock = wire.SystemClock
	}
	if cfg.Emitter == nil {
		cfg.Emitter = emit.NewTCPEmitter(cfg.CollectorAddr)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 10 * time.Second
	}
	if cfg.MaxFrame == 0 {
		cfg.MaxFrame = wire.DefaultMaxFrame
	}
	p := &Pipeline{cfg: cfg}
	p.bg = bgpub.New[string](func() bgpub.Publisher[string] {
		return NewAggregator(cfg.Clock, cfg.Emitter)
	})
	return p
}

// Increment records one occurrence of the named counter. It never fails
// observably: a full or closed queue is logged and the increment dropped.
func (p *Pipeline) Increment(counter string) {
	if err := p.bg.Send(counter); err != nil {
		telemetry.RecordQueueDrop()
		log.Printf("client: increment %q dropped: %v", counter, err)
	}
}

// GetCount asks the collector for the named counter's current summary and
// returns its count. The request and its reply share one connection. Any
// transport failure is logged and reported as zero.
func (p *Pipeline) GetCount(counter string) uint64 {
	conn, err := net.DialTimeout("tcp", p.cfg.CollectorAddr, p.cfg.DialTimeout)
	if err != nil {
		log.Printf("client: get_count %q: %v", counter, err)
		return 0
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout)); err != nil {
		log.Printf("client: get_count %q: %v", counter, err)
		return 0
	}
	if err := wire.WriteMessage(conn, wire.NewRead(counter)); err != nil {
		log.Printf("client: get_count %q: %v", counter, err)
		return 0
	}
	st, err := wire.ReadState(conn, p.cfg.MaxFrame)
	if err != nil {
		log.Printf("client: get_count %q: %v", counter, err)
		return 0
	}
	return st.Count
}

// Close shuts the pipeline down, draining queued increments through the
// aggregator before returning. Idempotent.
func (p *Pipeline) Close() {
	p.bg.Close()
}

// The process-wide pipeline. Modules that can take a handle should; the
// package-level functions exist for call sites where threading one through
// is impractical.
var (
	defaultMu       sync.Mutex
	defaultPipeline *Pipeline
)

// Default returns the process-wide Pipeline, creating it against the
// default collector address on first use.
func Default() *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPipeline == nil {
		defaultPipeline = New(Config{})
	}
	return defaultPipeline
}

// Increment records one occurrence on the process-wide pipeline.
func Increment(counter string) {
	Default().Increment(counter)
}

// GetCount reads the named counter through the process-wide pipeline.
func GetCount(counter string) uint64 {
	return Default().GetCount(counter)
}
