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

// Package main runs the counter collector: the TCP service that receives
// framed counter updates and serves reads against the per-counter cascade
// store.
//
// This file orchestrates the service:
// 1. Parsing configuration flags.
// 2. Building the store and the TCP server.
// 3. Optionally exposing Prometheus metrics.
// 4. Managing graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade/internal/counterpipe/server"
	"cascade/internal/counterpipe/telemetry"
	"cascade/internal/counterpipe/wire"
)

func main() {
	// Configuration knobs:
	// - listen_addr: where clients publish updates and issue reads
	// - metrics_addr: standalone Prometheus endpoint; empty disables it
	// - max_frame: per-frame payload bound in bytes
	// - idle_timeout: drop connections idle between frames for this long; 0 disables
	listenAddr := flag.String("listen_addr", server.DefaultListenAddr, "TCP address for the collector")
	metricsAddr := flag.String("metrics_addr", "", "Address for the Prometheus /metrics endpoint (empty to disable)")
	maxFrame := flag.Uint("max_frame", wire.DefaultMaxFrame, "Maximum accepted frame payload in bytes")
	idleTimeout := flag.Duration("idle_timeout", 0, "Connection idle timeout between frames (0 to disable)")
	flag.Parse()

	store := server.NewStore()
	srv := server.New(store, server.Config{
		Addr:        *listenAddr,
		MaxFrame:    uint32(*maxFrame),
		IdleTimeout: *idleTimeout,
	})

	if *metricsAddr != "" {
		go func() {
			if err := telemetry.Serve(*metricsAddr); err != nil {
				log.Printf("metrics endpoint failed: %v", err)
			}
		}()
	}

	if err := srv.Listen(); err != nil {
		log.Fatalf("FATAL: could not bind %s: %v", *listenAddr, err)
	}

	// Serve in the background so this goroutine can wait on signals.
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		srv.Shutdown()
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("FATAL: collector failed: %v", err)
		}
	}

	// Give in-flight log lines a moment before the process exits.
	time.Sleep(50 * time.Millisecond)
	fmt.Printf("Collector stopped. Counters tracked: %d\n", store.Len())
}
