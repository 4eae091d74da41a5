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

// Package telemetry holds the process-level Prometheus metrics for the
// counter pipeline. Metrics are global and label-free (no unbounded counter
// name cardinality) and registered eagerly; if no metrics endpoint is
// exposed the registration is harmless.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_frames_decoded_total",
		Help: "Total frames successfully decoded by the collector",
	})
	decodeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_decode_errors_total",
		Help: "Total frames or payloads the collector failed to decode",
	})
	updatesAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_updates_applied_total",
		Help: "Total Update messages applied to the cascade store",
	})
	readsServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_reads_served_total",
		Help: "Total Read messages answered by the collector",
	})
	samplesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_samples_dropped_total",
		Help: "Total samples discarded for being older than the whole cascade",
	})
	countersTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "counterpipe_counters_tracked",
		Help: "Number of counters currently held in the cascade store",
	})
	emitAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_emit_attempts_total",
		Help: "Total client-side update emissions attempted",
	})
	emitFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_emit_failures_total",
		Help: "Total client-side update emissions that failed transport",
	})
	queueDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterpipe_queue_drops_total",
		Help: "Total increments dropped because the background queue was full or closed",
	})
)

func init() {
	prometheus.MustRegister(
		framesDecodedTotal, decodeErrorsTotal, updatesAppliedTotal,
		readsServedTotal, samplesDroppedTotal, countersTracked,
		emitAttemptsTotal, emitFailuresTotal, queueDropsTotal,
	)
}

// RecordFrameDecoded counts one successfully decoded frame.
func RecordFrameDecoded() { framesDecodedTotal.Inc() }

// RecordDecodeError counts one undecodable frame or payload.
func RecordDecodeError() { decodeErrorsTotal.Inc() }

// RecordUpdateApplied counts one applied Update plus any samples it lost to
// the age bound.
func RecordUpdateApplied(droppedSamples int) {
	updatesAppliedTotal.Inc()
	if droppedSamples > 0 {
		samplesDroppedTotal.Add(float64(droppedSamples))
	}
}

// RecordReadServed counts one answered Read.
func RecordReadServed() { readsServedTotal.Inc() }

// SetCountersTracked reports the store's current size.
func SetCountersTracked(n int) { countersTracked.Set(float64(n)) }

// RecordEmit counts one client emission attempt and whether it failed.
func RecordEmit(failed bool) {
	emitAttemptsTotal.Inc()
	if failed {
		emitFailuresTotal.Inc()
	}
}

// RecordQueueDrop counts one increment that never reached the worker.
func RecordQueueDrop() { queueDropsTotal.Inc() }

// Serve starts a standalone /metrics endpoint on addr. If you already expose
// Prometheus elsewhere, skip this and register promhttp yourself. The server
// runs until the process exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	fmt.Printf("Metrics endpoint listening on %s/metrics\n", addr)
	return srv.ListenAndServe()
}
