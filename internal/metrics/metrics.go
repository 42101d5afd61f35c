// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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

// Package metrics registers the process-wide Prometheus collectors a
// Processor reports through: queued vs. throttled inserts per stream,
// frontend/ajax drop reasons, and how many processor instances are live.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	queuedInsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamagg_queued_inserts_total",
		Help: "Total records successfully handed to the outbound queue, per stream/database.",
	}, []string{"stream", "db"})

	throttledInsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamagg_throttled_inserts_total",
		Help: "Total records dropped by throttling, per stream/database/verdict.",
	}, []string{"stream", "db", "verdict"})

	frontendDropReasonsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamagg_frontend_drop_reasons_total",
		Help: "Total frontend/ajax records dropped, per stream/drop reason.",
	}, []string{"stream", "reason"})

	processorInstances = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamagg_processor_instances",
		Help: "Number of live Processor instances in this process.",
	})
)

func init() {
	prometheus.MustRegister(queuedInsertsTotal, throttledInsertsTotal, frontendDropReasonsTotal, processorInstances)
}

// QueuedInsert records one record successfully handed to the outbound
// queue for (stream, db).
func QueuedInsert(stream, db string) {
	queuedInsertsTotal.WithLabelValues(stream, db).Inc()
}

// ThrottledInsert records one record dropped by throttling for
// (stream, db), labeled by the throttling verdict's string form.
func ThrottledInsert(stream, db, verdict string) {
	throttledInsertsTotal.WithLabelValues(stream, db, verdict).Inc()
}

// FrontendDropped records one frontend/ajax record dropped for stream,
// labeled by the drop reason's string form.
func FrontendDropped(stream, reason string) {
	frontendDropReasonsTotal.WithLabelValues(stream, reason).Inc()
}

// ProcessorStarted increments the live-processor-instances gauge; pair
// with ProcessorStopped.
func ProcessorStarted() { processorInstances.Inc() }

// ProcessorStopped decrements the live-processor-instances gauge.
func ProcessorStopped() { processorInstances.Dec() }
