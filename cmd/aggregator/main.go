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

// Package main wires the aggregation processor's collaborators into a
// runnable service: an HTTP ingest endpoint accepts one decoded record per
// request, a dispatcher routes it by (stream,db) to its owning Processor,
// and an outbound writer (stdout logger by default, Redis Streams when
// -redis_addr is set) carries forward-candidates onward. A Prometheus
// /metrics endpoint exposes the counters internal/metrics registers.
//
// This is a reference wiring, not a production ingest frontend: the real
// stream-metadata registry, dispatcher sharding policy and transport are
// external collaborators the processor package assumes exist upstream
// (see spec §1 "Out of scope"). Here every stream shares one flag-driven
// StreamInfo configuration, which is enough to exercise every pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamagg/internal/dispatcher"
	"streamagg/internal/frontend"
	"streamagg/internal/outqueue"
	"streamagg/internal/processor"
	"streamagg/internal/record"
	"streamagg/internal/sinks"
	"streamagg/internal/streaminfo"
	"streamagg/internal/tracker"
)

func main() {
	// Dispatcher shape.
	shards := flag.Int("shards", 4, "Number of dispatcher shard goroutines (each owns a private Processor table)")
	shardQueue := flag.Int("shard_queue", 1024, "Per-shard pending-WorkItem buffer size")

	// Default StreamInfo knobs, applied to every (stream,db) pair this demo
	// sees. A real deployment replaces configFor with a lookup against the
	// stream-metadata registry (out of scope here, per spec §1/§3).
	importThreshold := flag.Float64("import_threshold", 2000, "Default stream import_threshold (ms) driving the SLOW_REQUEST sampling bit")
	samplingRateThreshold := flag.Int("sampling_rate_400s", 0, "Default stream sampling_rate_400s_threshold (0..MAX_RANDOM)")
	ignoredPrefix := flag.String("ignored_prefix", "", "Default stream ignored_request_prefix")
	hardLimitStorage := flag.Int64("hard_limit_storage_size", 1_000_000_000, "HARD_LIMIT_STORAGE_SIZE (§6)")
	softLimitStorage := flag.Int64("soft_limit_storage_size", 800_000_000, "SOFT_LIMIT_STORAGE_SIZE (§6)")
	insertsPerSecond := flag.Int64("inserts_per_second", 10_000, "Per-stream rate gate: max forwarded inserts admitted per second")
	allBackendOnly := flag.Bool("all_requests_backend_only", false, "Default stream all_requests_are_backend_only_requests: never register backend requests with the tracker (§3)")
	backendOnlyPrefixes := flag.String("backend_only_prefixes", "", "Comma-separated default stream backend_only_requests action-prefixes (§3)")

	// Frontend decoding knobs.
	apdexAttrName := flag.String("frontend_apdex_attribute", "loadEventEnd", "Page apdex attribute: domInteractive or loadEventEnd (§4.4)")
	outlierThresholdMS := flag.Int64("fe_outlier_threshold_ms", processor.FrontendOutlierThresholdMS, "FE_MSG_OUTLIER_THRESHOLD_MS (§6)")
	frontendTimingsCSV := flag.String("frontend_timings_csv", "", "If set, append one CSV row per accepted frontend record to this path (§6 optional sink)")

	// Transport.
	redisAddr := flag.String("redis_addr", "", "If set, ship outbound messages to this Redis address via XAdd instead of logging them")
	queueBuffer := flag.Int("queue_buffer", 8192, "Outbound queue channel buffer size")
	queueRetries := flag.Int("queue_max_retries", 2, "Outbound queue max retries per message before it is dropped")
	queueRetryBackoff := flag.Duration("queue_retry_backoff", 20*time.Millisecond, "Outbound queue backoff between retries")

	// Tracker lifetime.
	trackerTTL := flag.Duration("tracker_ttl", 2*time.Minute, "How long a backend request_id waits for a matching frontend/ajax record before it is swept")
	trackerSweepInterval := flag.Duration("tracker_sweep_interval", 30*time.Second, "How often the tracker scans for expired entries")

	// Serving.
	httpAddr := flag.String("http_addr", ":8080", "HTTP ingest address; POST /ingest/{request,js_exception,frontend,ajax,event}?stream=S&db=D")
	metricsAddr := flag.String("metrics_addr", ":9090", "Prometheus /metrics listen address")
	replenishInterval := flag.Duration("rategate_replenish_interval", time.Second, "How often every stream's rate gate window resets (§4.5 throttling)")
	flag.Parse()

	apdexAttr, err := frontend.SetApdexAttribute(*apdexAttrName)
	if err != nil {
		log.Fatalf("aggregator: %v", err)
	}

	var timingsSink *sinks.FrontendTimingsSink
	if *frontendTimingsCSV != "" {
		timingsSink, err = sinks.NewFrontendTimingsSink(*frontendTimingsCSV)
		if err != nil {
			log.Fatalf("aggregator: open frontend timings sink: %v", err)
		}
		defer timingsSink.Close()
	}

	var writer outqueue.Writer = outqueue.LoggingWriter{}
	var redisWriter *outqueue.RedisStreamWriter
	if *redisAddr != "" {
		redisWriter = outqueue.NewRedisStreamWriter(*redisAddr)
		writer = redisWriter
	}

	queue := outqueue.NewQueue(writer, *queueBuffer, *queueRetries, *queueRetryBackoff, func(msg outqueue.OutboundMessage, err error) {
		log.Printf("aggregator: dropped outbound message db=%s kind=%s stream=%s: %v", msg.DB, msg.Kind, msg.StreamKey, err)
	})
	queue.Start()
	defer queue.Stop()

	var backendOnlyPrefixList []string
	if *backendOnlyPrefixes != "" {
		backendOnlyPrefixList = strings.Split(*backendOnlyPrefixes, ",")
	}

	registry := streaminfo.NewRegistry(func(key string) streaminfo.Config {
		return streaminfo.Config{
			ImportThreshold:        *importThreshold,
			SamplingRateThreshold:  *samplingRateThreshold,
			IgnoredPrefix:          *ignoredPrefix,
			HardLimitStorageSize:   *hardLimitStorage,
			SoftLimitStorageSize:   *softLimitStorage,
			InsertsPerSecond:       *insertsPerSecond,
			AllRequestsBackendOnly: *allBackendOnly,
			BackendOnlyPrefixes:    backendOnlyPrefixList,
		}
	})

	trk := tracker.New(*trackerTTL)
	trk.Start(*trackerSweepInterval)
	defer trk.Stop()

	stopReplenish := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*replenishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.ReplenishAll()
			case <-stopReplenish:
				return
			}
		}
	}()
	defer close(stopReplenish)

	factory := func(key string) *processor.Processor {
		streamKey, db := splitKey(key)
		stream := registry.Acquire(key)
		p := processor.New(processor.Config{
			DB:                 db,
			StreamKey:          streamKey,
			ApdexAttribute:     apdexAttr,
			OutlierThresholdMS: *outlierThresholdMS,
		}, stream, trk, queue)
		p.SetOnClose(func() { registry.Release(key) })
		if timingsSink != nil {
			p.SetTimingsSink(timingsSink)
		}
		return p
	}

	disp := dispatcher.New(*shards, *shardQueue, factory)
	defer disp.Stop()

	mux := newIngestMux(disp)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		fmt.Printf("aggregator: ingest listening on %s, metrics on %s\n", *httpAddr, *metricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("aggregator: ingest server: %v", err)
		}
	}()

	if *metricsAddr != *httpAddr {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("aggregator: metrics server: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("aggregator: shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("aggregator: ingest server shutdown: %v", err)
	}
	if redisWriter != nil {
		_ = redisWriter.Close()
	}
	fmt.Println("aggregator: stopped.")
}

// splitKey recovers the (streamKey, db) pair a dispatcher WorkItem.Key was
// built from; see keyFor.
func splitKey(key string) (streamKey, db string) {
	i := strings.LastIndexByte(key, '|')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// keyFor builds the dispatcher routing key for a (stream,db) pair.
func keyFor(streamKey, db string) string {
	return streamKey + "|" + db
}

// newIngestMux assembles the /ingest/* routes and /metrics into one mux,
// factored out of main so tests can exercise it with httptest without
// standing up the real listeners.
func newIngestMux(disp *dispatcher.Dispatcher) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ingest/request", ingestHandler(disp, dispatcher.MethodAddRequest))
	mux.HandleFunc("/ingest/js_exception", ingestHandler(disp, dispatcher.MethodAddJSException))
	mux.HandleFunc("/ingest/frontend", ingestHandler(disp, dispatcher.MethodAddFrontendData))
	mux.HandleFunc("/ingest/ajax", ingestHandler(disp, dispatcher.MethodAddAjaxData))
	mux.HandleFunc("/ingest/event", ingestHandler(disp, dispatcher.MethodAddEvent))
	return mux
}

// ingestHandler decodes one JSON record from the request body and submits
// it to the dispatcher under the (stream,db) pair named by the ?stream=
// and ?db= query parameters, addressed to method.
func ingestHandler(disp *dispatcher.Dispatcher, method dispatcher.Method) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		streamKey := r.URL.Query().Get("stream")
		db := r.URL.Query().Get("db")
		if streamKey == "" || db == "" {
			http.Error(w, "stream and db query parameters are required", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
			return
		}
		rec, err := record.Decode(body)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
			return
		}
		disp.Submit(dispatcher.WorkItem{
			Key:    keyFor(streamKey, db),
			Method: method,
			Record: rec,
		})
		w.WriteHeader(http.StatusAccepted)
	}
}
