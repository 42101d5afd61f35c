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

// Package processor implements the Processor type: the five ingest entry
// points (AddRequest, AddJSException, AddFrontendData, AddAjaxData,
// AddEvent) that normalize a record, fold it into a Store's aggregation
// maps, and forward interesting records to the outbound queue (§4.7).
//
// A Processor is single-owner: every method is called from one goroutine.
// Concurrency lives at its boundaries only — the stream-info registry, the
// tracker, the outbound queue and the Prometheus collectors are all safe
// for concurrent use by design, but the Processor itself is not.
package processor

import (
	"math/rand"

	"streamagg/internal/aggstore"
	"streamagg/internal/frontend"
	"streamagg/internal/metrics"
	"streamagg/internal/normalize"
	"streamagg/internal/outqueue"
	"streamagg/internal/record"
	"streamagg/internal/sampling"
	"streamagg/internal/sinks"
	"streamagg/internal/streaminfo"
	"streamagg/internal/tracker"
	"streamagg/pkg/increments"
)

// FrontendOutlierThresholdMS is the default outlier cutoff for page_time
// and ajax_time (§6 configuration knob FE_MSG_OUTLIER_THRESHOLD_MS).
const FrontendOutlierThresholdMS = 3_600_000

// Config configures one Processor instance.
type Config struct {
	DB                 string
	StreamKey          string
	ApdexAttribute     frontend.ApdexAttribute
	ApdexTargets       increments.ApdexTargets
	OutlierThresholdMS int64
}

// Processor owns one (stream,database) pair's aggregation state and wires
// normalize+frontend+sampling+aggstore+tracker+outqueue+metrics together.
type Processor struct {
	cfg     Config
	stream  *streaminfo.StreamInfo
	store   *aggstore.Store
	tracker *tracker.Tracker
	queue   *outqueue.Queue
	rng     sampling.RandSource
	onClose func()

	timingsSink *sinks.FrontendTimingsSink
}

// New creates a Processor. stream must already be acquired by the caller
// (typically a dispatcher) for the Processor's lifetime.
func New(cfg Config, stream *streaminfo.StreamInfo, trk *tracker.Tracker, queue *outqueue.Queue) *Processor {
	if cfg.ApdexAttribute == (frontend.ApdexAttribute{}) {
		cfg.ApdexAttribute = frontend.DefaultApdexAttribute
	}
	if cfg.ApdexTargets == (increments.ApdexTargets{}) {
		cfg.ApdexTargets = increments.DefaultApdexTargets
	}
	if cfg.OutlierThresholdMS == 0 {
		cfg.OutlierThresholdMS = FrontendOutlierThresholdMS
	}
	p := &Processor{
		cfg:     cfg,
		stream:  stream,
		store:   aggstore.New(),
		tracker: trk,
		queue:   queue,
		rng:     rand.New(rand.NewSource(1)),
	}
	metrics.ProcessorStarted()
	return p
}

// SetRandSource overrides the sampling/throttling random source (tests
// inject a deterministic one).
func (p *Processor) SetRandSource(rng sampling.RandSource) { p.rng = rng }

// Store exposes the aggregation state for inspection (dumps, tests).
func (p *Processor) Store() *aggstore.Store { return p.store }

// Tracker exposes the shared request-id tracker (dumps, tests).
func (p *Processor) Tracker() *tracker.Tracker { return p.tracker }

// SetOnClose registers a callback invoked once from Close. A dispatcher
// evicting this Processor uses it to release the stream-info reference
// Acquire handed out when the Processor was created (§3 "destruction
// releases the stream-info reference").
func (p *Processor) SetOnClose(fn func()) { p.onClose = fn }

// SetTimingsSink wires the optional CSV sink (§6) that receives one row
// per accepted frontend navigation-timing record.
func (p *Processor) SetTimingsSink(sink *sinks.FrontendTimingsSink) { p.timingsSink = sink }

// Close releases resources held for this Processor's lifetime.
func (p *Processor) Close() {
	metrics.ProcessorStopped()
	if p.onClose != nil {
		p.onClose()
	}
}

func (p *Processor) backendOnly(page string) bool {
	if p.stream.AllRequestsBackendOnly {
		return true
	}
	for _, prefix := range p.stream.BackendOnlyPrefixes {
		if len(page) >= len(prefix) && page[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func fillMetrics(inc *increments.Increment, rec *record.Record) {
	for i := increments.Resource(0); i < increments.NumMetrics; i++ {
		if v, ok := rec.GetFloat(i.Name()); ok {
			inc.SetMetric(i, v)
		}
	}
}

// dropFrontend records a frontend/ajax drop against both the per-agent
// aggstore stats and the Prometheus drop-reason counter, then returns the
// reason for the caller to propagate.
func (p *Processor) dropFrontend(agent string, reason frontend.DropReason) frontend.DropReason {
	p.store.AddFrontendAgent(agent, reason)
	metrics.FrontendDropped(p.cfg.StreamKey, reason.String())
	return reason
}

// AddRequest implements the backend pipeline (§4.7 add_request).
func (p *Processor) AddRequest(rec *record.Record) {
	path := normalize.ExtractPath(rec)
	if normalize.ShouldIgnore(rec, path, p.stream.IgnoredPrefix) {
		return
	}

	page := normalize.SetupPage(rec)
	module := normalize.SetupModule(rec, page, p.store)
	responseCode := normalize.SetupResponseCode(rec)
	severity := normalize.SetupSeverity(rec)
	minute := normalize.SetupMinute(rec)
	totalTime := normalize.SetupTime(rec, "total_time", "")

	exceptions, hasExceptions := normalize.SetupExceptions(rec, "exceptions")
	softExceptions, hasSoftExceptions := normalize.SetupExceptions(rec, "soft_exceptions")
	normalize.SetupOtherTime(rec, totalTime)
	normalize.SetupAllocatedMemory(rec)
	heapGrowth := normalize.SetupHeapGrowth(rec)

	inc := increments.New()
	inc.BackendRequestCount = 1
	fillMetrics(inc, rec)
	increments.Observe(&inc.ApdexBackend, totalTime, p.cfg.ApdexTargets.Backend)
	inc.ResponseCode[increments.ResponseCodeBucket(responseCode)]++
	inc.Severity[severity]++
	if caller := normalize.CallerKey(rec); caller != "" {
		inc.CallerInfo[caller]++
	}
	if sender := normalize.SenderKey(rec); sender != "" {
		inc.SenderInfo[sender]++
	}
	if hasExceptions {
		for _, e := range exceptions {
			if s, ok := e.(string); ok && s != "" {
				inc.Exceptions[s]++
			}
		}
	}
	if hasSoftExceptions {
		for _, e := range softExceptions {
			if s, ok := e.(string); ok && s != "" {
				inc.SoftExceptions[s]++
			}
		}
	}

	p.store.AddTotals(page, inc)
	p.store.AddTotals(module, inc)
	p.store.AddTotals(aggstore.AllPages, inc)

	p.store.AddMinutes(page, minute, inc)
	p.store.AddMinutes(module, minute, inc)
	p.store.AddMinutes(aggstore.AllPages, minute, inc)

	p.store.AddQuants(page, inc)

	p.store.AddHistogram(page, minute, "total_time", increments.TotalTime, inc)
	p.store.AddHistogram(module, minute, "total_time", increments.TotalTime, inc)
	p.store.AddHistogram(aggstore.AllPages, minute, "total_time", increments.TotalTime, inc)

	if agent, ok := normalize.ExtractUserAgent(rec); ok {
		p.store.AddRequestAgent(agent)
	}

	if !p.backendOnly(page) {
		if requestID, ok := rec.GetString("request_id"); ok && requestID != "" {
			p.tracker.Register(p.cfg.StreamKey+"-"+requestID, tracker.Entry{Module: module, Minute: minute})
		}
	}

	reason := sampling.ComputeReason(sampling.BackendView{
		TotalTime:         totalTime,
		Module:            module,
		ImportThreshold:   p.stream.ImportThreshold,
		ModuleThresholds:  p.stream.ModuleThresholds,
		Severity:          severity,
		ResponseCode:      responseCode,
		ExceptionsPresent: hasExceptions,
		HeapGrowth:        heapGrowth,
	}, p.stream.SamplingRateThreshold, p.rng)
	if reason == 0 {
		return
	}

	p.forward("r", module, rec, reason)
}

// AddJSException implements the JS-exception pipeline (§4.7
// add_js_exception).
func (p *Processor) AddJSException(rec *record.Record) {
	page := normalize.SetupPageFromLogjamAction(rec)
	jsException, ok := rec.GetString("description")
	if !ok || jsException == "" {
		jsException = "unknown_exception"
	}

	minute := normalize.SetupMinute(rec)
	module := normalize.SetupModule(rec, page, p.store)

	inc := increments.New()
	inc.JsExceptions[jsException]++

	p.store.AddTotals(aggstore.AllPages, inc)
	p.store.AddMinutes(aggstore.AllPages, minute, inc)

	if !hasUnknownMethodSuffix(page) {
		p.store.AddTotals(page, inc)
		p.store.AddMinutes(page, minute, inc)
	}
	// The importer's guard here is `module != "Unknown"`, but module is
	// always interned with a "::" prefix (processor_setup_module), so the
	// literal string "Unknown" can never occur and the guard is always
	// true. Fold into module unconditionally to match that behavior.
	p.store.AddTotals(module, inc)
	p.store.AddMinutes(module, minute, inc)

	p.forward("j", module, rec, 0)
}

func hasUnknownMethodSuffix(page string) bool {
	const suffix = "#unknown_method"
	return len(page) >= len(suffix) && page[len(page)-len(suffix):] == suffix
}

// AddEvent implements the business-event pipeline (§4.7 add_event): it
// only needs the minute, and is always forwarded.
func (p *Processor) AddEvent(rec *record.Record) {
	normalize.SetupMinute(rec)
	p.forward("e", "", rec, 0)
}

// AddFrontendData implements the frontend navigation-timing pipeline
// (§4.7 add_frontend_data).
func (p *Processor) AddFrontendData(rec *record.Record) frontend.DropReason {
	agent, _ := normalize.ExtractUserAgent(rec)

	timings, rts, reason := frontend.DecodeTimings(rec, frontend.NumTimingsFrontend)
	if reason != frontend.Accepted {
		return p.dropFrontend(agent, frontend.Corrupted)
	}

	if !p.lookupTracker(rec) {
		return p.dropFrontend(agent, frontend.Invalid)
	}

	derived, reason := frontend.Canonicalize(timings)
	if reason != frontend.Accepted {
		return p.dropFrontend(agent, reason)
	}
	derived.WriteBack(rec)

	page := normalize.SetupPage(rec)
	module := normalize.SetupModule(rec, page, p.store)
	minute := normalize.SetupMinute(rec)
	totalTime := normalize.SetupTime(rec, "page_time", "frontend_time")

	if int64(totalTime) > p.cfg.OutlierThresholdMS {
		return p.dropFrontend(agent, frontend.Outlier)
	}

	inc := increments.New()
	inc.PageRequestCount = 1
	fillMetrics(inc, rec)
	increments.Observe(&inc.ApdexFrontend, totalTime, p.cfg.ApdexTargets.Frontend)
	increments.Observe(&inc.ApdexPage, float64(p.cfg.ApdexAttribute.Value(timings)), p.cfg.ApdexTargets.Page)

	p.store.AddTotals(page, inc)
	p.store.AddTotals(module, inc)
	p.store.AddTotals(aggstore.AllPages, inc)

	p.store.AddMinutes(page, minute, inc)
	p.store.AddMinutes(module, minute, inc)
	p.store.AddMinutes(aggstore.AllPages, minute, inc)

	p.store.AddQuants(page, inc)

	p.store.AddHistogram(page, minute, "page_time", increments.PageTime, inc)
	p.store.AddHistogram(module, minute, "page_time", increments.PageTime, inc)
	p.store.AddHistogram(aggstore.AllPages, minute, "page_time", increments.PageTime, inc)

	p.store.AddFrontendAgent(agent, frontend.Accepted)
	if p.timingsSink != nil {
		_ = p.timingsSink.WriteAccepted(derived, agent, rts)
	}
	return frontend.Accepted
}

// AddAjaxData implements the AJAX-timing pipeline (§4.7 add_ajax_data).
func (p *Processor) AddAjaxData(rec *record.Record) frontend.DropReason {
	agent, _ := normalize.ExtractUserAgent(rec)

	timings, _, reason := frontend.DecodeTimings(rec, frontend.NumTimingsAjax)
	if reason != frontend.Accepted {
		return p.dropFrontend(agent, frontend.Corrupted)
	}

	if !p.lookupTracker(rec) {
		return p.dropFrontend(agent, frontend.Illegal)
	}

	ajaxTime, ok := frontend.AjaxTime(timings)
	if !ok {
		return p.dropFrontend(agent, frontend.Invalid)
	}
	rec.Set("ajax_time", ajaxTime)

	page := normalize.SetupPage(rec)
	module := normalize.SetupModule(rec, page, p.store)
	minute := normalize.SetupMinute(rec)
	totalTime := normalize.SetupTime(rec, "ajax_time", "frontend_time")

	if int64(totalTime) > p.cfg.OutlierThresholdMS {
		return p.dropFrontend(agent, frontend.Outlier)
	}

	inc := increments.New()
	inc.AjaxRequestCount = 1
	fillMetrics(inc, rec)
	increments.Observe(&inc.ApdexFrontend, totalTime, p.cfg.ApdexTargets.Frontend)
	increments.Observe(&inc.ApdexAjax, totalTime, p.cfg.ApdexTargets.Ajax)

	p.store.AddTotals(page, inc)
	p.store.AddTotals(module, inc)
	p.store.AddTotals(aggstore.AllPages, inc)

	p.store.AddMinutes(page, minute, inc)
	p.store.AddMinutes(module, minute, inc)
	p.store.AddMinutes(aggstore.AllPages, minute, inc)

	p.store.AddQuants(page, inc)

	p.store.AddHistogram(page, minute, "ajax_time", increments.AjaxTime, inc)
	p.store.AddHistogram(module, minute, "ajax_time", increments.AjaxTime, inc)
	p.store.AddHistogram(aggstore.AllPages, minute, "ajax_time", increments.AjaxTime, inc)

	p.store.AddFrontendAgent(agent, frontend.Accepted)
	return frontend.Accepted
}

// lookupTracker reports whether a prior backend record registered this
// request's id; it consumes the tracker entry either way.
func (p *Processor) lookupTracker(rec *record.Record) bool {
	requestID, ok := rec.GetString("logjam_request_id")
	if !ok {
		requestID, ok = rec.GetString("request_id")
	}
	if !ok || requestID == "" {
		return false
	}
	_, found := p.tracker.Lookup(p.cfg.StreamKey + "-" + requestID)
	return found
}

func (p *Processor) forward(kind, module string, rec *record.Record, samplingReason int) {
	if samplingReason != 0 {
		verdict := sampling.Throttle(!p.stream.RateGate.TryConsume(1), p.stream.StorageSize(), p.stream.HardLimitStorageSize, p.stream.SoftLimitStorageSize, p.rng)
		if verdict != sampling.NotThrottled {
			metrics.ThrottledInsert(p.cfg.StreamKey, p.cfg.DB, verdict.String())
			return
		}
	}
	msg := outqueue.OutboundMessage{
		DB:             p.cfg.DB,
		Kind:           kind,
		Module:         module,
		Record:         rec,
		StreamKey:      p.cfg.StreamKey,
		SamplingReason: samplingReason,
	}
	if p.queue.TryEnqueue(msg) {
		metrics.QueuedInsert(p.cfg.StreamKey, p.cfg.DB)
	}
}
