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

// Package streaminfo holds the per-(stream,database) configuration and
// runtime state a Processor consults on every insert: import thresholds,
// the ignored path prefix, storage-size limits and the per-second insert
// rate gate (§4.5, §6).
package streaminfo

import (
	"sync"
	"sync/atomic"
)

// RateGate is a per-second token budget. TryConsume attempts to admit n units
// against the current second's quota; Reset starts a fresh window. This is
// the volatile half of a Vector-Scalar Accumulator repurposed as a rate
// gate: the quota is the stable scalar, admitted-this-second is the
// volatile vector, and Reset plays the role of a commit that always
// succeeds.
type RateGate struct {
	mu       sync.Mutex
	quota    int64
	admitted int64
}

// NewRateGate creates a gate admitting up to quota units per window.
func NewRateGate(quota int64) *RateGate {
	return &RateGate{quota: quota}
}

// TryConsume admits n units if doing so would not exceed the current
// window's quota.
func (g *RateGate) TryConsume(n int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.admitted+n > g.quota {
		return false
	}
	g.admitted += n
	return true
}

// Reset starts a fresh window, discarding the current admitted count.
func (g *RateGate) Reset() {
	g.mu.Lock()
	g.admitted = 0
	g.mu.Unlock()
}

// SetQuota changes the per-window budget going forward.
func (g *RateGate) SetQuota(quota int64) {
	g.mu.Lock()
	g.quota = quota
	g.mu.Unlock()
}

// StreamInfo is the configuration and live state for one (stream,database)
// pair.
type StreamInfo struct {
	Key string

	ImportThreshold        float64
	ModuleThresholds       map[string]float64
	SamplingRateThreshold  int
	IgnoredPrefix          string
	HardLimitStorageSize   int64
	SoftLimitStorageSize   int64
	AllRequestsBackendOnly bool
	BackendOnlyPrefixes    []string

	RateGate    *RateGate
	storageSize atomic.Int64
	refcount    atomic.Int32
}

// StorageSize returns the current tracked storage size for this stream.
func (s *StreamInfo) StorageSize() int64 { return s.storageSize.Load() }

// AddStorageSize adjusts the tracked storage size by delta (may be
// negative, e.g. after a compaction).
func (s *StreamInfo) AddStorageSize(delta int64) int64 {
	return s.storageSize.Add(delta)
}

// Config holds the values a newly created StreamInfo is initialized with;
// the registry's factory copies these per key.
type Config struct {
	ImportThreshold        float64
	ModuleThresholds       map[string]float64
	SamplingRateThreshold  int
	IgnoredPrefix          string
	HardLimitStorageSize   int64
	SoftLimitStorageSize   int64
	InsertsPerSecond       int64
	AllRequestsBackendOnly bool
	BackendOnlyPrefixes    []string
}

// Registry is a refcounted store of StreamInfo instances, keyed by the
// caller's (stream, db) key (cmd/aggregator uses "stream|db"). Safe for
// concurrent use.
type Registry struct {
	entries sync.Map // string -> *StreamInfo
	config  func(key string) Config
}

// NewRegistry creates a registry that builds a StreamInfo's configuration
// on first use via configFor.
func NewRegistry(configFor func(key string) Config) *Registry {
	return &Registry{config: configFor}
}

// Acquire returns the StreamInfo for key, creating it on first use, and
// increments its reference count. Every Acquire must be paired with a
// Release.
func (r *Registry) Acquire(key string) *StreamInfo {
	if actual, ok := r.entries.Load(key); ok {
		info := actual.(*StreamInfo)
		info.refcount.Add(1)
		return info
	}

	cfg := r.config(key)
	info := &StreamInfo{
		Key:                    key,
		ImportThreshold:        cfg.ImportThreshold,
		ModuleThresholds:       cfg.ModuleThresholds,
		SamplingRateThreshold:  cfg.SamplingRateThreshold,
		IgnoredPrefix:          cfg.IgnoredPrefix,
		HardLimitStorageSize:   cfg.HardLimitStorageSize,
		SoftLimitStorageSize:   cfg.SoftLimitStorageSize,
		AllRequestsBackendOnly: cfg.AllRequestsBackendOnly,
		BackendOnlyPrefixes:    cfg.BackendOnlyPrefixes,
		RateGate:               NewRateGate(cfg.InsertsPerSecond),
	}
	info.refcount.Store(1)

	if actual, loaded := r.entries.LoadOrStore(key, info); loaded {
		existing := actual.(*StreamInfo)
		existing.refcount.Add(1)
		return existing
	}
	return info
}

// Release decrements key's reference count, deleting the entry once it
// reaches zero.
func (r *Registry) Release(key string) {
	actual, ok := r.entries.Load(key)
	if !ok {
		return
	}
	info := actual.(*StreamInfo)
	if info.refcount.Add(-1) <= 0 {
		r.entries.CompareAndDelete(key, info)
	}
}

// ReplenishAll resets every managed RateGate's window; call once per
// second from a background ticker.
func (r *Registry) ReplenishAll() {
	r.entries.Range(func(_, v any) bool {
		v.(*StreamInfo).RateGate.Reset()
		return true
	})
}
