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

// Package tracker correlates a request_id across the backend, frontend and
// ajax pipelines: the backend registers what it learned about a request
// (its module and minute), and the frontend/ajax pipelines later look that
// entry up, consuming it, to confirm that a backend record was seen for the
// request (§4.7).
package tracker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Entry is what the backend pipeline hands off for later correlation.
type Entry struct {
	Module string
	Minute int
}

type record struct {
	entry        Entry
	registeredAt atomic.Int64 // unix nano
}

// Tracker is a TTL-swept request_id -> Entry store backed by one sync.Map.
// Safe for concurrent use; cmd/aggregator shares a single instance across
// all processors.
type Tracker struct {
	entries sync.Map // string -> *record
	ttl     time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a Tracker whose entries expire after ttl if never looked up.
func New(ttl time.Duration) *Tracker {
	return &Tracker{ttl: ttl}
}

// Register stores e under requestID, overwriting any existing entry.
func (t *Tracker) Register(requestID string, e Entry) {
	r := &record{entry: e}
	r.registeredAt.Store(time.Now().UnixNano())
	t.entries.Store(requestID, r)
}

// Lookup retrieves and removes the entry for requestID, if present.
func (t *Tracker) Lookup(requestID string) (Entry, bool) {
	v, ok := t.entries.LoadAndDelete(requestID)
	if !ok {
		return Entry{}, false
	}
	return v.(*record).entry, true
}

// Start begins a background sweep that evicts entries older than the
// configured TTL, at the given interval. Call Stop to shut it down.
func (t *Tracker) Start(sweepInterval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.sweepLoop(sweepInterval, t.stop, t.done)
}

func (t *Tracker) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-stop:
			return
		}
	}
}

func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-t.ttl).UnixNano()
	t.entries.Range(func(k, v any) bool {
		if v.(*record).registeredAt.Load() < cutoff {
			t.entries.Delete(k)
		}
		return true
	})
}

// Stop halts the background sweep, if running, and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
