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

// Package aggstore holds a Processor's aggregation maps: modules, totals,
// minutes, quants, histograms and per-user-agent stats (§3). Every map is
// string-keyed for bit-for-bit interop with downstream consumers of the
// dumped state (SPEC_FULL §9).
package aggstore

import (
	"fmt"
	"log"
	"sync"

	"streamagg/internal/frontend"
	"streamagg/pkg/buckets"
	"streamagg/pkg/increments"
)

// AllPages is the namespace every fold is additionally accumulated under.
const AllPages = "all_pages"

// AgentStats tracks how many records were seen from a given user agent, and
// why frontend/ajax records from it were dropped.
type AgentStats struct {
	mu               sync.Mutex
	ReceivedBackend  int64
	ReceivedFrontend int64
	Dropped          int64
	DropReasons      [6]int64 // indexed by frontend.DropReason
}

// Store is a Processor's aggregation state. Not safe for concurrent
// mutation from more than one goroutine: a Processor owns exactly one
// Store and calls into it from its single processing goroutine (§5).
type Store struct {
	modules    map[string]struct{}
	totals     map[string]*increments.Increment
	minutes    map[string]*increments.Increment
	quants     map[string]*[increments.NumMetrics]int64
	histograms map[string]*[buckets.Size]int64
	agents     map[string]*AgentStats
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		modules:    make(map[string]struct{}),
		totals:     make(map[string]*increments.Increment),
		minutes:    make(map[string]*increments.Increment),
		quants:     make(map[string]*[increments.NumMetrics]int64),
		histograms: make(map[string]*[buckets.Size]int64),
		agents:     make(map[string]*AgentStats),
	}
}

// Intern implements normalize.Interner: every distinct module string is
// recorded in the modules set. The argument itself is returned; the set's
// stored key is not handed back, so repeated modules do not share one
// allocation.
func (s *Store) Intern(module string) string {
	if _, ok := s.modules[module]; ok {
		return module
	}
	s.modules[module] = struct{}{}
	return module
}

// Modules returns the set of interned module names.
func (s *Store) Modules() []string {
	out := make([]string, 0, len(s.modules))
	for m := range s.modules {
		out = append(out, m)
	}
	return out
}

// AddTotals folds inc into the running total for namespace, cloning on
// first use so the caller's Increment stays independently owned.
func (s *Store) AddTotals(namespace string, inc *increments.Increment) {
	addFold(s.totals, namespace, inc)
}

// AddMinutes folds inc into the per-minute total for namespace.
func (s *Store) AddMinutes(namespace string, minute int, inc *increments.Increment) {
	key := fmt.Sprintf("%d-%s", minute, namespace)
	addFold(s.minutes, key, inc)
}

func addFold(m map[string]*increments.Increment, key string, inc *increments.Increment) {
	if stored, ok := m[key]; ok {
		stored.Add(inc)
		return
	}
	m[key] = inc.Clone()
}

// quant kind tags, matching the historic single-character encoding.
const (
	quantKindTime     = 't'
	quantKindMemory   = 'm'
	quantKindFrontend = 'f'
	bytesToKBDivisor  = 1024
)

// AddQuants folds every positive time, allocated-objects, allocated-bytes
// and frontend metric in inc (other heap metrics are skipped) into the quantile
// distribution maps for namespace and AllPages (§4.3). This is the
// "historic, should just store bucket indexes" quirk (SPEC_FULL §12):
// allocated_bytes is scaled to kilobytes before bucketing, and the scaled
// bucket boundary itself (not its index) is what ends up in the key.
func (s *Store) AddQuants(namespace string, inc *increments.Increment) {
	for i := increments.Resource(0); i <= increments.LastFrontendResourceOffset; i++ {
		val := inc.Metrics[i].Val
		if val <= 0 {
			continue
		}
		var kind byte
		divisor := 1.0
		switch {
		case i <= increments.LastTimeResourceOffset:
			kind = quantKindTime
		case i == increments.AllocatedObjectsIndex:
			kind = quantKindMemory
		case i == increments.AllocatedBytesIndex:
			kind = quantKindMemory
			divisor = bytesToKBDivisor
		case i > increments.LastHeapResourceOffset && i <= increments.LastFrontendResourceOffset:
			kind = quantKindFrontend
		default:
			continue
		}

		var bucket int64
		if divisor != 1 {
			bucket = buckets.FindFloat(val/divisor) * int64(divisor)
		} else {
			bucket = buckets.FindFloat(val)
		}

		s.addQuant(namespace, int(i), kind, bucket)
		if namespace != AllPages {
			s.addQuant(AllPages, int(i), kind, bucket)
		}
	}
}

func (s *Store) addQuant(namespace string, resourceIdx int, kind byte, bucket int64) {
	key := fmt.Sprintf("%c-%d-%s", kind, bucket, namespace)
	stored, ok := s.quants[key]
	if !ok {
		stored = &[increments.NumMetrics]int64{}
		s.quants[key] = stored
	}
	stored[resourceIdx]++
}

// AddHistogram buckets a single timing resource's accumulated value into
// the minute/resource/namespace histogram (§4.3). A zero-valued resource
// cannot be bucketed (find_bucket requires a strictly positive input): it
// is logged and skipped, matching the original importer's error-logged no-op.
func (s *Store) AddHistogram(namespace string, minute int, resource string, resourceIdx increments.Resource, inc *increments.Increment) {
	time := inc.Metrics[resourceIdx].Val
	if time <= 0 {
		log.Printf("aggstore: skipping histogram %d-%s-%s: %s is not positive", minute, resource, namespace, resource)
		return
	}
	key := fmt.Sprintf("%d-%s-%s", minute, resource, namespace)
	hist, ok := s.histograms[key]
	if !ok {
		hist = &[buckets.Size]int64{}
		s.histograms[key] = hist
	}
	idx := buckets.FindIndexFloat(time)
	hist[idx]++
}

// AddRequestAgent records a backend hit from agent.
func (s *Store) AddRequestAgent(agent string) {
	if agent == "" {
		return
	}
	a := s.agentFor(agent)
	a.mu.Lock()
	a.ReceivedBackend++
	a.mu.Unlock()
}

// AddFrontendAgent records a frontend/ajax hit from agent and its drop
// reason (frontend.Accepted counts as received-but-not-dropped).
func (s *Store) AddFrontendAgent(agent string, reason frontend.DropReason) {
	if agent == "" {
		return
	}
	a := s.agentFor(agent)
	a.mu.Lock()
	a.ReceivedFrontend++
	a.DropReasons[reason]++
	if reason != frontend.Accepted {
		a.Dropped++
	}
	a.mu.Unlock()
}

func (s *Store) agentFor(agent string) *AgentStats {
	a, ok := s.agents[agent]
	if !ok {
		a = &AgentStats{}
		s.agents[agent] = a
	}
	return a
}

// Totals returns the accumulated Increment for namespace, if any.
func (s *Store) Totals(namespace string) (*increments.Increment, bool) {
	v, ok := s.totals[namespace]
	return v, ok
}

// Minutes returns the accumulated Increment for minute/namespace, if any.
func (s *Store) Minutes(minute int, namespace string) (*increments.Increment, bool) {
	v, ok := s.minutes[fmt.Sprintf("%d-%s", minute, namespace)]
	return v, ok
}
