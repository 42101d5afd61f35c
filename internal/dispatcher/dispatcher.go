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

// Package dispatcher fans incoming records out to the right Processor. A
// Processor is single-owner (§5): every record for a given (stream, db)
// pair must always land on the same goroutine. Dispatcher guarantees that
// by rendezvous-hashing the pair's key onto a fixed set of shard
// goroutines, each of which owns a private map of Processors and drains
// its own work queue sequentially.
package dispatcher

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"streamagg/internal/processor"
	"streamagg/internal/record"
)

// xxhashSeeded is the same node-hash function go-redis uses to drive its
// Ring client's rendezvous table: a plain, unseeded xxhash of the node name.
func xxhashSeeded(s string) uint64 {
	return xxhash.Sum64String(s)
}

// WorkItem is one record routed to the Processor owning its (stream, db)
// key.
type WorkItem struct {
	Key    string // caller-built (stream, db) key; cmd/aggregator uses "stream|db"
	Method Method
	Record *record.Record
}

// Method selects which Processor entry point a WorkItem is delivered to.
type Method int

const (
	MethodAddRequest Method = iota
	MethodAddJSException
	MethodAddFrontendData
	MethodAddAjaxData
	MethodAddEvent
)

// Factory builds the Processor for a (stream, db) key on first use.
type Factory func(key string) *processor.Processor

// Dispatcher owns a fixed pool of shard goroutines and routes WorkItems to
// them by rendezvous hashing (§11, a reference implementation of the
// out-of-scope "dispatcher" the spec assumes exists upstream of a
// Processor).
type Dispatcher struct {
	shards []*shard
	ring   *rendezvous.Rendezvous
}

// shard owns a private processor table, touched only from its own run
// goroutine — no locking needed since WorkItems for this shard always
// arrive serialized through work.
type shard struct {
	name       string
	factory    Factory
	processors map[string]*processor.Processor
	work       chan WorkItem
	done       chan struct{}
}

// New creates a Dispatcher with n shard goroutines, each buffering up to
// queueSize pending WorkItems.
func New(n, queueSize int, factory Factory) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	names := make([]string, n)
	shards := make([]*shard, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("shard-%d", i)
		names[i] = name
		shards[i] = &shard{
			name:       name,
			factory:    factory,
			processors: make(map[string]*processor.Processor),
			work:       make(chan WorkItem, queueSize),
			done:       make(chan struct{}),
		}
	}
	d := &Dispatcher{
		shards: shards,
		ring:   rendezvous.New(names, xxhashSeeded),
	}
	for _, s := range shards {
		go s.run()
	}
	return d
}

// Submit routes item to the shard owning item.Key. It blocks if that
// shard's queue is full — callers that need a non-blocking path should
// select on a context/timeout around the call.
func (d *Dispatcher) Submit(item WorkItem) {
	d.shardFor(item.Key).work <- item
}

func (d *Dispatcher) shardFor(key string) *shard {
	name := d.ring.Lookup(key)
	for _, s := range d.shards {
		if s.name == name {
			return s
		}
	}
	return d.shards[0]
}

// Stop closes every shard's queue and waits for its goroutine to drain and
// exit, closing each owned Processor afterward.
func (d *Dispatcher) Stop() {
	for _, s := range d.shards {
		close(s.work)
	}
	for _, s := range d.shards {
		<-s.done
	}
}

func (s *shard) run() {
	defer close(s.done)
	for item := range s.work {
		s.dispatch(item)
	}
	for _, p := range s.processors {
		p.Close()
	}
}

func (s *shard) dispatch(item WorkItem) {
	p := s.processorFor(item.Key)
	switch item.Method {
	case MethodAddRequest:
		p.AddRequest(item.Record)
	case MethodAddJSException:
		p.AddJSException(item.Record)
	case MethodAddFrontendData:
		p.AddFrontendData(item.Record)
	case MethodAddAjaxData:
		p.AddAjaxData(item.Record)
	case MethodAddEvent:
		p.AddEvent(item.Record)
	}
}

func (s *shard) processorFor(key string) *processor.Processor {
	p, ok := s.processors[key]
	if !ok {
		p = s.factory(key)
		s.processors[key] = p
	}
	return p
}
