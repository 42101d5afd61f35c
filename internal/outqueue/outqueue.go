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

// Package outqueue carries accepted records to the outbound transport: a
// single background worker drains a bounded channel and hands each message
// to a pluggable Writer, retrying transient failures a bounded number of
// times before dropping the message (§6, §7).
package outqueue

import (
	"context"
	"fmt"
	"time"
)

// OutboundMessage mirrors the five/six-element wire tuple described in §6:
// db name, kind tag, module, the record itself, the owning stream's key,
// and (backend records only) the sampling reason bitmask.
type OutboundMessage struct {
	DB             string
	Kind           string
	Module         string
	Record         any
	StreamKey      string
	SamplingReason int
}

// Writer delivers a single OutboundMessage. Implementations must return
// promptly; the queue does not apply its own timeout beyond ctx.
type Writer interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Queue is a single-worker, bounded-channel outbound pipeline.
type Queue struct {
	writer       Writer
	ch           chan OutboundMessage
	maxRetries   int
	retryBackoff time.Duration

	stop chan struct{}
	done chan struct{}

	onDropped func(OutboundMessage, error)
}

// NewQueue creates a Queue with the given buffer size and retry policy.
// onDropped, if non-nil, is called (from the worker goroutine) for every
// message that exhausts its retries.
func NewQueue(writer Writer, bufferSize, maxRetries int, retryBackoff time.Duration, onDropped func(OutboundMessage, error)) *Queue {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Queue{
		writer:       writer,
		ch:           make(chan OutboundMessage, bufferSize),
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		onDropped:    onDropped,
	}
}

// Start launches the background worker.
func (q *Queue) Start() {
	go q.run()
}

// Stop asks the worker to drain and exit, then waits for it.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

// TryEnqueue attempts a non-blocking send, retrying a bounded number of
// times with a short backoff if the channel is momentarily full. Returns
// false if the channel is still full after all attempts.
func (q *Queue) TryEnqueue(msg OutboundMessage) bool {
	for attempt := 0; ; attempt++ {
		select {
		case q.ch <- msg:
			return true
		default:
		}
		if attempt >= q.maxRetries {
			return false
		}
		time.Sleep(q.retryBackoff)
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		case <-q.stop:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		default:
			return
		}
	}
}

func (q *Queue) deliver(msg OutboundMessage) {
	var err error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = q.writer.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		if attempt < q.maxRetries {
			time.Sleep(q.retryBackoff)
		}
	}
	if q.onDropped != nil {
		q.onDropped(msg, err)
	}
}

// LoggingWriter is the default Writer: it prints every message instead of
// shipping it anywhere. Not for production use.
type LoggingWriter struct{}

func (LoggingWriter) Send(ctx context.Context, msg OutboundMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[outqueue-demo] db=%s kind=%s module=%s stream=%s reason=%d\n",
		msg.DB, msg.Kind, msg.Module, msg.StreamKey, msg.SamplingReason)
	return nil
}
