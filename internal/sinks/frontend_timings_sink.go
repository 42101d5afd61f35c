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

// Package sinks holds file-backed append sinks a Processor writes accepted
// records to directly (see Processor.SetTimingsSink), separate from the
// transport writers in internal/outqueue.
package sinks

import (
	"bufio"
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"streamagg/internal/frontend"
)

var frontendTimingsHeader = []string{
	"navigation_time", "connect_time", "request_time", "response_time",
	"processing_time", "load_time", "page_time", "agent", "rts",
}

// FrontendTimingsSink is a buffered CSV sink for accepted frontend
// navigation-timing records: one row per record, the seven derived
// durations plus the originating user agent and raw rts vector (§6, §12).
// Safe for concurrent use.
type FrontendTimingsSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	csvw *csv.Writer

	lastFlush time.Time
}

// NewFrontendTimingsSink opens (or creates) path in append mode, writing
// the CSV header only if the file is new.
func NewFrontendTimingsSink(path string) (*FrontendTimingsSink, error) {
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	s := &FrontendTimingsSink{f: f, w: w, csvw: csv.NewWriter(w), lastFlush: time.Now()}
	if statErr != nil || info.Size() == 0 {
		if err := s.csvw.Write(frontendTimingsHeader); err != nil {
			f.Close()
			return nil, err
		}
		s.csvw.Flush()
	}
	return s, nil
}

// WriteAccepted appends one row for an accepted frontend record.
func (s *FrontendTimingsSink) WriteAccepted(d frontend.DerivedTimes, agent, rts string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := []string{
		strconv.FormatInt(d.NavigationTime, 10),
		strconv.FormatInt(d.ConnectTime, 10),
		strconv.FormatInt(d.RequestTime, 10),
		strconv.FormatInt(d.ResponseTime, 10),
		strconv.FormatInt(d.ProcessingTime, 10),
		strconv.FormatInt(d.LoadTime, 10),
		strconv.FormatInt(d.PageTime, 10),
		agent,
		rts,
	}
	if err := s.csvw.Write(row); err != nil {
		return err
	}
	s.csvw.Flush()
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		if err := s.w.Flush(); err != nil {
			return err
		}
		s.lastFlush = time.Now()
	}
	return s.csvw.Error()
}

// Flush forces buffered data to disk.
func (s *FrontendTimingsSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csvw.Flush()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FrontendTimingsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csvw.Flush()
	_ = s.w.Flush()
	return s.f.Close()
}
