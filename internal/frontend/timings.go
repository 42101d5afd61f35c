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

// Package frontend decodes and validates the comma-separated `rts` timing
// vector carried by frontend navigation-timing and AJAX-timing records,
// reducing it to derived durations written back onto the record.
package frontend

import (
	"fmt"

	"streamagg/internal/record"
)

// Navigation Timing indices within a 16-element rts vector.
const (
	NavigationStart = 0
	FetchStart      = 1
	RequestStart    = 6
	ResponseStart   = 7
	ResponseEnd     = 8
	DomInteractive  = 10
	DomComplete     = 13
	LoadEventStart  = 14
	LoadEventEnd    = 15

	NumTimingsFrontend = 16
	NumTimingsAjax     = 2
)

// DropReason classifies why a frontend/ajax record was not forwarded, or
// that it was accepted (§7).
type DropReason int

const (
	Accepted DropReason = iota
	Outlier
	NavTiming
	Illegal
	Corrupted
	Invalid
)

func (d DropReason) String() string {
	switch d {
	case Accepted:
		return "ACCEPTED"
	case Outlier:
		return "OUTLIER"
	case NavTiming:
		return "NAV_TIMING"
	case Illegal:
		return "ILLEGAL"
	case Corrupted:
		return "CORRUPTED"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// DecodeTimings parses the "rts" field into exactly n int64 values.
// Strictly digits and commas, no leading sign: this mirrors the original
// importer's hand-rolled parser rather than a generic CSV/number parser,
// because it must reject anything a generic parser would tolerate (extra
// commas, signs, whitespace) exactly the way upstream clients expect.
func DecodeTimings(rec *record.Record, n int) ([]int64, string, DropReason) {
	rts, ok := rec.GetString("rts")
	if !ok {
		return nil, "", Corrupted
	}
	timings := make([]int64, n)
	idx := 0
	value := int64(0)
	for i := 0; i <= len(rts); i++ {
		var c byte
		if i < len(rts) {
			c = rts[i]
		} else {
			c = 0
		}
		if c == ',' || c == 0 {
			if idx >= n {
				return nil, rts, Corrupted
			}
			timings[idx] = value
			value = 0
			idx++
			if idx == n && c != 0 {
				return nil, rts, Corrupted
			}
			if c == 0 {
				break
			}
		} else {
			x := int64(c - '0')
			if x < 0 || x > 9 {
				return nil, rts, Corrupted
			}
			value = value*10 + x
		}
	}
	if idx < n {
		return nil, rts, Corrupted
	}
	return timings, rts, Accepted
}

// DerivedTimes is the set of durations derived from a canonicalized
// 16-element frontend timing vector, written back onto the record.
type DerivedTimes struct {
	NavigationTime int64
	ConnectTime    int64
	RequestTime    int64
	ResponseTime   int64
	ProcessingTime int64
	LoadTime       int64
	PageTime       int64
	DomInteractive int64
}

func sortedAscending(a []int64) bool {
	for i := 1; i < len(a); i++ {
		if a[i] < a[i-1] {
			return false
		}
	}
	return true
}

func allZero(a []int64) bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

func makeRelative(timings []int64, base int64) {
	for i, v := range timings {
		if v > 0 {
			timings[i] = v - base
		}
	}
}

// Canonicalize reduces a 16-element frontend timing vector in place to the
// derived durations, or reports a drop reason (§4.4).
func Canonicalize(timings []int64) (DerivedTimes, DropReason) {
	base := timings[NavigationStart]
	if base == 0 {
		base = timings[FetchStart]
		timings[NavigationStart] = base
	}
	if base == 0 {
		if allZero(timings) {
			return DerivedTimes{}, NavTiming
		}
		return DerivedTimes{}, Invalid
	}
	makeRelative(timings, base)

	milestones := []int64{
		timings[NavigationStart],
		timings[RequestStart],
		timings[ResponseStart],
		timings[ResponseEnd],
		timings[DomComplete],
	}
	if milestones[0] < 0 || timings[DomInteractive] <= 0 || !sortedAscending(milestones) {
		return DerivedTimes{}, Invalid
	}

	d := DerivedTimes{
		NavigationTime: timings[FetchStart],
		ConnectTime:    timings[RequestStart] - timings[FetchStart],
		RequestTime:    timings[ResponseStart] - timings[RequestStart],
		ResponseTime:   timings[ResponseEnd] - timings[ResponseStart],
		ProcessingTime: timings[DomComplete] - timings[ResponseEnd],
		LoadTime:       timings[LoadEventEnd] - timings[DomComplete],
		PageTime:       timings[LoadEventEnd],
		DomInteractive: timings[DomInteractive],
	}
	return d, Accepted
}

// WriteBack stores the derived durations onto the record (§4.4).
func (d DerivedTimes) WriteBack(rec *record.Record) {
	rec.Set("navigation_time", d.NavigationTime)
	rec.Set("connect_time", d.ConnectTime)
	rec.Set("request_time", d.RequestTime)
	rec.Set("response_time", d.ResponseTime)
	rec.Set("processing_time", d.ProcessingTime)
	rec.Set("load_time", d.LoadTime)
	rec.Set("page_time", d.PageTime)
	rec.Set("dom_interactive", d.DomInteractive)
}

// AjaxTime computes ajax_time = t[1]-t[0]; a negative result is invalid.
func AjaxTime(timings []int64) (int64, bool) {
	if len(timings) < 2 {
		return 0, false
	}
	d := timings[1] - timings[0]
	if d < 0 {
		return 0, false
	}
	return d, true
}

// ApdexAttribute selects which timing milestone drives the page apdex
// score: "domInteractive" or "loadEventEnd" (default).
type ApdexAttribute struct {
	index int
}

// DefaultApdexAttribute matches the importer's built-in default.
var DefaultApdexAttribute = ApdexAttribute{index: LoadEventEnd}

// SetApdexAttribute rejects unknown names (§4.4).
func SetApdexAttribute(name string) (ApdexAttribute, error) {
	switch name {
	case "domInteractive":
		return ApdexAttribute{index: DomInteractive}, nil
	case "loadEventEnd":
		return ApdexAttribute{index: LoadEventEnd}, nil
	default:
		return ApdexAttribute{}, fmt.Errorf("frontend: unknown apdex attribute %q", name)
	}
}

// Value extracts the configured milestone from a canonicalized timing
// vector.
func (a ApdexAttribute) Value(timings []int64) int64 {
	return timings[a.index]
}
