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

package frontend

import (
	"testing"

	"streamagg/internal/record"
)

// S5 Frontend timing, with derived durations computed from the
// canonicalization formulas and the rts indices above (processing_time +
// load_time equals loadEventEnd - responseEnd).
func TestFrontendTimingScenario(t *testing.T) {
	rec := record.New(map[string]any{
		"rts": "100,100,110,110,120,120,140,160,180,190,200,210,220,230,240,300",
	})
	timings, _, reason := DecodeTimings(rec, NumTimingsFrontend)
	if reason != Accepted {
		t.Fatalf("decode reason = %v, want Accepted", reason)
	}
	derived, reason := Canonicalize(timings)
	if reason != Accepted {
		t.Fatalf("canonicalize reason = %v, want Accepted", reason)
	}
	want := DerivedTimes{
		NavigationTime: 0,
		ConnectTime:    40,
		RequestTime:    20,
		ResponseTime:   20,
		ProcessingTime: 50,
		LoadTime:       70,
		PageTime:       200,
		DomInteractive: 100,
	}
	if derived != want {
		t.Fatalf("derived = %+v, want %+v", derived, want)
	}
}

func TestDecodeTimingsRejectsNonDigit(t *testing.T) {
	rec := record.New(map[string]any{"rts": "100,20x,300"})
	_, _, reason := DecodeTimings(rec, 3)
	if reason != Corrupted {
		t.Fatalf("reason = %v, want Corrupted", reason)
	}
}

func TestDecodeTimingsRejectsWrongCount(t *testing.T) {
	rec := record.New(map[string]any{"rts": "100,200"})
	_, _, reason := DecodeTimings(rec, 3)
	if reason != Corrupted {
		t.Fatalf("reason = %v, want Corrupted (too few)", reason)
	}
	rec2 := record.New(map[string]any{"rts": "100,200,300,400"})
	_, _, reason2 := DecodeTimings(rec2, 3)
	if reason2 != Corrupted {
		t.Fatalf("reason = %v, want Corrupted (too many)", reason2)
	}
}

func TestDecodeTimingsMissingField(t *testing.T) {
	rec := record.New(map[string]any{})
	_, _, reason := DecodeTimings(rec, 3)
	if reason != Corrupted {
		t.Fatalf("reason = %v, want Corrupted (missing rts)", reason)
	}
}

func TestCanonicalizeAllZeroIsNavTiming(t *testing.T) {
	timings := make([]int64, NumTimingsFrontend)
	_, reason := Canonicalize(timings)
	if reason != NavTiming {
		t.Fatalf("reason = %v, want NavTiming", reason)
	}
}

func TestCanonicalizeNonAscendingIsInvalid(t *testing.T) {
	timings := []int64{100, 100, 110, 110, 120, 120, 90 /* requestStart < fetchStart-base */, 160, 180, 190, 200, 210, 220, 230, 240, 300}
	_, reason := Canonicalize(timings)
	if reason != Invalid {
		t.Fatalf("reason = %v, want Invalid", reason)
	}
}

// S6 Ajax negative.
func TestAjaxTimeNegativeIsInvalid(t *testing.T) {
	rec := record.New(map[string]any{"rts": "500,400"})
	timings, _, reason := DecodeTimings(rec, NumTimingsAjax)
	if reason != Accepted {
		t.Fatalf("decode reason = %v, want Accepted", reason)
	}
	if _, ok := AjaxTime(timings); ok {
		t.Fatalf("expected negative ajax_time to be rejected")
	}
}

func TestSetApdexAttributeRejectsUnknown(t *testing.T) {
	if _, err := SetApdexAttribute("bogus"); err == nil {
		t.Fatalf("expected error for unknown apdex attribute")
	}
	a, err := SetApdexAttribute("domInteractive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timings := make([]int64, NumTimingsFrontend)
	timings[DomInteractive] = 42
	if v := a.Value(timings); v != 42 {
		t.Fatalf("Value = %d, want 42", v)
	}
}
