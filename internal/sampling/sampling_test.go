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

package sampling

import "testing"

// constDraw is a RandSource stub that always returns a fixed value,
// letting tests pin down which side of a random draw the code takes.
type constDraw int

func (c constDraw) Intn(n int) int { return int(c) }

func TestComputeReasonSlowRequestModuleOverride(t *testing.T) {
	v := BackendView{
		TotalTime:        120,
		Module:           "::Foo",
		ImportThreshold:  1000,
		ModuleThresholds: map[string]float64{"::Foo": 100},
	}
	reason := ComputeReason(v, 0, constDraw(MaxRandom))
	if reason&SlowRequest == 0 {
		t.Fatalf("expected SlowRequest bit set when module override is exceeded")
	}

	v2 := v
	v2.TotalTime = 50
	reason2 := ComputeReason(v2, 0, constDraw(MaxRandom))
	if reason2&SlowRequest != 0 {
		t.Fatalf("expected SlowRequest bit clear under module override")
	}
}

func TestComputeReasonFatalAlwaysLogs(t *testing.T) {
	v := BackendView{Severity: SeverityFatal}
	reason := ComputeReason(v, 0, constDraw(MaxRandom))
	if reason&LogSeverity == 0 {
		t.Fatalf("expected LogSeverity bit set for FATAL regardless of random draw")
	}
}

func TestComputeReasonErrorWith500AlwaysLogs(t *testing.T) {
	v := BackendView{Severity: SeverityError, ResponseCode: 500}
	reason := ComputeReason(v, 0, constDraw(MaxRandom))
	if reason&LogSeverity == 0 {
		t.Fatalf("expected LogSeverity bit set for ERROR+500 regardless of random draw")
	}
}

func TestComputeReasonWarnNeedsRandomDraw(t *testing.T) {
	v := BackendView{Severity: SeverityWarn}
	if reason := ComputeReason(v, 0, constDraw(MaxRandom)); reason&LogSeverity != 0 {
		t.Fatalf("expected WARN to need a winning random draw, got reason=%d", reason)
	}
	if reason := ComputeReason(v, MaxRandom, constDraw(0)); reason&LogSeverity == 0 {
		t.Fatalf("expected WARN with a winning draw to set LogSeverity")
	}
}

func TestComputeReasonResponseCodeBuckets(t *testing.T) {
	if r := ComputeReason(BackendView{ResponseCode: 503}, 0, constDraw(MaxRandom)); r&Resp500 == 0 {
		t.Fatalf("expected Resp500 bit for 503")
	}
	if r := ComputeReason(BackendView{ResponseCode: 0}, 0, constDraw(MaxRandom)); r&Resp000 == 0 {
		t.Fatalf("expected Resp000 bit for code 0")
	}
	if r := ComputeReason(BackendView{ResponseCode: 404}, MaxRandom, constDraw(0)); r&Resp400 == 0 {
		t.Fatalf("expected Resp400 bit for 404 on a winning draw")
	}
}

func TestComputeReasonExceptionsAndHeapGrowth(t *testing.T) {
	v := BackendView{ExceptionsPresent: true, HeapGrowth: 5}
	reason := ComputeReason(v, 0, constDraw(MaxRandom))
	if reason&Exceptions == 0 || reason&HeapGrowth == 0 {
		t.Fatalf("expected Exceptions and HeapGrowth bits set, got %d", reason)
	}
}

func TestThrottleRateGateTakesPriority(t *testing.T) {
	if v := Throttle(true, 0, 100, 50, constDraw(0)); v != MaxInsertsPerSecond {
		t.Fatalf("verdict = %v, want MaxInsertsPerSecond", v)
	}
}

func TestThrottleHardLimit(t *testing.T) {
	if v := Throttle(false, 200, 100, 50, constDraw(MaxRandom)); v != HardLimitStorageSize {
		t.Fatalf("verdict = %v, want HardLimitStorageSize", v)
	}
}

func TestThrottleSoftLimitDrawDependent(t *testing.T) {
	if v := Throttle(false, 75, 100, 50, constDraw(0)); v != NotThrottled {
		t.Fatalf("verdict = %v, want NotThrottled on a winning draw", v)
	}
	if v := Throttle(false, 75, 100, 50, constDraw(MaxRandom)); v != SoftLimitStorageSize {
		t.Fatalf("verdict = %v, want SoftLimitStorageSize on a losing draw", v)
	}
}

func TestThrottleBelowSoftLimit(t *testing.T) {
	if v := Throttle(false, 10, 100, 50, constDraw(0)); v != NotThrottled {
		t.Fatalf("verdict = %v, want NotThrottled below soft limit", v)
	}
}
