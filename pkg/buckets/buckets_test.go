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

package buckets

import "testing"

func TestFindExactBoundary(t *testing.T) {
	cases := []struct {
		v    int64
		want int64
	}{
		{1, 1},
		{2, 3},
		{3, 3},
		{4, 10},
		{30_000_000_000, 30_000_000_000},
		{60_000_000_000, 30_000_000_000}, // clamped past the table
	}
	for _, c := range cases {
		if got := Find(c.v); got != c.want {
			t.Errorf("Find(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestFindIndexAgreesWithFind(t *testing.T) {
	for v := int64(1); v < 40_000_000_000; v *= 3 {
		idx := FindIndex(v)
		if idx < 0 || idx >= Size {
			t.Fatalf("FindIndex(%d) = %d out of range", v, idx)
		}
		boundary := table[idx]
		if Find(v) != boundary {
			t.Errorf("FindIndex(%d)=%d (boundary %d) disagrees with Find(%d)=%d", v, idx, boundary, v, Find(v))
		}
	}
}

func TestFindFloatScalesBeforeClamp(t *testing.T) {
	// allocated_bytes path divides by 1024 before bucketing (§4.3 quirk).
	if got := FindFloat(1536.0 / 1024); got != 3 {
		t.Errorf("FindFloat(1.5) = %d, want 3", got)
	}
}

func TestFindIndexFloatAgreesWithFindFloat(t *testing.T) {
	for _, v := range []float64{0.5, 1, 2.5, 999.9, 30_000_000_000} {
		idx := FindIndexFloat(v)
		if table[idx] != FindFloat(v) {
			t.Errorf("FindIndexFloat(%v)=%d (boundary %d) disagrees with FindFloat(%v)=%d", v, idx, table[idx], v, FindFloat(v))
		}
	}
}
