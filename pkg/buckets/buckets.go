// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package buckets holds the fixed log-spaced boundary table used by
// histograms and quantile maps, and the two lookups built on it.
package buckets

// Size is the number of real boundaries in the table (HISTOGRAM_SIZE
// in the originating importer). Histogram arrays are sized to Size.
const Size = 22

// table is ascending, ends in a 0 sentinel, and must never be mutated:
// callers elsewhere hold index-into-table assumptions (find_bucket_index
// must agree with find_bucket on this exact slice).
var table = [Size + 1]int64{
	1, 3, 10, 30,
	100, 300, 1_000, 3_000,
	10_000, 30_000, 100_000, 300_000,
	1_000_000, 3_000_000, 10_000_000, 30_000_000,
	100_000_000, 300_000_000, 1_000_000_000, 3_000_000_000,
	10_000_000_000, 30_000_000_000,
	0,
}

// Find returns the first boundary >= v, clamped to the last real boundary
// if v exceeds the table. v must be strictly positive; callers filter
// non-positive values before calling.
func Find(v int64) int64 {
	for _, b := range table[:Size] {
		if v <= b {
			return b
		}
	}
	return table[Size-1]
}

// FindIndex returns the position Find(v) would have returned, i.e. the
// index of the first boundary >= v, clamped to the last index.
func FindIndex(v int64) int {
	for i, b := range table[:Size] {
		if v <= b {
			return i
		}
	}
	return Size - 1
}

// FindFloat is Find for float64 inputs, used by the quants divisor path
// (internal/aggstore) where a metric value is scaled before bucketing.
func FindFloat(v float64) int64 {
	fv := int64(v)
	if float64(fv) < v {
		fv++
	}
	return Find(fv)
}

// FindIndexFloat is FindIndex for float64 inputs, used by histogram
// bucketing where the accumulated metric value is a float.
func FindIndexFloat(v float64) int {
	fv := int64(v)
	if float64(fv) < v {
		fv++
	}
	return FindIndex(fv)
}
