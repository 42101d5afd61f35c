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

package increments

// ApdexTargets holds the target duration (in milliseconds) each apdex kind
// is scored against. satisfied: value <= T; tolerating: value <= 4T;
// frustrated: otherwise. Defaults approximate common logjam deployments;
// override per-stream if a deployment needs different targets.
type ApdexTargets struct {
	Backend  float64
	Frontend float64
	Ajax     float64
	Page     float64
}

// DefaultApdexTargets matches the values this module ships with absent any
// stream-specific override.
var DefaultApdexTargets = ApdexTargets{
	Backend:  500,
	Frontend: 1000,
	Ajax:     500,
	Page:     1000,
}

// Observe scores value against target and bumps the matching bucket.
func Observe(bucket *[apdexBuckets]int64, value, target float64) {
	switch {
	case value <= target:
		bucket[ApdexSatisfied]++
	case value <= 4*target:
		bucket[ApdexTolerating]++
	default:
		bucket[ApdexFrustrated]++
	}
}
