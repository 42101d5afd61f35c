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

package streaminfo

import "testing"

func TestRateGateAdmitsUpToQuota(t *testing.T) {
	g := NewRateGate(10)
	if !g.TryConsume(6) {
		t.Fatalf("expected first consume of 6 to be admitted")
	}
	if g.TryConsume(5) {
		t.Fatalf("expected second consume of 5 to exceed quota")
	}
	if !g.TryConsume(4) {
		t.Fatalf("expected consume of 4 to exactly fill the remaining quota")
	}
}

func TestRateGateResetStartsFreshWindow(t *testing.T) {
	g := NewRateGate(1)
	if !g.TryConsume(1) {
		t.Fatalf("expected first unit to be admitted")
	}
	if g.TryConsume(1) {
		t.Fatalf("expected second unit to be rejected before reset")
	}
	g.Reset()
	if !g.TryConsume(1) {
		t.Fatalf("expected unit to be admitted after reset")
	}
}

func TestRegistryAcquireReleaseRefcounting(t *testing.T) {
	var built int
	reg := NewRegistry(func(key string) Config {
		built++
		return Config{ImportThreshold: 100, InsertsPerSecond: 5}
	})

	a := reg.Acquire("s1-db1")
	b := reg.Acquire("s1-db1")
	if a != b {
		t.Fatalf("expected the same StreamInfo instance for repeated Acquire")
	}
	if built != 1 {
		t.Fatalf("expected config factory called once, got %d", built)
	}

	reg.Release("s1-db1")
	// refcount is now 1 (a second Acquire bumped it to 2), still present.
	c := reg.Acquire("s1-db1")
	if c != a {
		t.Fatalf("expected entry to persist while refcount > 0")
	}
	reg.Release("s1-db1")
	reg.Release("s1-db1")

	d := reg.Acquire("s1-db1")
	if built != 2 {
		t.Fatalf("expected config factory called again after full release, got %d", built)
	}
	_ = d
}

func TestStorageSizeTracking(t *testing.T) {
	reg := NewRegistry(func(key string) Config { return Config{} })
	info := reg.Acquire("s1-db1")
	if info.AddStorageSize(100) != 100 {
		t.Fatalf("expected storage size to accumulate")
	}
	if info.AddStorageSize(-40) != 60 {
		t.Fatalf("expected storage size to decrement")
	}
	if info.StorageSize() != 60 {
		t.Fatalf("StorageSize() = %d, want 60", info.StorageSize())
	}
}
