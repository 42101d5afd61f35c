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

package sinks

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"streamagg/internal/frontend"
)

func TestFrontendTimingsSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frontend.csv")

	s, err := NewFrontendTimingsSink(path)
	if err != nil {
		t.Fatalf("NewFrontendTimingsSink: %v", err)
	}
	if err := s.WriteAccepted(frontend.DerivedTimes{PageTime: 500}, "curl/8.0", "0,1,2"); err != nil {
		t.Fatalf("WriteAccepted: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewFrontendTimingsSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := s2.WriteAccepted(frontend.DerivedTimes{PageTime: 700}, "curl/8.1", "3,4,5"); err != nil {
		t.Fatalf("WriteAccepted: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for verification: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + 2 data rows)", len(rows))
	}
	if rows[0][0] != "navigation_time" {
		t.Fatalf("header row = %v", rows[0])
	}
	if rows[1][6] != "500" || rows[2][6] != "700" {
		t.Fatalf("page_time column mismatch: %v / %v", rows[1], rows[2])
	}
}
