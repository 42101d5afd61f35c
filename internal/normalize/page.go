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

// Package normalize implements the request-record repair/derive transforms:
// page, module, response_code, severity, minute, times, memory,
// heap_growth, exceptions and path, matching the importer's
// processor_setup_* contracts. Most functions here rewrite fields of the
// record in place and return the derived value; SetupModule, SetupHeapGrowth,
// ExtractPath, ExtractUserAgent and ShouldIgnore only read the record, and
// SetupAllocatedMemory returns nothing.
package normalize

import (
	"strings"

	"streamagg/internal/record"
)

const unknownPage = "Unknown#unknown_method"

// Interner owns the lifetime of interned module strings (internal/aggstore
// implements it with the processor's `modules` set).
type Interner interface {
	Intern(s string) string
}

// SetupPage derives the canonical page for a backend request: read
// "action", else "logjam_action", else synthesize the unknown sentinel.
func SetupPage(rec *record.Record) string {
	return setupPageFrom(rec, "action", "logjam_action")
}

// SetupPageFromLogjamAction is the JS-exception pipeline's variant: only
// logjam_action is consulted (§4.7 add_js_exception).
func SetupPageFromLogjamAction(rec *record.Record) string {
	return setupPageFrom(rec, "logjam_action")
}

func setupPageFrom(rec *record.Record, fields ...string) string {
	var page string
	found := false
	for _, f := range fields {
		if s, ok := rec.GetString(f); ok {
			page = s
			rec.Delete(f)
			found = true
			break
		}
	}
	if !found {
		page = unknownPage
	}
	page = repairPage(page)
	rec.Set("page", page)
	return page
}

func repairPage(page string) string {
	switch {
	case page == "":
		return unknownPage
	case !strings.Contains(page, "#"):
		return page + "#unknown_method"
	case strings.HasSuffix(page, "#"):
		return page + "unknown_method"
	default:
		return page
	}
}

// SetupModule derives the module from an already-repaired page and interns
// it. A leading colon is ignored (§4.2, confirmed against the historic
// quirk where a colon-prefixed action never yields a module prefix).
func SetupModule(rec *record.Record, page string, interner Interner) string {
	module := "::"
	if idx := strings.IndexByte(page, ':'); idx >= 0 {
		if idx > 0 {
			module = "::" + page[:idx]
		}
	} else if h := strings.IndexByte(page, '#'); h >= 0 {
		module = "::" + page[:h]
	}
	if interner != nil {
		module = interner.Intern(module)
	}
	return module
}
