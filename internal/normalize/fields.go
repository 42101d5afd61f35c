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

package normalize

import (
	"strconv"
	"strings"

	"streamagg/internal/record"
)

// SetupResponseCode reads "code" (default 500), deletes the source field
// and stores the result under "response_code".
func SetupResponseCode(rec *record.Record) int {
	code := 500
	if v, ok := rec.GetInt("code"); ok {
		code = v
		rec.Delete("code")
	}
	rec.Set("response_code", code)
	return code
}

// MaxSeverity is the width of the severity histogram (§3); any raw value
// above it is treated as unknown.
const MaxSeverity = 5

// SetupSeverity reads "severity" if present; otherwise scans "lines" for
// the maximum first-element value. A level above MaxSeverity is "unknown"
// and the default of 1 is used instead — a historic quirk preserved
// verbatim from the importer's extract_severity_from_lines_object (SPEC_FULL
// §9 open question): any sufficiently nonsensical log level collapses to
// the same bucket as "no severity info at all" rather than being clamped or
// rejected outright.
func SetupSeverity(rec *record.Record) int {
	if v, ok := rec.GetInt("severity"); ok {
		if v > MaxSeverity {
			v = 1
			rec.Set("severity", v)
		}
		return v
	}
	severity := 1
	if lines, ok := rec.GetArray("lines"); ok {
		extracted := -1
		for _, lineAny := range lines {
			line, ok := lineAny.([]any)
			if !ok || len(line) == 0 {
				continue
			}
			level, ok := line[0].(float64)
			if !ok {
				continue
			}
			if int(level) > extracted {
				extracted = int(level)
			}
		}
		if extracted != -1 && extracted <= MaxSeverity {
			severity = extracted
		}
	}
	rec.Set("severity", severity)
	return severity
}

// SetupMinute parses "started_at" (hours at string indices 11-12, minutes
// at 14-15) into a minute-of-day in [0,1439]. started_at's validity is
// guaranteed by an upstream stage; a missing field yields minute 0.
func SetupMinute(rec *record.Record) int {
	minute := 0
	if s, ok := rec.GetString("started_at"); ok && len(s) >= 16 {
		h, _ := strconv.Atoi(s[11:13])
		m, _ := strconv.Atoi(s[14:16])
		minute = 60*h + m
	}
	rec.Set("minute", minute)
	return minute
}

// SetupTime reads timeName (default/zero -> 1.0, written back) and
// optionally duplicates the resulting value into a second field.
func SetupTime(rec *record.Record, timeName string, duplicate string) float64 {
	total := 1.0
	if v, ok := rec.GetFloat(timeName); ok && v != 0 {
		total = v
	} else {
		rec.Set(timeName, total)
	}
	if duplicate != "" {
		rec.Set(duplicate, total)
	}
	return total
}

// otherTimeResources are the named fields subtracted from total_time to
// derive other_time — the well-known time components, not the full metric
// menu (db_time/view_time/gc_time).
var otherTimeResources = []string{"db_time", "view_time", "gc_time"}

// SetupOtherTime computes other_time = totalTime - sum(known time
// resources present in the record).
func SetupOtherTime(rec *record.Record, totalTime float64) float64 {
	other := totalTime
	for _, field := range otherTimeResources {
		if v, ok := rec.GetFloat(field); ok {
			other -= v
		}
	}
	rec.Set("other_time", other)
	return other
}

// SetupAllocatedMemory leaves an existing allocated_memory untouched;
// otherwise, if both allocated_objects and allocated_bytes are present,
// computes bytes + 40*objects (64-bit Ruby object-header assumption,
// preserved from the original) and stores it.
func SetupAllocatedMemory(rec *record.Record) {
	if rec.Has("allocated_memory") {
		return
	}
	objects, ok := rec.GetFloat("allocated_objects")
	if !ok {
		return
	}
	bytes, ok := rec.GetFloat("allocated_bytes")
	if !ok {
		return
	}
	rec.Set("allocated_memory", bytes+40*objects)
}

// SetupHeapGrowth reads heap_growth (default 0); not written back.
func SetupHeapGrowth(rec *record.Record) int {
	v, _ := rec.GetInt("heap_growth")
	return v
}

// SetupExceptions returns the array at key, or (nil, false) if absent or
// an empty array — an empty array is deleted from the record, matching the
// importer's "no exceptions" sentinel.
func SetupExceptions(rec *record.Record, key string) ([]any, bool) {
	arr, ok := rec.GetArray(key)
	if !ok {
		return nil, false
	}
	if len(arr) == 0 {
		rec.Delete(key)
		return nil, false
	}
	return arr, true
}

// ExtractPath lifts request_info.url, skipping scheme://host and
// advancing to the first '/'. The empty string means "no url".
func ExtractPath(rec *record.Record) string {
	url, ok := rec.GetNestedString("request_info", "url")
	if !ok {
		return ""
	}
	p := url
	if idx := strings.Index(url, "://"); idx >= 0 {
		p = url[idx+3:]
	}
	if idx := strings.IndexByte(p, '/'); idx >= 0 {
		return p[idx:]
	}
	return ""
}

// ExtractUserAgent lifts request_info.headers["User-Agent"].
func ExtractUserAgent(rec *record.Record) (string, bool) {
	headers, ok := rec.GetObject("request_info")
	if !ok {
		return "", false
	}
	hdrsAny, ok := headers["headers"]
	if !ok {
		return "", false
	}
	hdrs, ok := hdrsAny.(map[string]any)
	if !ok {
		return "", false
	}
	uaAny, ok := hdrs["User-Agent"]
	if !ok {
		return "", false
	}
	ua, ok := uaAny.(string)
	return ua, ok
}

// ShouldIgnore reports whether the record should be dropped entirely:
// logjam_ignore_message==true, or path begins with ignoredPrefix.
func ShouldIgnore(rec *record.Record, path string, ignoredPrefix string) bool {
	if v, ok := rec.GetBool("logjam_ignore_message"); ok && v {
		return true
	}
	if ignoredPrefix != "" && path != "" && strings.HasPrefix(path, ignoredPrefix) {
		return true
	}
	return false
}

// idActionKey returns "{id}-{action}", or "" if id is absent (§12 caller/
// sender info multisets).
func idActionKey(rec *record.Record, idField, actionField string) string {
	id, ok := rec.GetString(idField)
	if !ok || id == "" {
		return ""
	}
	action, _ := rec.GetString(actionField)
	return id + "-" + action
}

// CallerKey returns the "{caller_id}-{caller_action}" multiset key for a
// backend record, or "" when caller_id is absent.
func CallerKey(rec *record.Record) string {
	return idActionKey(rec, "caller_id", "caller_action")
}

// SenderKey returns the "{sender_id}-{sender_action}" multiset key for a
// backend record, or "" when sender_id is absent.
func SenderKey(rec *record.Record) string {
	return idActionKey(rec, "sender_id", "sender_action")
}
