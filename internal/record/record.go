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

// Package record models the incoming request record as a mutable tagged
// tree (object/array/string/number/bool), the way the importer this module
// is modeled on treats its wire-format records. Normalizers elsewhere
// (internal/normalize, internal/frontend) read and rewrite fields on a
// Record in place; the processor hands the same value on to the outbound
// queue once it decides to forward it.
package record

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Record is a decoded request record. It is a thin, value-receiver-free
// wrapper over a JSON object so callers share the same underlying map —
// mutation by one normalizer is visible to the next, matching the
// in-place-mutation contract the importer's record type has.
type Record struct {
	fields map[string]any
}

// New wraps an already-decoded object tree.
func New(fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{fields: fields}
}

// Decode parses a JSON object into a Record.
func Decode(data []byte) (*Record, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("record: decode: %w", err)
	}
	return New(fields), nil
}

// Encode re-serializes the record's current state.
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r.fields)
}

// Fields exposes the backing map for callers (e.g. outqueue writers) that
// need to serialize or inspect the whole record.
func (r *Record) Fields() map[string]any { return r.fields }

func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

func (r *Record) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

func (r *Record) Set(key string, v any) { r.fields[key] = v }

func (r *Record) Delete(key string) { delete(r.fields, key) }

// GetString returns the string at key, or ("", false) if absent or not a
// string.
func (r *Record) GetString(key string) (string, bool) {
	v, ok := r.fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the numeric value at key as a float64. JSON numbers
// decode as float64 under both encoding/json and goccy/go-json, so this is
// the single numeric accessor; GetInt truncates it.
func (r *Record) GetFloat(key string) (float64, bool) {
	v, ok := r.fields[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// GetInt returns the numeric value at key truncated to int.
func (r *Record) GetInt(key string) (int, bool) {
	f, ok := r.GetFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// GetBool returns the boolean value at key.
func (r *Record) GetBool(key string) (bool, bool) {
	v, ok := r.fields[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetArray returns the array value at key.
func (r *Record) GetArray(key string) ([]any, bool) {
	v, ok := r.fields[key]
	if !ok {
		return nil, false
	}
	a, ok := v.([]any)
	return a, ok
}

// GetObject returns the nested object at key, for dotted-path lookups like
// request_info.url.
func (r *Record) GetObject(key string) (map[string]any, bool) {
	v, ok := r.fields[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// GetNestedString resolves obj.key, returning ("", false) if either level
// is missing or of the wrong type.
func (r *Record) GetNestedString(obj, key string) (string, bool) {
	m, ok := r.GetObject(obj)
	if !ok {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
