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

// Resource is an index into an Increment's fixed metric menu. The menu is
// partitioned into time, heap and frontend resources; two of the heap
// indices are distinguished (allocated objects/bytes) because the quants
// fold applies a different divisor to each (see aggstore).
type Resource int

const (
	TotalTime Resource = iota
	GcTime
	DbTime
	ViewTime
	OtherTime
	LastTimeResourceOffset = OtherTime

	AllocatedMemory Resource = iota - 1
	AllocatedObjects
	AllocatedBytes
	HeapGrowth
	LastHeapResourceOffset = HeapGrowth

	NavigationTime Resource = iota - 2
	ConnectTime
	RequestTime
	ResponseTime
	ProcessingTime
	LoadTime
	PageTime
	DomInteractive
	AjaxTime
	LastFrontendResourceOffset = AjaxTime

	LastResourceOffset = LastFrontendResourceOffset
	NumMetrics         = LastResourceOffset + 1

	AllocatedObjectsIndex = AllocatedObjects
	AllocatedBytesIndex   = AllocatedBytes
)

var resourceNames = [NumMetrics]string{
	TotalTime:        "total_time",
	GcTime:           "gc_time",
	DbTime:           "db_time",
	ViewTime:         "view_time",
	OtherTime:        "other_time",
	AllocatedMemory:  "allocated_memory",
	AllocatedObjects: "allocated_objects",
	AllocatedBytes:   "allocated_bytes",
	HeapGrowth:       "heap_growth",
	NavigationTime:   "navigation_time",
	ConnectTime:      "connect_time",
	RequestTime:      "request_time",
	ResponseTime:     "response_time",
	ProcessingTime:   "processing_time",
	LoadTime:         "load_time",
	PageTime:         "page_time",
	DomInteractive:   "dom_interactive",
	AjaxTime:         "ajax_time",
}

// Name returns the field name a resource is read from / written to on a
// normalized record.
func (r Resource) Name() string {
	if r < 0 || int(r) >= int(NumMetrics) {
		return ""
	}
	return resourceNames[r]
}
