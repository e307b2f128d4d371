// Copyright 2025 Google LLC
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

package util

import (
	"reflect"
)

// Definitions/conventions (not based on a standard, but just made up for convenience).
//  1. Raw/unsafe size: the size of a data structure when just initialized,
//     without any content filled into it. Same as unsafe.Sizeof(...).
//     A string has a raw size of 16 on 64-bit platforms regardless of its
//     content.
//  2. Content size: the additional bytes owned by a value's members, e.g. the
//     bytes of a string.
//  3. Nested size: raw size plus content size.

// UnsafeSizeOf returns the raw size of the value ptr points to, or 0 for nil.
func UnsafeSizeOf[T any](ptr *T) int {
	if ptr == nil {
		return 0
	}
	return int(reflect.TypeOf(*ptr).Size())
}

// CStringSize returns the bytes needed to hold s followed by a terminating
// zero byte.
func CStringSize(s string) int {
	return len(s) + 1
}
