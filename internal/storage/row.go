/*
Copyright 2025 Opal Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package storage

import (
	"fmt"
	"strings"
)

// Row represents a single row of data
type Row []ColumnValue

// Clone returns a copy of the row. The values themselves are immutable and
// are shared.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	copy(c, r)
	return c
}

// Key returns a string that identifies the row's values, usable as a map
// key for grouping and duplicate elimination. The encoding length-prefixes
// strings so that values containing the separator cannot collide.
func (r Row) Key() string {
	var sb strings.Builder
	for i, val := range r {
		if i > 0 {
			sb.WriteByte('|')
		}
		if val == nil || val.IsNull() {
			sb.WriteString("n")
			continue
		}
		switch val.Type() {
		case TEXT, BYTES:
			s, _ := val.AsString()
			fmt.Fprintf(&sb, "s%d:%s", len(s), s)
		case NUMERIC:
			d, _ := val.AsDecimal()
			sb.WriteByte('d')
			sb.WriteString(d.String())
		default:
			fmt.Fprintf(&sb, "v%v", val.AsInterface())
		}
	}
	return sb.String()
}

// KeyPrefix is Key restricted to the first n values.
func (r Row) KeyPrefix(n int) string {
	if n >= len(r) {
		return r.Key()
	}
	return r[:n].Key()
}

// Equal reports whether two rows hold pairwise equal values, NULLs included.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i, val := range r {
		if val == nil || val.IsNull() {
			if other[i] != nil && !other[i].IsNull() {
				return false
			}
			continue
		}
		if !val.Equals(other[i]) {
			return false
		}
	}
	return true
}

// RowRef identifies a stored row for locking purposes.
type RowRef struct {
	RowID int64
}
