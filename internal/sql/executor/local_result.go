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
package executor

import (
	"github.com/opaldb/opal/internal/storage"
)

// LocalResult is the materialized result: rows are buffered as they are
// produced, duplicates are dropped by AddRow when distinctness is enabled,
// and Done applies sorting, offset, limit, fetch percent and WITH TIES
// before the first row is read.
//
// Stored rows may be wider than the visible column count; the extra columns
// carry appended ORDER BY and DISTINCT ON terms and are trimmed by Row.
type LocalResult struct {
	visibleColumnCount int
	columnNames        []string

	rows []storage.Row

	distinct        bool
	distinctIndexes []int
	seen            map[string]bool

	sort          *SortOrder
	offset        int64
	limit         int64 // -1 means unlimited
	fetchPercent  bool
	withTies      bool
	limitsApplied bool

	done   bool
	closed bool
	pos    int
}

// NewLocalResult creates an empty result with the given visible width.
func NewLocalResult(visibleColumnCount int, columnNames []string) *LocalResult {
	return &LocalResult{
		visibleColumnCount: visibleColumnCount,
		columnNames:        columnNames,
		limit:              -1,
		pos:                -1,
	}
}

// SetDistinct enables full-row duplicate elimination.
func (r *LocalResult) SetDistinct() {
	r.distinct = true
	r.seen = make(map[string]bool)
}

// SetDistinctIndexes enables DISTINCT ON deduplication over the given
// column positions; the first row of each key is kept.
func (r *LocalResult) SetDistinctIndexes(indexes []int) {
	r.distinctIndexes = indexes
	r.seen = make(map[string]bool)
}

// IsAnyDistinct reports whether any form of deduplication is active.
func (r *LocalResult) IsAnyDistinct() bool {
	return r.distinct || r.distinctIndexes != nil
}

func (r *LocalResult) SetSortOrder(sort *SortOrder) { r.sort = sort }
func (r *LocalResult) SetOffset(offset int64)       { r.offset = offset }
func (r *LocalResult) SetLimit(limit int64)         { r.limit = limit }
func (r *LocalResult) SetFetchPercent(b bool)       { r.fetchPercent = b }
func (r *LocalResult) SetWithTies(b bool)           { r.withTies = b }

// LimitsWereApplied tells the result that offset and limit were enforced
// during row production; Done will not apply them again.
func (r *LocalResult) LimitsWereApplied() { r.limitsApplied = true }

func (r *LocalResult) dedupKey(row storage.Row) string {
	if r.distinctIndexes != nil {
		key := make(storage.Row, len(r.distinctIndexes))
		for i, idx := range r.distinctIndexes {
			key[i] = row[idx]
		}
		return key.Key()
	}
	return row.Key()
}

func (r *LocalResult) AddRow(row storage.Row) error {
	if r.seen != nil {
		key := r.dedupKey(row)
		if r.seen[key] {
			return nil
		}
		r.seen[key] = true
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *LocalResult) RowCount() int64 { return int64(len(r.rows)) }

// Done finishes row production: sorts when a sort order was installed and
// applies offset, limit, fetch percent and WITH TIES.
func (r *LocalResult) Done() {
	if r.done {
		return
	}
	r.done = true
	if r.sort != nil {
		r.sort.Sort(r.rows)
	}
	r.applyOffsetAndLimit()
}

func (r *LocalResult) applyOffsetAndLimit() {
	if r.limitsApplied {
		return
	}
	total := int64(len(r.rows))
	offset := r.offset
	if offset < 0 {
		offset = 0
	}
	limit := r.limit
	if r.fetchPercent && limit >= 0 {
		limit = (total*limit + 99) / 100
	}
	if offset == 0 && (limit < 0 || limit >= total) {
		return
	}
	end := total
	if limit >= 0 {
		end = offset + limit
		if end > total {
			end = total
		}
		if r.withTies && r.sort != nil && end > 0 && end < total {
			last := r.rows[end-1]
			for end < total && r.sort.Compare(last, r.rows[end]) == 0 {
				end++
			}
		}
	}
	if offset >= total {
		r.rows = nil
		return
	}
	r.rows = r.rows[offset:end]
}

func (r *LocalResult) Next() bool {
	if r.closed || !r.done {
		return false
	}
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

func (r *LocalResult) Row() storage.Row {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil
	}
	row := r.rows[r.pos]
	if len(row) > r.visibleColumnCount {
		return row[:r.visibleColumnCount]
	}
	return row
}

func (r *LocalResult) ColumnCount() int       { return r.visibleColumnCount }
func (r *LocalResult) ColumnNames() []string  { return r.columnNames }
func (r *LocalResult) Reset() error           { r.pos = -1; return nil }
func (r *LocalResult) Close()                 { r.closed = true; r.rows = nil }
func (r *LocalResult) Err() error             { return nil }

// ConvertDistinct removes duplicate rows in place, comparing the visible
// columns. Used when a random-access caller needs distinct form and the
// statement did not already enforce it.
func (r *LocalResult) ConvertDistinct() {
	seen := make(map[string]bool, len(r.rows))
	out := r.rows[:0]
	for _, row := range r.rows {
		v := row
		if len(v) > r.visibleColumnCount {
			v = v[:r.visibleColumnCount]
		}
		key := v.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	r.rows = out
}
