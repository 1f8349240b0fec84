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
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// lazyResult is the pull-based result shared by the flat and sorted-group
// drivers: fetch produces the next row or nil at the end, and the base
// applies the row limit and offset skip.
type lazyResult struct {
	sel *Select
	ec  *expr.Context

	limit   int64
	offset  int64
	emitted int64

	currentRow storage.Row
	skipped    bool
	closed     bool
	afterLast  bool
	err        error

	fetch func() (storage.Row, error)
	rearm func()
}

func (r *lazyResult) Next() bool {
	if r.closed || r.afterLast || r.err != nil {
		return false
	}
	if r.limit > 0 && r.emitted >= r.limit {
		r.afterLast = true
		return false
	}
	if !r.skipped {
		r.skipped = true
		for i := int64(0); i < r.offset; i++ {
			row, err := r.fetch()
			if err != nil {
				r.err = err
				return false
			}
			if row == nil {
				r.afterLast = true
				return false
			}
		}
	}
	row, err := r.fetch()
	if err != nil {
		r.err = err
		return false
	}
	if row == nil {
		r.afterLast = true
		return false
	}
	r.currentRow = row
	r.emitted++
	return true
}

func (r *lazyResult) Row() storage.Row {
	if r.currentRow == nil {
		return nil
	}
	if len(r.currentRow) > r.sel.visibleColumnCount {
		return r.currentRow[:r.sel.visibleColumnCount]
	}
	return r.currentRow
}

func (r *lazyResult) ColumnCount() int      { return r.sel.visibleColumnCount }
func (r *lazyResult) ColumnNames() []string { return r.sel.columnNames }
func (r *lazyResult) Err() error            { return r.err }

// Reset rewinds the underlying scan so the result can be enumerated again.
func (r *lazyResult) Reset() error {
	if r.closed {
		return nil
	}
	r.sel.topTableFilter.Reset()
	r.emitted = 0
	r.currentRow = nil
	r.skipped = false
	r.afterLast = false
	r.err = nil
	if r.rearm != nil {
		r.rearm()
	}
	return nil
}

// Close tears down the scan state. The statement can be executed again
// afterwards.
func (r *lazyResult) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.currentRow = nil
	r.sel.topTableFilter.Reset()
	if r.sel.groupStore != nil {
		r.sel.groupStore = nil
	}
}

// newLazyFlat streams the flat strategy: each fetch advances the top filter
// until a row passes the WHERE, then projects it.
func newLazyFlat(s *Select, ec *expr.Context, limit int64) Result {
	r := &lazyResult{sel: s, ec: ec, limit: limit}
	rowNumber := int64(0)
	r.fetch = func() (storage.Row, error) {
		for {
			ok, err := s.topTableFilter.Next(ec)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			met, err := s.isConditionMet(ec)
			if err != nil {
				return nil, err
			}
			if !met {
				continue
			}
			rowNumber++
			s.session.SetCurrentRowNumber(rowNumber)
			row := make(storage.Row, s.distinctColumnCount)
			for i := 0; i < s.distinctColumnCount; i++ {
				v, err := s.expressions[i].Value(ec)
				if err != nil {
					return nil, err
				}
				row[i] = v
			}
			return row, nil
		}
	}
	r.rearm = func() { rowNumber = 0 }
	return r
}

// newLazyGroupSorted streams the sorted-group strategy: each fetch scans
// until the group key changes and returns the completed group's row; the
// final pending group is emitted once after the scan ends.
func newLazyGroupSorted(s *Select, ec *expr.Context, limit int64) Result {
	r := &lazyResult{sel: s, ec: ec, limit: limit}
	var prevKey storage.Row
	done := false
	rowNumber := int64(0)
	s.groupStore = newGroupData(len(s.expressions))
	r.fetch = func() (storage.Row, error) {
		if done {
			return nil, nil
		}
		for {
			ok, err := s.topTableFilter.Next(ec)
			if err != nil {
				return nil, err
			}
			if !ok {
				done = true
				if prevKey == nil {
					return nil, nil
				}
				return s.createGroupRow(ec, prevKey)
			}
			met, err := s.isConditionMet(ec)
			if err != nil {
				return nil, err
			}
			if !met {
				continue
			}
			rowNumber++
			s.session.SetCurrentRowNumber(rowNumber)
			key := make(storage.Row, len(s.groupIndex))
			for i, gi := range s.groupIndex {
				v, err := s.expressions[gi].Value(ec)
				if err != nil {
					return nil, err
				}
				key[i] = v
			}
			var finished storage.Row
			if prevKey != nil && !key.Equal(prevKey) {
				finished, err = s.createGroupRow(ec, prevKey)
				if err != nil {
					return nil, err
				}
			}
			newGroup := prevKey == nil || !prevKey.Equal(key)
			if newGroup {
				s.groupStore.freshCurrent(key)
				prevKey = key.Clone()
			}
			s.groupStore.nextRow()
			for j, e := range s.expressions {
				if s.isGroupKeyColumn(j) {
					continue
				}
				if err := e.UpdateAggregate(ec); err != nil {
					return nil, err
				}
			}
			if finished != nil {
				return finished, nil
			}
		}
	}
	r.rearm = func() {
		prevKey = nil
		done = false
		rowNumber = 0
		s.groupStore = newGroupData(len(s.expressions))
	}
	return r
}
