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
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// Query executes the prepared statement and returns its result. maxRows
// caps the result (0 means unlimited) on top of the statement's own FETCH
// clause. When target is non-nil the rows are drained into it and the
// returned result is nil.
//
// One of five strategies runs: quick aggregate, hashed group, sorted group,
// distinct index scan, or the flat scan. The flat and sorted-group
// strategies stream through a lazy result when the session and statement
// shape allow it; everything else materializes.
func (s *Select) Query(maxRows int64, target ResultTarget) (Result, error) {
	if !s.prepared {
		return nil, sql.Internal("SELECT must be prepared before execution")
	}
	start := time.Now()
	session := s.session
	ec := &expr.Context{Session: session, Group: s}

	s.FireBeforeSelectTriggers()

	limit := int64(-1)
	if maxRows > 0 {
		limit = maxRows
	}
	if s.limitExpr != nil {
		v, err := s.limitExpr.Value(ec)
		if err != nil {
			return nil, err
		}
		l := int64(-1)
		if !v.IsNull() {
			l, _ = v.AsInt64()
		}
		if s.fetchPercent {
			if l < 0 || l > 100 {
				return nil, sql.InvalidValue("FETCH PERCENT", l)
			}
			limit = l
		} else if l >= 0 && (limit < 0 || l < limit) {
			limit = l
		}
	}
	offset := int64(0)
	if s.offsetExpr != nil {
		v, err := s.offsetExpr.Value(ec)
		if err != nil {
			return nil, err
		}
		if !v.IsNull() {
			if o, ok := v.AsInt64(); ok && o > 0 {
				offset = o
			}
		}
	}

	lazy := target == nil && session.IsLazyQueryExecution() &&
		!s.isForUpdate && !s.isQuickAggregateQuery &&
		limit != 0 && !s.fetchPercent && !s.withTies &&
		offset == 0 && s.IsReadOnly()

	// Decide what has to be materialized. Mirrors of these conditions
	// revoke laziness and disable the quick offset skip.
	quickOffset := !s.fetchPercent
	// needLocal: the rows must be buffered in a LocalResult instead of
	// streaming to the target or a lazy result.
	needLocal := target != nil && !s.db().Settings().OptimizeInsertFromSelect
	setSort := false
	if s.sort != nil && (!s.sortUsingIndex || s.IsAnyDistinct()) {
		needLocal = true
		setSort = true
		if !s.sortUsingIndex {
			quickOffset = false
		}
	}
	setDistinct, setDistinctOn := false, false
	if s.distinct {
		if !s.isDistinctQuery {
			quickOffset = false
			needLocal = true
			setDistinct = true
		}
	} else if s.distinctExpressions != nil {
		quickOffset = false
		needLocal = true
		setDistinctOn = true
	}
	if s.isGroupQuery && !s.isGroupSortedQuery {
		needLocal = true
	}
	// Only the flat and sorted-group strategies can stream.
	lazyCapable := s.isGroupQuery && s.isGroupSortedQuery ||
		!s.isGroupQuery && !s.isDistinctQuery
	if !lazyCapable || needLocal {
		lazy = false
	}
	if !lazy && (limit >= 0 || s.offsetExpr != nil) {
		needLocal = true
	}

	var local *LocalResult
	var sink rowSink
	if !lazy {
		if target != nil && !needLocal {
			sink = &targetSink{target: target}
		} else {
			local = NewLocalResult(s.visibleColumnCount, s.columnNames)
			if setSort {
				local.SetSortOrder(s.sort)
			}
			if setDistinct {
				local.SetDistinct()
			}
			if setDistinctOn {
				local.SetDistinctIndexes(s.distinctIndexes)
			}
			sink = local
		}
	}

	if s.topTableFilter != nil {
		s.topTableFilter.StartQuery(session)
		s.topTableFilter.Reset()
		if s.isForUpdateMvcc {
			switch {
			case s.isGroupQuery:
				return nil, sql.Unsupported("MVCC=TRUE && FOR UPDATE && GROUP")
			case s.IsAnyDistinct():
				return nil, sql.Unsupported("MVCC=TRUE && FOR UPDATE && DISTINCT")
			case s.isQuickAggregateQuery:
				return nil, sql.Unsupported("MVCC=TRUE && FOR UPDATE && AGGREGATE")
			case s.topTableFilter.Join() != nil:
				return nil, sql.Unsupported("MVCC=TRUE && FOR UPDATE && JOIN")
			}
		}
		exclusive := s.isForUpdate && !s.isForUpdateMvcc
		if err := s.topTableFilter.Lock(session, exclusive); err != nil {
			return nil, err
		}
	}

	// Under FETCH PERCENT the limit is a percentage; only the materialized
	// result can apply it, after the row count is known.
	strategyLimit := limit
	if s.fetchPercent {
		strategyLimit = -1
	}

	var lazyRes Result
	if limit != 0 {
		var err error
		switch {
		case s.isQuickAggregateQuery:
			err = s.queryQuick(ec, sink, quickOffset && offset > 0)
		case s.isGroupQuery && !s.isGroupSortedQuery:
			err = s.queryGroup(ec, sink, offset, quickOffset)
		case s.isGroupQuery:
			if lazy {
				lazyRes = newLazyGroupSorted(s, ec, strategyLimit)
			} else {
				err = s.queryGroupSorted(ec, sink, offset, quickOffset)
			}
		case s.isDistinctQuery:
			err = s.queryDistinct(ec, sink, strategyLimit, offset, quickOffset)
		default:
			if lazy {
				lazyRes = newLazyFlat(s, ec, strategyLimit)
			} else {
				err = s.queryFlat(ec, sink, strategyLimit, offset, quickOffset)
			}
		}
		if err != nil {
			s.groupStore = nil
			return nil, err
		}
	}
	if lazyRes != nil {
		return lazyRes, nil
	}

	if local != nil {
		if s.offsetExpr != nil && !quickOffset {
			if offset > math.MaxInt32 {
				return nil, sql.InvalidValue("OFFSET", offset)
			}
			local.SetOffset(offset)
		}
		if limit >= 0 {
			local.SetLimit(limit)
			local.SetFetchPercent(s.fetchPercent)
			local.SetWithTies(s.withTies)
		}
		local.Done()
		if s.randomAccessResult && !s.IsAnyDistinct() {
			local.ConvertDistinct()
		}
	}
	session.Logger().Debug("executed select",
		zap.Duration("elapsed", time.Since(start)))

	if target != nil {
		if local != nil {
			for local.Next() {
				if err := target.AddRow(local.Row()); err != nil {
					return nil, err
				}
			}
			local.Close()
		}
		return nil, nil
	}
	return local, nil
}

// QueryMeta returns an empty result that exposes the statement's visible
// columns, for result-set metadata queries.
func (s *Select) QueryMeta() (Result, error) {
	if !s.prepared {
		return nil, sql.Internal("SELECT must be prepared before execution")
	}
	r := NewLocalResult(s.visibleColumnCount, s.columnNames)
	r.Done()
	return r, nil
}

// queryQuick answers every projection from metadata; no rows are scanned.
func (s *Select) queryQuick(ec *expr.Context, sink rowSink, skipRow bool) error {
	s.groupStore = newGroupData(len(s.expressions))
	defer func() { s.groupStore = nil }()
	s.groupStore.freshCurrent(storage.Row{})
	row := make(storage.Row, len(s.expressions))
	for i, e := range s.expressions {
		v, err := e.Value(ec)
		if err != nil {
			return err
		}
		row[i] = v
	}
	if skipRow {
		return nil
	}
	return sink.AddRow(row)
}

// isConditionMet evaluates the WHERE for the current input row.
func (s *Select) isConditionMet(ec *expr.Context) (bool, error) {
	if s.condition == nil {
		return true, nil
	}
	return expr.BooleanValue(ec, s.condition)
}

// effectiveSampleSize returns the statement's SAMPLE_SIZE when present,
// otherwise the session's; 0 means unlimited.
func (s *Select) effectiveSampleSize(ec *expr.Context) (int64, error) {
	if s.sampleSizeExpr == nil {
		return int64(s.session.SampleSize()), nil
	}
	v, err := s.sampleSizeExpr.Value(ec)
	if err != nil {
		return 0, err
	}
	if v.IsNull() {
		return int64(s.session.SampleSize()), nil
	}
	n, ok := v.AsInt64()
	if !ok || n < 0 {
		return 0, sql.InvalidValue("SAMPLE_SIZE", v.SQL())
	}
	return n, nil
}

// queryGroup is the hashed grouping strategy: aggregate state is kept per
// group key in the group-state store and groups are emitted after the scan.
func (s *Select) queryGroup(ec *expr.Context, sink rowSink, offset int64, quickOffset bool) error {
	s.groupStore = newGroupData(len(s.expressions))
	defer func() { s.groupStore = nil }()
	sample, err := s.effectiveSampleSize(ec)
	if err != nil {
		return err
	}
	rowNumber := int64(0)
	for {
		ok, err := s.topTableFilter.Next(ec)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		met, err := s.isConditionMet(ec)
		if err != nil {
			return err
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
				return err
			}
			key[i] = v
		}
		s.groupStore.setCurrent(key)
		s.groupStore.nextRow()
		for j, e := range s.expressions {
			if s.isGroupKeyColumn(j) {
				continue
			}
			if err := e.UpdateAggregate(ec); err != nil {
				return err
			}
		}
		if sample > 0 && rowNumber >= sample {
			break
		}
	}
	if len(s.groupStore.order) == 0 && len(s.groupIndex) == 0 {
		// No input rows and no GROUP BY: aggregates still produce one row.
		s.groupStore.setCurrent(storage.Row{})
	}
	for _, entry := range s.groupStore.order {
		s.groupStore.current = entry
		row, err := s.createGroupRow(ec, entry.key)
		if err != nil {
			return err
		}
		if row == nil {
			continue
		}
		if quickOffset && offset > 0 {
			offset--
			continue
		}
		if err := sink.AddRow(row); err != nil {
			return err
		}
	}
	return nil
}

// createGroupRow builds the output row of the current group: key columns
// are projected from the saved key, the remaining columns are evaluated
// against the group's aggregate state, and the HAVING column decides
// whether the row survives. Returns nil for a filtered-out group.
func (s *Select) createGroupRow(ec *expr.Context, key storage.Row) (storage.Row, error) {
	row := make(storage.Row, len(s.expressions))
	for i, gi := range s.groupIndex {
		row[gi] = key[i]
	}
	s.currentEmitRow = row
	defer func() { s.currentEmitRow = nil }()
	for j, e := range s.expressions {
		if s.isGroupKeyColumn(j) {
			continue
		}
		v, err := e.Value(ec)
		if err != nil {
			return nil, err
		}
		row[j] = v
	}
	if s.havingIndex >= 0 {
		v := row[s.havingIndex]
		if v == nil || v.IsNull() {
			return nil, nil
		}
		if b, ok := v.AsBoolean(); !ok || !b {
			return nil, nil
		}
	}
	return row[:s.distinctColumnCount], nil
}

// queryGroupSorted streams groups in one pass: the input arrives ordered by
// the group key, so a key change means the previous group is complete.
func (s *Select) queryGroupSorted(ec *expr.Context, sink rowSink, offset int64, quickOffset bool) error {
	s.groupStore = newGroupData(len(s.expressions))
	defer func() { s.groupStore = nil }()
	var prevKey storage.Row
	rowNumber := int64(0)
	emit := func(key storage.Row) error {
		row, err := s.createGroupRow(ec, key)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if quickOffset && offset > 0 {
			offset--
			return nil
		}
		return sink.AddRow(row)
	}
	for {
		ok, err := s.topTableFilter.Next(ec)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		met, err := s.isConditionMet(ec)
		if err != nil {
			return err
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
				return err
			}
			key[i] = v
		}
		if prevKey == nil || !key.Equal(prevKey) {
			if prevKey != nil {
				if err := emit(prevKey); err != nil {
					return err
				}
			}
			s.groupStore.freshCurrent(key)
			prevKey = key.Clone()
		}
		s.groupStore.nextRow()
		for j, e := range s.expressions {
			if s.isGroupKeyColumn(j) {
				continue
			}
			if err := e.UpdateAggregate(ec); err != nil {
				return err
			}
		}
	}
	if prevKey != nil {
		return emit(prevKey)
	}
	return nil
}

// queryDistinct walks the chosen single-column index value by value,
// seeking just past each yielded key instead of scanning duplicates.
func (s *Select) queryDistinct(ec *expr.Context, sink rowSink, limit, offset int64, quickOffset bool) error {
	if limit > 0 && offset > 0 {
		if limit > math.MaxInt64-offset {
			limit = math.MaxInt64
		} else {
			limit += offset
		}
	}
	idx := s.topTableFilter.Index()
	col := idx.Columns()[0]
	sample, err := s.effectiveSampleSize(ec)
	if err != nil {
		return err
	}
	rowCount := int64(0)
	rowNumber := int64(0)
	var prev storage.Row
	for {
		rowNumber++
		s.session.SetCurrentRowNumber(rowNumber)
		if err := s.session.CheckCanceled(); err != nil {
			return err
		}
		cursor := idx.FindNext(prev)
		if !cursor.Next() {
			break
		}
		if err := cursor.Err(); err != nil {
			return err
		}
		prev = cursor.Row()
		if quickOffset && offset > 0 {
			offset--
			continue
		}
		if err := sink.AddRow(storage.Row{prev[col.ID]}); err != nil {
			return err
		}
		rowCount++
		if (s.sort == nil || s.sortUsingIndex) && limit > 0 &&
			rowCount >= limit && !s.withTies {
			break
		}
		if sample > 0 && rowCount >= sample {
			break
		}
	}
	return nil
}

// queryFlat streams rows through the WHERE and the projection. Under
// FOR UPDATE MVCC the visible rows' locks are buffered and installed in
// bulk when the scan ends.
func (s *Select) queryFlat(ec *expr.Context, sink rowSink, limit, offset int64, quickOffset bool) error {
	// Without the quick offset skip the offset rows reach the sink too, so
	// the in-stream limit has to cover them.
	if limit > 0 && offset > 0 && !quickOffset {
		if limit > math.MaxInt64-offset {
			limit = math.MaxInt64
		} else {
			limit += offset
		}
	}
	sample, err := s.effectiveSampleSize(ec)
	if err != nil {
		return err
	}
	rowNumber := int64(0)
	limitInStream := s.sort == nil || s.sortUsingIndex
	appliedTies := false
	var lastRow storage.Row
	for {
		ok, err := s.topTableFilter.Next(ec)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		met, err := s.isConditionMet(ec)
		if err != nil {
			return err
		}
		if !met {
			continue
		}
		rowNumber++
		s.session.SetCurrentRowNumber(rowNumber)
		if s.isForUpdateMvcc {
			s.topTableFilter.LockRowAdd(
				storage.RowRef{RowID: s.topTableFilter.CurrentRowID()})
		}
		if quickOffset && offset > 0 {
			offset--
			continue
		}
		row := make(storage.Row, s.distinctColumnCount)
		for i := 0; i < s.distinctColumnCount; i++ {
			v, err := s.expressions[i].Value(ec)
			if err != nil {
				return err
			}
			row[i] = v
		}
		if limitInStream && limit >= 0 && sink.RowCount() >= limit {
			// Limit reached under index order: keep rows that tie with the
			// last emitted one when WITH TIES asks for them.
			if !s.withTies || s.sort == nil || lastRow == nil ||
				s.sort.Compare(lastRow, row) != 0 {
				break
			}
			appliedTies = true
			if err := sink.AddRow(row); err != nil {
				return err
			}
			continue
		}
		if err := sink.AddRow(row); err != nil {
			return err
		}
		lastRow = row
		if sample > 0 && rowNumber >= sample {
			break
		}
	}
	if s.isForUpdateMvcc {
		if err := s.topTableFilter.LockRows(s.session); err != nil {
			return err
		}
	}
	if appliedTies {
		sink.LimitsWereApplied()
	}
	return nil
}
