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
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// distinctScanSelectivity is the selectivity below which a single-column
// DISTINCT switches to walking the column's index value by value.
const distinctScanSelectivity = 20

// Prepare plans the statement: the sort order is materialized, expressions
// are named and optimized, access paths are chosen and the plan flags
// (quick aggregate, distinct scan, index sorted, group sorted) are set.
// A second call is a no-op.
func (s *Select) Prepare() error {
	if s.prepared {
		return nil
	}
	if !s.initialized {
		return sql.Internal("SELECT must be initialized before prepare")
	}
	s.prepared = true
	ec := &expr.Context{Session: s.session}

	if s.orderFields != nil {
		s.sort = NewSortOrder(s.orderFields)
		s.orderFields = nil
	}

	s.assignColumnNames()
	for i, e := range s.expressions {
		opt, err := e.Optimize(ec)
		if err != nil {
			return err
		}
		s.expressions[i] = opt
	}

	if s.condition != nil {
		opt, err := s.condition.Optimize(ec)
		if err != nil {
			return err
		}
		s.condition = opt
		for _, f := range s.filters {
			if !f.IsJoinOuter() && !f.IsJoinOuterIndirect() {
				s.createIndexConditions(f)
			}
		}
	}

	if s.isGroupQuery && s.groupIndex == nil && s.havingIndex < 0 &&
		s.condition == nil && len(s.filters) == 1 {
		s.isQuickAggregateQuery = s.isEverythingOptimizable(s.filters[0].Table())
	}

	if err := s.preparePlan(ec); err != nil {
		return err
	}

	if s.distinct && s.db().Settings().OptimizeDistinct &&
		!s.isGroupQuery && len(s.filters) == 1 &&
		len(s.expressions) == 1 && s.condition == nil {
		s.optimizeDistinctScan()
	}

	if s.sort != nil && !s.isQuickAggregateQuery && !s.isGroupQuery {
		s.optimizeSortIndex()
	}

	if s.isGroupQuery && !s.isQuickAggregateQuery && len(s.groupIndex) > 0 &&
		s.topTableFilter != nil {
		s.optimizeGroupSortedIndex()
	}

	s.session.Logger().Debug("prepared select plan",
		zap.Bool("quickAggregate", s.isQuickAggregateQuery),
		zap.Bool("distinctScan", s.isDistinctQuery),
		zap.Bool("indexSorted", s.sortUsingIndex),
		zap.Bool("groupSorted", s.isGroupSortedQuery),
		zap.Float64("cost", s.cost))
	return nil
}

// isEverythingOptimizable reports whether every projection can be answered
// from the table's metadata without scanning rows.
func (s *Select) isEverythingOptimizable(t storage.Table) bool {
	v := expr.Visitor{Type: expr.VisitOptimizableAggregate, Table: t}
	for _, e := range s.expressions {
		if !e.IsEverything(v) {
			return false
		}
	}
	return true
}

// assignColumnNames gives each visible expression a collision-free output
// name, wrapping it in an alias when the derived name had to change.
func (s *Select) assignColumnNames() {
	used := make(map[string]bool, s.visibleColumnCount)
	s.columnNames = make([]string, s.visibleColumnCount)
	caseless := s.db().Settings().CaseInsensitiveIdentifiers
	norm := func(n string) string {
		if caseless {
			return strings.ToUpper(n)
		}
		return n
	}
	for i := 0; i < s.visibleColumnCount; i++ {
		proposed := s.expressions[i].AliasName()
		name := proposed
		for n := 1; used[norm(name)]; n++ {
			name = proposed + "_" + strconv.Itoa(n)
		}
		used[norm(name)] = true
		s.columnNames[i] = name
		if name != proposed {
			s.expressions[i] = expr.NewAlias(s.expressions[i], name, true)
		}
	}
}

// optimizeDistinctScan replaces the scan with a value-by-value walk of an
// index on the single selected column, when the column repeats enough for
// skipping to pay off.
func (s *Select) optimizeDistinctScan() {
	col, ok := s.expressions[0].NonAlias().(*expr.Column)
	if !ok || col.Col() == nil || col.Resolver() != expr.ColumnResolver(s.filters[0]) {
		return
	}
	sel := col.Col().Selectivity
	if sel == storage.SelectivityDefault || sel >= distinctScanSelectivity {
		return
	}
	for _, idx := range s.filters[0].Table().Indexes() {
		it := idx.Type()
		if it.Scan || it.Hash || !idx.CanFindNext() {
			continue
		}
		ics := idx.IndexColumns()
		if len(ics) == 0 || ics[0].Column != col.Col() ||
			ics[0].SortType&storage.Descending != 0 {
			continue
		}
		if it.Unique && len(ics) == 1 {
			// A single-column unique index makes every value distinct
			// already; the plain scan is cheaper.
			continue
		}
		s.topTableFilter.SetIndex(idx)
		s.isDistinctQuery = true
		return
	}
}

// sortIndexCandidate maps the sort order onto columns of the top filter's
// table, or reports that the sort cannot come from an index.
func (s *Select) sortIndexCandidate() (cols []storage.IndexColumn, allConstants bool, ok bool) {
	allConstants = true
	for _, f := range s.sort.Fields() {
		e := s.expressions[f.Index].NonAlias()
		if e.IsConstant() {
			continue
		}
		allConstants = false
		c, isCol := e.(*expr.Column)
		if !isCol || c.Col() == nil ||
			c.Resolver() != expr.ColumnResolver(s.topTableFilter) {
			return nil, false, false
		}
		cols = append(cols, storage.IndexColumn{Column: c.Col(), SortType: f.SortType})
	}
	return cols, allConstants, true
}

// getSortIndex returns an index of the top filter's table whose leading
// columns produce the sort order, or nil.
func (s *Select) getSortIndex() storage.Index {
	cols, allConstants, ok := s.sortIndexCandidate()
	if !ok {
		return nil
	}
	if allConstants {
		// Sorting on constants is a no-op; any order will do.
		return s.topTableFilter.Table().ScanIndex()
	}
	for _, idx := range s.topTableFilter.Table().Indexes() {
		it := idx.Type()
		if it.Scan || it.Hash {
			continue
		}
		ics := idx.IndexColumns()
		if len(ics) < len(cols) {
			continue
		}
		match := true
		for j, want := range cols {
			if ics[j].Column != want.Column || ics[j].SortType != want.SortType {
				match = false
				break
			}
		}
		if match {
			return idx
		}
	}
	return nil
}

// optimizeSortIndex elides the materialized sort when an index already
// produces the requested order. IN comparisons on the filter keep the sort,
// because the seek may reorder keys.
func (s *Select) optimizeSortIndex() {
	index := s.getSortIndex()
	current := s.topTableFilter.Index()
	if index == nil || current == nil {
		return
	}
	if current.Type().Scan || current == index {
		s.topTableFilter.SetIndex(index)
		if !s.topTableFilter.HasInComparisons() {
			s.sortUsingIndex = true
		}
		return
	}
	// A different index was already chosen for filtering; swap only when
	// the sort index starts with exactly the current index's columns.
	ics, ccs := index.IndexColumns(), current.IndexColumns()
	if len(ics) < len(ccs) {
		return
	}
	swap := false
	for i := range ccs {
		if ics[i].Column != ccs[i].Column {
			return
		}
		if ics[i].SortType != ccs[i].SortType {
			swap = true
		}
	}
	if swap {
		s.topTableFilter.SetIndex(index)
		if !s.topTableFilter.HasInComparisons() {
			s.sortUsingIndex = true
		}
	}
}

// getGroupSortedIndex returns an index whose leading columns cover all
// GROUP BY columns as an unbroken prefix, in any order, or nil.
func (s *Select) getGroupSortedIndex() storage.Index {
	groupCols := make(map[*storage.Column]bool, len(s.groupIndex))
	for _, gi := range s.groupIndex {
		c, ok := s.expressions[gi].NonAlias().(*expr.Column)
		if !ok || c.Col() == nil ||
			c.Resolver() != expr.ColumnResolver(s.topTableFilter) {
			return nil
		}
		groupCols[c.Col()] = true
	}
	for _, idx := range s.topTableFilter.Table().Indexes() {
		it := idx.Type()
		if it.Scan || it.Hash {
			continue
		}
		seen := 0
		for _, ic := range idx.IndexColumns() {
			if !groupCols[ic.Column] {
				break
			}
			seen++
		}
		if seen == len(groupCols) {
			return idx
		}
	}
	return nil
}

// optimizeGroupSortedIndex adopts an index ordered by the group key so that
// aggregation can stream group by group.
func (s *Select) optimizeGroupSortedIndex() {
	index := s.getGroupSortedIndex()
	if index == nil {
		return
	}
	current := s.topTableFilter.Index()
	if current.Type().Scan || current == index {
		s.topTableFilter.SetIndex(index)
		s.isGroupSortedQuery = true
	}
}
