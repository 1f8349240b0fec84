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
	"strings"
	"testing"

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// newTestTable builds T(a INT, b INT) with the rows
// (1,10),(1,20),(2,30),(2,40),(3,50).
func newTestTable(t *testing.T, extra ...[2]int64) *storage.MemTable {
	t.Helper()
	tbl := storage.NewMemTable(storage.Schema{
		TableName: "t",
		Columns: []storage.Column{
			{Name: "a", Type: storage.INTEGER, Visible: true},
			{Name: "b", Type: storage.INTEGER, Visible: true},
		},
	})
	rows := [][2]int64{{1, 10}, {1, 20}, {2, 30}, {2, 40}, {3, 50}}
	rows = append(rows, extra...)
	for _, r := range rows {
		err := tbl.Insert(storage.Row{
			storage.NewIntegerValue(r[0]), storage.NewIntegerValue(r[1]),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func newTestSession(t *testing.T, tables ...storage.Table) *sql.Session {
	t.Helper()
	db := sql.NewDatabase(sql.DefaultSettings(), nil)
	for _, tbl := range tables {
		db.AddTable(tbl)
	}
	return sql.NewSession(db)
}

func col(name string) *expr.Column { return expr.NewColumn("", "", name) }

func prepared(t *testing.T, s *Select) *Select {
	t.Helper()
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Prepare(); err != nil {
		t.Fatal(err)
	}
	return s
}

func runRows(t *testing.T, s *Select) [][]int64 {
	t.Helper()
	res, err := s.Query(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	return drain(t, res)
}

func drain(t *testing.T, res Result) [][]int64 {
	t.Helper()
	var out [][]int64
	for res.Next() {
		row := res.Row()
		vals := make([]int64, len(row))
		for i, v := range row {
			n, _ := v.AsInt64()
			vals[i] = n
		}
		out = append(out, vals)
	}
	if err := res.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func assertRows(t *testing.T, got [][]int64, want [][]int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d rows %v, want %d rows %v", len(got), got, len(want), want)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("row %d: got %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("row %d: got %v, want %v", i, got[i], want[i])
			}
		}
	}
}

func sortedRows(rows [][]int64) [][]int64 {
	out := make([][]int64, len(rows))
	copy(out, rows)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b []int64) bool {
	for i := range a {
		if i >= len(b) || a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			return true
		}
	}
	return false
}

func TestGroupBySum(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	s.SetOrder([]OrderEntry{{Expr: col("a")}})
	prepared(t, s)
	if s.IsGroupSortedQuery() {
		t.Fatal("no index on a, grouping must hash")
	}
	assertRows(t, runRows(t, s), [][]int64{{1, 30}, {2, 70}, {3, 50}})
}

func TestGroupByHaving(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	s.SetHaving(expr.NewComparison(expr.OpGreater, expr.Sum(col("b")), expr.Int(40)))
	s.SetOrder([]OrderEntry{{Expr: col("a")}})
	prepared(t, s)
	if s.HavingIndex() < 0 {
		t.Fatal("HAVING was not appended")
	}
	assertRows(t, runRows(t, s), [][]int64{{2, 70}, {3, 50}})
}

func TestDistinctOrderBy(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinct()
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("a")}})
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{{1}, {2}, {3}})
}

func TestQuickAggregateCount(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{expr.CountAll()})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if !s.IsQuickAggregateQuery() {
		t.Fatal("COUNT(*) without WHERE must use direct lookup")
	}
	if !strings.Contains(s.PlanSQL(), "/* direct lookup */") {
		t.Fatalf("plan missing direct lookup comment:\n%s", s.PlanSQL())
	}
	assertRows(t, runRows(t, s), [][]int64{{5}})
}

func TestQuickAggregateMinMax(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.CreateIndex("idx_a", []string{"a"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{
		expr.Min(col("a")), expr.Max(col("a")), expr.CountAll(),
	})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if !s.IsQuickAggregateQuery() {
		t.Fatal("MIN/MAX over an indexed column must use direct lookup")
	}
	assertRows(t, runRows(t, s), [][]int64{{1, 3, 5}})
}

func TestOrderByDescLimitOffset(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b"), SortType: storage.Descending}})
	s.SetLimit(expr.Int(2))
	s.SetOffset(expr.Int(1))
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{{2, 40}, {2, 30}})
}

func TestWithTiesMaterialized(t *testing.T) {
	tbl := newTestTable(t, [2]int64{4, 20})
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	s.SetLimit(expr.Int(2))
	s.SetWithTies(true)
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{{1, 10}, {1, 20}, {4, 20}})
}

func TestWithTiesIndexSorted(t *testing.T) {
	tbl := newTestTable(t, [2]int64{4, 20})
	if _, err := tbl.CreateIndex("idx_b", []string{"b"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	s.SetLimit(expr.Int(2))
	s.SetWithTies(true)
	prepared(t, s)
	if !s.IsSortUsingIndex() {
		t.Fatal("index on b must satisfy the sort")
	}
	got := runRows(t, s)
	if len(got) != 3 {
		t.Fatalf("expected limit plus one tie, got %v", got)
	}
	if got[2][1] != 20 {
		t.Fatalf("tie row must share the sort key: %v", got)
	}
}

func TestSortUsingIndexElidesSort(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.CreateIndex("idx_b", []string{"b"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	prepared(t, s)
	if !s.IsSortUsingIndex() {
		t.Fatal("ascending index on b must satisfy ORDER BY b")
	}
	if !strings.Contains(s.PlanSQL(), "/* index sorted */") {
		t.Fatalf("plan missing index sorted comment:\n%s", s.PlanSQL())
	}
	assertRows(t, runRows(t, s), [][]int64{{10}, {20}, {30}, {40}, {50}})
}

func TestDescOrderDoesNotMatchAscIndex(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.CreateIndex("idx_b", []string{"b"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b"), SortType: storage.Descending}})
	prepared(t, s)
	if s.IsSortUsingIndex() {
		t.Fatal("DESC sort must not claim the ascending index")
	}
	assertRows(t, runRows(t, s), [][]int64{{50}, {40}, {30}, {20}, {10}})
}

func TestGroupSortedMatchesHashed(t *testing.T) {
	hashedTbl := newTestTable(t)
	sortedTbl := newTestTable(t)
	if _, err := sortedTbl.CreateIndex("idx_a", []string{"a"}, false, nil); err != nil {
		t.Fatal(err)
	}
	build := func(tbl *storage.MemTable) *Select {
		session := newTestSession(t, tbl)
		s := NewSelect(session)
		s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
		s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
		s.SetGroupBy([]expr.Expression{col("a")})
		return prepared(t, s)
	}
	hashed := build(hashedTbl)
	sorted := build(sortedTbl)
	if hashed.IsGroupSortedQuery() {
		t.Fatal("hashed variant must not be group sorted")
	}
	if !sorted.IsGroupSortedQuery() {
		t.Fatal("index on the group key must enable group-sorted execution")
	}
	if !strings.Contains(sorted.PlanSQL(), "/* group sorted */") {
		t.Fatalf("plan missing group sorted comment:\n%s", sorted.PlanSQL())
	}
	assertRows(t, sortedRows(runRows(t, hashed)), sortedRows(runRows(t, sorted)))
}

func TestGroupSortedLazyEqualsMaterialized(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.CreateIndex("idx_a", []string{"a"}, false, nil); err != nil {
		t.Fatal(err)
	}
	build := func(lazy bool) [][]int64 {
		session := newTestSession(t, tbl)
		session.SetLazyQueryExecution(lazy)
		s := NewSelect(session)
		s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
		s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
		s.SetGroupBy([]expr.Expression{col("a")})
		prepared(t, s)
		res, err := s.Query(0, nil)
		if err != nil {
			t.Fatal(err)
		}
		if lazy {
			if _, ok := res.(*lazyResult); !ok {
				t.Fatalf("expected a lazy result, got %T", res)
			}
		}
		defer res.Close()
		return drain(t, res)
	}
	assertRows(t, build(true), build(false))
}

func TestFlatLazyEqualsMaterialized(t *testing.T) {
	tbl := newTestTable(t)
	build := func(lazy bool) [][]int64 {
		session := newTestSession(t, tbl)
		session.SetLazyQueryExecution(lazy)
		s := NewSelect(session)
		s.SetExpressions([]expr.Expression{col("a"), col("b")})
		s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
		s.AddCondition(expr.NewComparison(expr.OpGreater, col("b"), expr.Int(15)))
		prepared(t, s)
		res, err := s.Query(0, nil)
		if err != nil {
			t.Fatal(err)
		}
		if lazy {
			if _, ok := res.(*lazyResult); !ok {
				t.Fatalf("expected a lazy result, got %T", res)
			}
		}
		defer res.Close()
		return drain(t, res)
	}
	assertRows(t, build(true), build(false))
}

func TestLazyResultResetRewinds(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	session.SetLazyQueryExecution(true)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	res, err := s.Query(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	first := drain(t, res)
	if err := res.Reset(); err != nil {
		t.Fatal(err)
	}
	assertRows(t, drain(t, res), first)
}

func TestLimitOffsetComposition(t *testing.T) {
	tbl := newTestTable(t)
	run := func(offset, limit int64) [][]int64 {
		session := newTestSession(t, tbl)
		s := NewSelect(session)
		s.SetExpressions([]expr.Expression{col("a"), col("b")})
		s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
		s.SetOrder([]OrderEntry{{Expr: col("b")}})
		if offset > 0 {
			s.SetOffset(expr.Int(offset))
		}
		if limit >= 0 {
			s.SetLimit(expr.Int(limit))
		}
		prepared(t, s)
		return runRows(t, s)
	}
	for _, o := range []int64{0, 1, 2, 5, 7} {
		for _, l := range []int64{0, 1, 3, 10} {
			got := run(o, l)
			wide := run(0, o+l)
			var want [][]int64
			if int(o) < len(wide) {
				want = wide[o:]
			}
			assertRows(t, got, want)
		}
	}
}

func TestFetchPercent(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	s.SetLimit(expr.Int(40))
	s.SetFetchPercent(true)
	prepared(t, s)
	// 40 percent of 5 rows rounds up to 2.
	assertRows(t, runRows(t, s), [][]int64{{10}, {20}})
}

func TestFetchPercentOutOfRange(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetLimit(expr.Int(101))
	s.SetFetchPercent(true)
	prepared(t, s)
	if _, err := s.Query(0, nil); !sql.HasCode(err, sql.CodeInvalidValue) {
		t.Fatalf("expected INVALID_VALUE, got %v", err)
	}
}

func TestFetchPercentZeroIsEmpty(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetLimit(expr.Int(0))
	s.SetFetchPercent(true)
	prepared(t, s)
	assertRows(t, runRows(t, s), nil)
}

func TestDistinctIndexScan(t *testing.T) {
	tbl := storage.NewMemTable(storage.Schema{
		TableName: "t",
		Columns: []storage.Column{
			{Name: "a", Type: storage.INTEGER, Visible: true, Selectivity: 5},
			{Name: "b", Type: storage.INTEGER, Visible: true},
		},
	})
	for _, r := range [][2]int64{{1, 10}, {1, 20}, {2, 30}, {2, 40}, {3, 50}} {
		if err := tbl.Insert(storage.Row{
			storage.NewIntegerValue(r[0]), storage.NewIntegerValue(r[1]),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tbl.CreateIndex("idx_a", []string{"a"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinct()
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if !s.IsDistinctQuery() {
		t.Fatal("low selectivity plus index must enable the distinct scan")
	}
	if !strings.Contains(s.PlanSQL(), "/* distinct */") {
		t.Fatalf("plan missing distinct comment:\n%s", s.PlanSQL())
	}
	assertRows(t, runRows(t, s), [][]int64{{1}, {2}, {3}})
}

func TestDistinctScanNotUsedForUniqueIndex(t *testing.T) {
	tbl := storage.NewMemTable(storage.Schema{
		TableName: "t",
		Columns: []storage.Column{
			{Name: "a", Type: storage.INTEGER, Visible: true, Selectivity: 5},
		},
	})
	for i := int64(1); i <= 5; i++ {
		if err := tbl.Insert(storage.Row{storage.NewIntegerValue(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tbl.CreateIndex("idx_a", []string{"a"}, true, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinct()
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if s.IsDistinctQuery() {
		t.Fatal("single-column unique index must not trigger the distinct scan")
	}
}

func TestDistinctOn(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinctOn([]expr.Expression{col("a")})
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	// First row of each a, in scan order.
	assertRows(t, runRows(t, s), [][]int64{{1, 10}, {2, 30}, {3, 50}})
}

func TestDistinctOnWithDistinctRejected(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinct()
	s.SetDistinctOn([]expr.Expression{col("a")})
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	if err := s.Init(); !sql.HasCode(err, sql.CodeFeatureNotSupported) {
		t.Fatalf("expected FEATURE_NOT_SUPPORTED, got %v", err)
	}
}

func TestWildcardExpansion(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{expr.NewWildcard("", "")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if s.ColumnCount() != 2 {
		t.Fatalf("expected 2 columns, got %d", s.ColumnCount())
	}
	assertRows(t, runRows(t, s),
		[][]int64{{1, 10}, {1, 20}, {2, 30}, {2, 40}, {3, 50}})
}

func TestQualifiedWildcardNotFound(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{expr.NewWildcard("", "missing")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	if err := s.Init(); !sql.HasCode(err, sql.CodeTableOrViewNotFound) {
		t.Fatalf("expected TABLE_OR_VIEW_NOT_FOUND, got %v", err)
	}
}

func TestOrderByPosition(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: expr.Int(2), SortType: storage.Descending}})
	prepared(t, s)
	assertRows(t, runRows(t, s),
		[][]int64{{3, 50}, {2, 40}, {2, 30}, {1, 20}, {1, 10}})
}

func TestOrderByPositionOutOfRange(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: expr.Int(3)}})
	if err := s.Init(); !sql.HasCode(err, sql.CodeInvalidValue) {
		t.Fatalf("expected INVALID_VALUE, got %v", err)
	}
}

func TestOrderByAppendsHiddenColumn(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b"), SortType: storage.Descending}})
	prepared(t, s)
	if s.ColumnCount() != 1 || s.DistinctColumnCount() != 2 {
		t.Fatalf("expected 1 visible of 2 distinct columns, got %d/%d",
			s.ColumnCount(), s.DistinctColumnCount())
	}
	assertRows(t, runRows(t, s), [][]int64{{3}, {2}, {2}, {1}, {1}})
}

func TestOrderByOutsideDistinctRejected(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetDistinct()
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	if err := s.Init(); !sql.HasCode(err, sql.CodeOrderByNotInResult) {
		t.Fatalf("expected ORDER_BY_NOT_IN_RESULT, got %v", err)
	}
}

func TestWithTiesWithoutOrderBy(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetLimit(expr.Int(2))
	s.SetWithTies(true)
	if err := s.Init(); !sql.HasCode(err, sql.CodeWithTiesWithoutOrderBy) {
		t.Fatalf("expected WITH_TIES_WITHOUT_ORDER_BY, got %v", err)
	}
}

func TestDoubleInitFails(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err == nil {
		t.Fatal("second Init must fail")
	}
}

func TestPrepareBeforeInitFails(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	if err := s.Prepare(); err == nil {
		t.Fatal("Prepare before Init must fail")
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if err := s.Prepare(); err != nil {
		t.Fatal(err)
	}
	assertRows(t, runRows(t, s), [][]int64{{1}, {1}, {2}, {2}, {3}})
}

func TestBindingInvariants(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	s.SetHaving(expr.NewComparison(expr.OpGreater, expr.CountAll(), expr.Int(0)))
	s.SetOrder([]OrderEntry{{Expr: col("b")}})
	prepared(t, s)
	n := len(s.Expressions())
	if !(s.ColumnCount() <= s.DistinctColumnCount() && s.DistinctColumnCount() <= n) {
		t.Fatalf("column count invariant violated: %d <= %d <= %d",
			s.ColumnCount(), s.DistinctColumnCount(), n)
	}
	if hi := s.HavingIndex(); hi < 0 || hi >= n {
		t.Fatalf("having index %d out of range", hi)
	}
	for _, gi := range s.GroupIndexes() {
		if gi < 0 || gi >= n {
			t.Fatalf("group index %d out of range", gi)
		}
	}
}

func TestIndexConditionPushdown(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.CreateIndex("idx_a", []string{"a"}, false, nil); err != nil {
		t.Fatal(err)
	}
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.AddCondition(expr.NewComparison(expr.OpEqual, col("a"), expr.Int(2)))
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{{30}, {40}})
	if scanned := s.TopTableFilter().ScannedRows(); scanned != 2 {
		t.Fatalf("equality seek must read 2 rows, read %d", scanned)
	}
	if !strings.Contains(s.PlanSQL(), "idx_a") {
		t.Fatalf("plan must name the chosen index:\n%s", s.PlanSQL())
	}
}

func TestForUpdateMvccLocksRows(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.AddCondition(expr.NewComparison(expr.OpEqual, col("a"), expr.Int(2)))
	s.SetForUpdate(true)
	prepared(t, s)
	if s.IsCacheable() {
		t.Fatal("FOR UPDATE results are not cacheable")
	}
	assertRows(t, runRows(t, s), [][]int64{{2}, {2}})
	if n := tbl.RowLockCount(); n != 2 {
		t.Fatalf("expected 2 row locks, got %d", n)
	}
}

func TestForUpdateMvccRejectsGroup(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	s.SetForUpdate(true)
	prepared(t, s)
	if _, err := s.Query(0, nil); !sql.HasCode(err, sql.CodeFeatureNotSupported) {
		t.Fatalf("expected FEATURE_NOT_SUPPORTED, got %v", err)
	}
}

func TestAggregateOverEmptyTableYieldsOneRow(t *testing.T) {
	tbl := storage.NewMemTable(storage.Schema{
		TableName: "e",
		Columns:   []storage.Column{{Name: "a", Type: storage.INTEGER, Visible: true}},
	})
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{expr.CountAll()})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	// A WHERE clause keeps the plan off the direct lookup, exercising the
	// hashed-group empty-input path.
	s.AddCondition(expr.NewComparison(expr.OpGreater, col("a"), expr.Int(0)))
	prepared(t, s)
	if s.IsQuickAggregateQuery() {
		t.Fatal("WHERE must disable direct lookup")
	}
	assertRows(t, runRows(t, s), [][]int64{{0}})
}

func TestGroupByAlias(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{
		expr.NewAlias(col("a"), "k", false),
		expr.Sum(col("b")),
	})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("k")})
	s.SetOrder([]OrderEntry{{Expr: expr.Int(1)}})
	prepared(t, s)
	if got := s.GroupIndexes(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("GROUP BY alias must bind to the select list, got %v", got)
	}
	assertRows(t, runRows(t, s), [][]int64{{1, 30}, {2, 70}, {3, 50}})
}

func TestHavingReferencesAlias(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{
		col("a"),
		expr.NewAlias(expr.Sum(col("b")), "total", false),
	})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	s.SetHaving(expr.NewComparison(expr.OpGreater, col("total"), expr.Int(40)))
	s.SetOrder([]OrderEntry{{Expr: col("a")}})
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{{2, 70}, {3, 50}})
}

func TestGlobalConditionRouting(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), expr.Sum(col("b"))})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetGroupBy([]expr.Expression{col("a")})
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if !s.AllowGlobalConditions() {
		t.Fatal("no offset or limit, global conditions must be allowed")
	}

	// On the group key: joins the WHERE.
	keyParam := expr.NewParameter(0)
	if err := s.AddGlobalCondition(keyParam, 0, expr.OpEqual); err != nil {
		t.Fatal(err)
	}
	if s.Condition() == nil {
		t.Fatal("group-key condition must join the WHERE")
	}
	havingBefore := s.HavingIndex()

	// On the aggregate column: joins the HAVING.
	aggParam := expr.NewParameter(1)
	if err := s.AddGlobalCondition(aggParam, 1, expr.OpGreater); err != nil {
		t.Fatal(err)
	}
	if s.HavingIndex() < 0 {
		t.Fatal("aggregate-column condition must register a HAVING")
	}
	if havingBefore >= 0 && s.HavingIndex() != havingBefore {
		t.Fatal("repeated injection must reuse the HAVING slot")
	}

	// A second aggregate-column injection must AND onto the same slot.
	slot := s.HavingIndex()
	if err := s.AddGlobalCondition(expr.NewParameter(2), 1, expr.OpLess); err != nil {
		t.Fatal(err)
	}
	if s.HavingIndex() != slot {
		t.Fatal("re-entry must not re-register the HAVING")
	}
}

func TestGlobalConditionsDisallowedWithOffset(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetOffset(expr.Int(1))
	prepared(t, s)
	if s.AllowGlobalConditions() {
		t.Fatal("OFFSET must disallow global conditions")
	}
}

func TestQueryMeta(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	res, err := s.QueryMeta()
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if res.ColumnCount() != 2 {
		t.Fatalf("expected 2 columns, got %d", res.ColumnCount())
	}
	if res.Next() {
		t.Fatal("metadata result must be empty")
	}
}

func TestSampleSizeBoundsScan(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	s.SetSampleSize(expr.Int(3))
	prepared(t, s)
	if !strings.Contains(s.PlanSQL(), "SAMPLE_SIZE 3") {
		t.Fatalf("plan missing SAMPLE_SIZE:\n%s", s.PlanSQL())
	}
	assertRows(t, runRows(t, s), [][]int64{{10}, {20}, {30}})
}

func TestCancellationStopsScan(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	session.Cancel()
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	if _, err := s.Query(0, nil); !sql.HasCode(err, sql.CodeStatementCanceled) {
		t.Fatalf("expected STATEMENT_CANCELED, got %v", err)
	}
}

func TestTargetDraining(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a"), col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	target := &captureTarget{}
	res, err := s.Query(0, target)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatal("target execution must not return a result")
	}
	if target.RowCount() != 5 {
		t.Fatalf("expected 5 rows in target, got %d", target.RowCount())
	}
}

func TestMaxRowsCapsResult(t *testing.T) {
	tbl := newTestTable(t)
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("b")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	res, err := s.Query(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if got := drain(t, res); len(got) != 2 {
		t.Fatalf("maxRows 2 must cap the result, got %v", got)
	}
}

func TestBeforeSelectTriggersFire(t *testing.T) {
	tbl := newTestTable(t)
	fired := 0
	tbl.AddSelectTrigger(func() { fired++ })
	session := newTestSession(t, tbl)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{col("a")})
	s.AddTableFilter(NewTableFilter(session, tbl, ""), true)
	prepared(t, s)
	runRows(t, s)
	if fired != 1 {
		t.Fatalf("expected 1 trigger firing, got %d", fired)
	}
}

type captureTarget struct {
	rows    []storage.Row
	limited bool
}

func (c *captureTarget) AddRow(row storage.Row) error {
	c.rows = append(c.rows, row.Clone())
	return nil
}

func (c *captureTarget) RowCount() int64    { return int64(len(c.rows)) }
func (c *captureTarget) LimitsWereApplied() { c.limited = true }
