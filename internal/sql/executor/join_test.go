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

func newJoinTables(t *testing.T) (*storage.MemTable, *storage.MemTable) {
	t.Helper()
	left := newTestTable(t)
	right := storage.NewMemTable(storage.Schema{
		TableName: "u",
		Columns: []storage.Column{
			{Name: "a", Type: storage.INTEGER, Visible: true},
			{Name: "c", Type: storage.INTEGER, Visible: true},
		},
	})
	for _, r := range [][2]int64{{1, 100}, {2, 200}} {
		err := right.Insert(storage.Row{
			storage.NewIntegerValue(r[0]), storage.NewIntegerValue(r[1]),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return left, right
}

func joinSelect(t *testing.T, outer bool) (*Select, *storage.MemTable) {
	t.Helper()
	left, right := newJoinTables(t)
	session := newTestSession(t, left, right)
	f1 := NewTableFilter(session, left, "")
	f2 := NewTableFilter(session, right, "")
	on := expr.NewComparison(expr.OpEqual,
		expr.NewColumn("", "t", "a"), expr.NewColumn("", "u", "a"))
	f1.AddJoin(f2, outer, on)
	s := NewSelect(session)
	s.SetExpressions([]expr.Expression{
		expr.NewColumn("", "t", "a"),
		expr.NewColumn("", "t", "b"),
		expr.NewColumn("", "u", "c"),
	})
	s.AddTableFilter(f1, true)
	s.AddTableFilter(f2, false)
	return s, left
}

func TestInnerJoin(t *testing.T) {
	s, _ := joinSelect(t, false)
	prepared(t, s)
	assertRows(t, runRows(t, s), [][]int64{
		{1, 10, 100}, {1, 20, 100}, {2, 30, 200}, {2, 40, 200},
	})
}

func TestInnerJoinConditionLiftedToWhere(t *testing.T) {
	s, _ := joinSelect(t, false)
	prepared(t, s)
	if s.Condition() == nil {
		t.Fatal("evaluatable inner-join condition must be lifted into the WHERE")
	}
	if s.TopTableFilter().Join().JoinCondition() != nil {
		t.Fatal("lifted condition must leave the join")
	}
}

func TestLeftOuterJoinEmitsNullRow(t *testing.T) {
	s, _ := joinSelect(t, true)
	prepared(t, s)
	res, err := s.Query(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	var rows []storage.Row
	for res.Next() {
		rows = append(rows, res.Row().Clone())
	}
	if err := res.Err(); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 4 matches plus 1 null-extended row, got %d", len(rows))
	}
	last := rows[4]
	a, _ := last[0].AsInt64()
	if a != 3 || !last[2].IsNull() {
		t.Fatalf("unmatched left row must carry NULLs on the right: %v", last)
	}
}

func TestForUpdateMvccRejectsJoin(t *testing.T) {
	s, _ := joinSelect(t, false)
	s.SetForUpdate(true)
	prepared(t, s)
	if _, err := s.Query(0, nil); !sql.HasCode(err, sql.CodeFeatureNotSupported) {
		t.Fatalf("expected FEATURE_NOT_SUPPORTED, got %v", err)
	}
}

func TestJoinPlanSQL(t *testing.T) {
	s, _ := joinSelect(t, true)
	prepared(t, s)
	plan := s.PlanSQL()
	for _, want := range []string{"LEFT OUTER JOIN", "PUBLIC.u", " ON "} {
		if !strings.Contains(plan, want) {
			t.Fatalf("plan missing %q:\n%s", want, plan)
		}
	}
}
