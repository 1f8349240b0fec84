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
	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// preparePlan runs the join planning step: the plan root is chosen from the
// top filters, evaluability is propagated through the join tree and the
// WHERE, universally evaluatable inner-join conditions are lifted into the
// WHERE, and the plan cost is estimated. The declared join order is kept;
// per-filter access paths were chosen by createIndexConditions.
func (s *Select) preparePlan(ec *expr.Context) error {
	if len(s.topFilters) == 0 {
		return sql.Internal("SELECT has no table filter")
	}
	s.topTableFilter = s.topFilters[0]

	for _, f := range s.filters {
		if err := f.Prepare(ec); err != nil {
			return err
		}
	}

	// Every filter of the chosen plan can deliver rows, so everything is
	// evaluatable from here on.
	for _, f := range s.filters {
		s.SetEvaluatable(f, true)
		for _, other := range s.filters {
			if jc := other.JoinCondition(); jc != nil {
				jc.SetEvaluatable(f, true)
			}
		}
	}

	// Inner-join conditions that could run anywhere move into the WHERE.
	// Index conditions were created before this step, so a lifted condition
	// is checked per combined row and does not become a seek bound.
	for _, f := range s.filters {
		if f.IsJoinOuter() || f.IsJoinOuterIndirect() {
			continue
		}
		jc := f.JoinCondition()
		if jc == nil {
			continue
		}
		opt, err := jc.Optimize(ec)
		if err != nil {
			return err
		}
		if opt.IsEverything(expr.Visitor{Type: expr.VisitEvaluatable}) {
			f.LiftJoinCondition()
			s.condition = expr.And(s.condition, opt)
		}
	}

	s.cost = chainCost(s.topTableFilter)
	return nil
}

// chainCost estimates the nested-loop cost of a join chain: the product of
// the per-filter scan estimates.
func chainCost(f *TableFilter) float64 {
	cost := 1.0
	for ; f != nil; f = f.Join() {
		cost *= filterCost(f)
	}
	return cost
}

func filterCost(f *TableFilter) float64 {
	rows := float64(f.Table().RowCount()) + 1
	if f.scanFrom != nil && f.scanTo != nil {
		// Equality seek: scale by the leading column's selectivity.
		sel := storage.SelectivityDefault
		if cols := f.Index().Columns(); len(cols) > 0 {
			sel = cols[0].Selectivity
		}
		cost := rows * float64(sel) / 100
		if cost < 1 {
			cost = 1
		}
		return cost
	}
	if f.scanFrom != nil || f.scanTo != nil {
		return rows/2 + 1
	}
	return rows
}

// createIndexConditions promotes equality and range predicates of the WHERE
// into index seek bounds on the filter, and records IN comparisons so the
// sort elision knows the seek may reorder keys.
func (s *Select) createIndexConditions(f *TableFilter) {
	type candidate struct {
		col *storage.Column
		op  expr.CompareOp
		val storage.ColumnValue
	}
	var cands []candidate
	for _, conj := range conjuncts(s.condition) {
		switch c := conj.(type) {
		case *expr.Comparison:
			col, val, op, ok := normalizeComparison(f, c)
			if ok {
				cands = append(cands, candidate{col: col, op: op, val: val})
			}
		case *expr.InList:
			if fc, ok := c.Left().NonAlias().(*expr.Column); ok &&
				fc.Col() != nil && fc.Resolver() == expr.ColumnResolver(f) {
				f.SetInComparisons()
			}
		}
	}
	if len(cands) == 0 {
		return
	}
	// Prefer an index whose leading column has an equality, then any range.
	var best storage.Index
	var bestCand candidate
	bestEq := false
	for _, idx := range f.Table().Indexes() {
		it := idx.Type()
		if it.Scan || it.Hash {
			continue
		}
		cols := idx.Columns()
		if len(cols) == 0 {
			continue
		}
		for _, cand := range cands {
			if cand.col != cols[0] {
				continue
			}
			eq := cand.op == expr.OpEqual || cand.op == expr.OpEqualNullSafe
			if best == nil || (eq && !bestEq) {
				best, bestCand, bestEq = idx, cand, eq
			}
		}
	}
	if best == nil {
		return
	}
	width := len(f.Table().Columns())
	bound := func() storage.Row { return make(storage.Row, width) }
	var from, to storage.Row
	switch bestCand.op {
	case expr.OpEqual, expr.OpEqualNullSafe:
		from, to = bound(), bound()
		from[bestCand.col.ID] = bestCand.val
		to[bestCand.col.ID] = bestCand.val
	case expr.OpGreater, expr.OpGreaterEqual:
		from = bound()
		from[bestCand.col.ID] = bestCand.val
	case expr.OpLess, expr.OpLessEqual:
		to = bound()
		to[bestCand.col.ID] = bestCand.val
	default:
		return
	}
	// Bounds are inclusive; the WHERE still applies as a residual check, so
	// strict operators only over-read by the boundary values.
	f.SetIndex(best)
	f.SetScanBounds(from, to)
}

// normalizeComparison extracts "column op constant" with the column on this
// filter, flipping the operator when the constant is on the left.
func normalizeComparison(f *TableFilter, c *expr.Comparison) (*storage.Column, storage.ColumnValue, expr.CompareOp, bool) {
	left, right, op := c.Left().NonAlias(), c.Right().NonAlias(), c.Op()
	if col, ok := left.(*expr.Column); ok && right.IsConstant() {
		if col.Col() != nil && col.Resolver() == expr.ColumnResolver(f) {
			v, err := right.Value(nil)
			if err == nil {
				return col.Col(), v, op, true
			}
		}
		return nil, nil, 0, false
	}
	if col, ok := right.(*expr.Column); ok && left.IsConstant() {
		if col.Col() != nil && col.Resolver() == expr.ColumnResolver(f) {
			v, err := left.Value(nil)
			if err == nil {
				return col.Col(), v, flipOp(op), true
			}
		}
	}
	return nil, nil, 0, false
}

func flipOp(op expr.CompareOp) expr.CompareOp {
	switch op {
	case expr.OpLess:
		return expr.OpGreater
	case expr.OpLessEqual:
		return expr.OpGreaterEqual
	case expr.OpGreater:
		return expr.OpLess
	case expr.OpGreaterEqual:
		return expr.OpLessEqual
	default:
		return op
	}
}

// conjuncts splits a predicate on AND.
func conjuncts(e expr.Expression) []expr.Expression {
	if e == nil {
		return nil
	}
	if a, ok := e.(*expr.AndOr); ok && a.Op() == expr.OpAnd {
		return append(conjuncts(a.Left()), conjuncts(a.Right())...)
	}
	return []expr.Expression{e}
}
