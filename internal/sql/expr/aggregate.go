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
package expr

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/storage"
)

// AggregateKind identifies an aggregate function.
type AggregateKind int

const (
	AggCountAll AggregateKind = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (k AggregateKind) String() string {
	switch k {
	case AggCountAll, AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return "?"
	}
}

// Aggregate is an aggregate function over the rows of the current group. Its
// state lives in the enclosing statement's group-state store, addressed
// through the GroupState of the evaluation context; the expression itself
// holds no per-execution data and can be shared across executions.
type Aggregate struct {
	kind     AggregateKind
	arg      Expression // nil for COUNT(*)
	distinct bool
}

func NewAggregate(kind AggregateKind, arg Expression, distinct bool) *Aggregate {
	return &Aggregate{kind: kind, arg: arg, distinct: distinct}
}

func CountAll() *Aggregate                 { return NewAggregate(AggCountAll, nil, false) }
func Count(arg Expression) *Aggregate      { return NewAggregate(AggCount, arg, false) }
func Sum(arg Expression) *Aggregate        { return NewAggregate(AggSum, arg, false) }
func Avg(arg Expression) *Aggregate        { return NewAggregate(AggAvg, arg, false) }
func Min(arg Expression) *Aggregate        { return NewAggregate(AggMin, arg, false) }
func Max(arg Expression) *Aggregate        { return NewAggregate(AggMax, arg, false) }

func (a *Aggregate) Kind() AggregateKind { return a.kind }

// aggState is the per-group accumulator, stored in the group-state vector.
type aggState struct {
	lastRowID int

	count    int64
	sum      decimal.Decimal
	sumFloat float64
	anyFloat bool
	anyDec   bool
	extreme  storage.ColumnValue
	seen     map[string]bool
}

func (a *Aggregate) state(ec *Context) *aggState {
	if v := ec.Group.GroupData(a); v != nil {
		return v.(*aggState)
	}
	st := &aggState{lastRowID: -1}
	if a.distinct {
		st.seen = make(map[string]bool)
	}
	ec.Group.SetGroupData(a, st)
	return st
}

func (a *Aggregate) UpdateAggregate(ec *Context) error {
	if ec.Group == nil || !ec.Group.InGroup() {
		return sql.Internal("aggregate update outside a group")
	}
	st := a.state(ec)
	rowID := ec.Group.GroupRowID()
	if st.lastRowID == rowID {
		// The same expression can appear more than once in the
		// projection list; fold each input row only once.
		return nil
	}
	st.lastRowID = rowID

	if a.kind == AggCountAll {
		st.count++
		return nil
	}
	v, err := a.arg.Value(ec)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if a.distinct {
		key := storage.Row{v}.Key()
		if st.seen[key] {
			return nil
		}
		st.seen[key] = true
	}
	switch a.kind {
	case AggCount:
		st.count++
	case AggSum, AggAvg:
		st.count++
		switch v.Type() {
		case storage.DOUBLE:
			st.anyFloat = true
			f, _ := v.AsFloat64()
			st.sumFloat += f
		case storage.NUMERIC:
			st.anyDec = true
			d, _ := v.AsDecimal()
			st.sum = st.sum.Add(d)
		default:
			d, ok := v.AsDecimal()
			if !ok {
				return sql.InvalidValue(a.kind.String()+" argument", v.SQL())
			}
			st.sum = st.sum.Add(d)
		}
	case AggMin:
		if st.extreme == nil {
			st.extreme = v
		} else if c, err := v.Compare(st.extreme); err == nil && c < 0 {
			st.extreme = v
		}
	case AggMax:
		if st.extreme == nil {
			st.extreme = v
		} else if c, err := v.Compare(st.extreme); err == nil && c > 0 {
			st.extreme = v
		}
	}
	return nil
}

func (a *Aggregate) Value(ec *Context) (storage.ColumnValue, error) {
	if ec.Group == nil || !ec.Group.InGroup() {
		return nil, sql.Internal("aggregate evaluated outside a group")
	}
	if ec.Group.IsQuickAggregate() {
		return a.quickValue(ec)
	}
	var st *aggState
	if v := ec.Group.GroupData(a); v != nil {
		st = v.(*aggState)
	} else {
		st = &aggState{}
	}
	switch a.kind {
	case AggCountAll, AggCount:
		return storage.NewIntegerValue(st.count), nil
	case AggSum:
		if st.count == 0 {
			return storage.Null, nil
		}
		return sumValue(st), nil
	case AggAvg:
		if st.count == 0 {
			return storage.Null, nil
		}
		if st.anyFloat {
			f := st.sumFloat
			d, _ := st.sum.Float64()
			return storage.NewDoubleValue((f + d) / float64(st.count)), nil
		}
		return storage.NewNumericValue(
			st.sum.Div(decimal.NewFromInt(st.count))), nil
	case AggMin, AggMax:
		if st.extreme == nil {
			return storage.Null, nil
		}
		return st.extreme, nil
	}
	return nil, sql.Internal("unknown aggregate kind %d", a.kind)
}

func sumValue(st *aggState) storage.ColumnValue {
	if st.anyFloat {
		d, _ := st.sum.Float64()
		return storage.NewDoubleValue(st.sumFloat + d)
	}
	if st.anyDec {
		return storage.NewNumericValue(st.sum)
	}
	return storage.NewIntegerValue(st.sum.IntPart())
}

// quickValue answers the aggregate from table and index metadata, without
// any rows having been scanned.
func (a *Aggregate) quickValue(ec *Context) (storage.ColumnValue, error) {
	switch a.kind {
	case AggCountAll:
		t := ec.Group.QuickAggregateTable()
		if t == nil {
			return nil, sql.Internal("no table for direct-lookup COUNT(*)")
		}
		return storage.NewIntegerValue(t.RowCount()), nil
	case AggMin, AggMax:
		col, idx := a.quickIndex()
		if idx == nil {
			return nil, sql.Internal("no index for direct-lookup %s", a.kind)
		}
		var row storage.Row
		var ok bool
		if a.kind == AggMin {
			row, ok = idx.First()
		} else {
			row, ok = idx.Last()
		}
		if !ok {
			return storage.Null, nil
		}
		return row[col.ID], nil
	}
	return nil, sql.Internal("aggregate %s is not answerable by direct lookup", a.kind)
}

// quickIndex returns the argument column and an ascending ordered index
// leading with it, or nils.
func (a *Aggregate) quickIndex() (*storage.Column, storage.Index) {
	c, ok := a.arg.NonAlias().(*Column)
	if !ok || c.Col() == nil || c.Resolver() == nil {
		return nil, nil
	}
	t := c.Resolver().Table()
	if t == nil {
		return nil, nil
	}
	idx := t.IndexForColumn(c.Col(), false)
	if idx == nil {
		return nil, nil
	}
	if ics := idx.IndexColumns(); len(ics) == 0 || ics[0].SortType&storage.Descending != 0 {
		return nil, nil
	}
	return c.Col(), idx
}

func (a *Aggregate) Type() storage.DataType {
	switch a.kind {
	case AggCountAll, AggCount:
		return storage.INTEGER
	case AggAvg:
		return storage.NUMERIC
	case AggMin, AggMax, AggSum:
		if a.arg != nil {
			return a.arg.Type()
		}
	}
	return storage.NULL
}

func (a *Aggregate) Optimize(ec *Context) (Expression, error) {
	if a.arg != nil {
		arg, err := a.arg.Optimize(ec)
		if err != nil {
			return nil, err
		}
		a.arg = arg
	}
	return a, nil
}

func (a *Aggregate) MapColumns(resolver ColumnResolver, level int) error {
	if a.arg == nil {
		return nil
	}
	return a.arg.MapColumns(resolver, level)
}

func (a *Aggregate) SetEvaluatable(resolver ColumnResolver, b bool) {
	if a.arg != nil {
		a.arg.SetEvaluatable(resolver, b)
	}
}

func (a *Aggregate) IsWildcard() bool     { return false }
func (a *Aggregate) NonAlias() Expression { return a }

func (a *Aggregate) SQL() string {
	if a.kind == AggCountAll {
		return "COUNT(*)"
	}
	inner := a.arg.SQL()
	if a.distinct {
		inner = "DISTINCT " + inner
	}
	return fmt.Sprintf("%s(%s)", a.kind, inner)
}

func (a *Aggregate) AliasName() string { return a.SQL() }
func (a *Aggregate) IsConstant() bool  { return false }

func (a *Aggregate) IsEverything(v Visitor) bool {
	switch v.Type {
	case VisitOptimizableAggregate:
		switch a.kind {
		case AggCountAll:
			return !a.distinct && v.Table != nil
		case AggMin, AggMax:
			col, idx := a.quickIndex()
			return col != nil && idx != nil && idx.Table() == v.Table
		}
		return false
	case VisitQueryComparable, VisitNoAggregate:
		return false
	}
	if a.arg != nil {
		return a.arg.IsEverything(v)
	}
	return true
}
