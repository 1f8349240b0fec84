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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opaldb/opal/internal/storage"
)

func value(t *testing.T, e Expression) storage.ColumnValue {
	t.Helper()
	v, err := e.Value(&Context{})
	require.NoError(t, err)
	return v
}

func TestComparisonThreeValuedLogic(t *testing.T) {
	v := value(t, NewComparison(OpLess, Int(1), Int(2)))
	b, _ := v.AsBoolean()
	assert.True(t, b)

	v = value(t, NewComparison(OpEqual, Int(1), NullLiteral()))
	assert.True(t, v.IsNull(), "NULL operand yields NULL")

	v = value(t, NewComparison(OpEqualNullSafe, NullLiteral(), NullLiteral()))
	b, _ = v.AsBoolean()
	assert.True(t, b, "null-safe equality treats NULL = NULL")

	v = value(t, NewComparison(OpEqualNullSafe, Int(1), NullLiteral()))
	b, _ = v.AsBoolean()
	assert.False(t, b)
}

func TestAndOrNullHandling(t *testing.T) {
	null := NullLiteral()
	cases := []struct {
		e        Expression
		wantNull bool
		want     bool
	}{
		{NewAnd(null, Bool(false)), false, false},
		{NewAnd(null, Bool(true)), true, false},
		{NewOr(null, Bool(true)), false, true},
		{NewOr(null, Bool(false)), true, false},
		{NewAnd(Bool(true), Bool(true)), false, true},
		{NewOr(Bool(false), Bool(false)), false, false},
	}
	for i, c := range cases {
		v := value(t, c.e)
		if c.wantNull {
			assert.True(t, v.IsNull(), "case %d", i)
			continue
		}
		b, _ := v.AsBoolean()
		assert.Equal(t, c.want, b, "case %d", i)
	}
}

func TestAndCombinesOptionalPredicates(t *testing.T) {
	assert.Nil(t, And(nil, nil))
	p := Bool(true)
	assert.Equal(t, Expression(p), And(nil, p))
	assert.Equal(t, Expression(p), And(p, nil))
	both := And(p, Bool(false))
	_, ok := both.(*AndOr)
	assert.True(t, ok)
}

func TestInList(t *testing.T) {
	in := NewInList(Int(2), []Expression{Int(1), Int(2), Int(3)})
	b, _ := value(t, in).AsBoolean()
	assert.True(t, b)

	in = NewInList(Int(9), []Expression{Int(1), NullLiteral()})
	assert.True(t, value(t, in).IsNull(), "no match with NULL in list is NULL")

	in = NewInList(Int(9), []Expression{Int(1), Int(2)})
	b, _ = value(t, in).AsBoolean()
	assert.False(t, b)
}

func TestConstantFolding(t *testing.T) {
	ec := &Context{}
	e, err := NewComparison(OpGreater, Int(2), Int(1)).Optimize(ec)
	require.NoError(t, err)
	lit, ok := e.(*Literal)
	require.True(t, ok, "constant comparison folds to a literal")
	b, _ := value(t, lit).AsBoolean()
	assert.True(t, b)
}

func TestBooleanValueTreatsNullAsFalse(t *testing.T) {
	b, err := BooleanValue(&Context{}, NullLiteral())
	require.NoError(t, err)
	assert.False(t, b)
}

func TestAliasUnwrapsAndRenames(t *testing.T) {
	a := NewAlias(Int(5), "five", false)
	assert.Equal(t, "five", a.AliasName())
	assert.Equal(t, "5 AS five", a.SQL())
	assert.Equal(t, Expression(Int(5)).SQL(), a.NonAlias().SQL())

	art := NewAlias(Int(5), "c1", true)
	assert.Equal(t, "5", art.SQL(), "artificial aliases stay out of plan SQL")
}

func TestParameterBinding(t *testing.T) {
	p := NewParameter(0)
	_, err := p.Value(&Context{})
	assert.Error(t, err, "unset parameter")
	p.SetValue(storage.NewIntegerValue(42))
	v := value(t, p)
	n, _ := v.AsInt64()
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "?1", p.SQL())
}

// groupHarness is a minimal GroupState for exercising aggregates without
// the executor.
type groupHarness struct {
	data  map[Expression]interface{}
	rowID int
}

func newGroupHarness() *groupHarness {
	return &groupHarness{data: make(map[Expression]interface{})}
}

func (g *groupHarness) InGroup() bool                            { return true }
func (g *groupHarness) IsQuickAggregate() bool                   { return false }
func (g *groupHarness) QuickAggregateTable() storage.Table       { return nil }
func (g *groupHarness) GroupData(e Expression) interface{}       { return g.data[e] }
func (g *groupHarness) SetGroupData(e Expression, v interface{}) { g.data[e] = v }
func (g *groupHarness) GroupRowID() int                          { return g.rowID }

func TestAggregateAccumulation(t *testing.T) {
	g := newGroupHarness()
	ec := &Context{Group: g}

	count := CountAll()
	// The argument is a parameter rebound per row, standing in for a column.
	arg := NewParameter(0)
	sumAgg := Sum(arg)
	avgAgg := Avg(arg)
	maxAgg := Max(arg)
	minAgg := Min(arg)
	for _, v := range []int64{10, 20, 30} {
		g.rowID++
		arg.SetValue(storage.NewIntegerValue(v))
		require.NoError(t, count.UpdateAggregate(ec))
		require.NoError(t, sumAgg.UpdateAggregate(ec))
		require.NoError(t, avgAgg.UpdateAggregate(ec))
		require.NoError(t, maxAgg.UpdateAggregate(ec))
		require.NoError(t, minAgg.UpdateAggregate(ec))
	}

	n, _ := value2(t, ec, count).AsInt64()
	assert.Equal(t, int64(3), n)
	n, _ = value2(t, ec, sumAgg).AsInt64()
	assert.Equal(t, int64(60), n)
	f, _ := value2(t, ec, avgAgg).AsFloat64()
	assert.InDelta(t, 20.0, f, 1e-9)
	n, _ = value2(t, ec, maxAgg).AsInt64()
	assert.Equal(t, int64(30), n)
	n, _ = value2(t, ec, minAgg).AsInt64()
	assert.Equal(t, int64(10), n)
}

func TestAggregateSkipsSameRowTwice(t *testing.T) {
	g := newGroupHarness()
	ec := &Context{Group: g}
	count := CountAll()
	g.rowID = 1
	require.NoError(t, count.UpdateAggregate(ec))
	require.NoError(t, count.UpdateAggregate(ec), "second update of the same row")
	n, _ := value2(t, ec, count).AsInt64()
	assert.Equal(t, int64(1), n)
}

func TestAggregateNullHandling(t *testing.T) {
	g := newGroupHarness()
	ec := &Context{Group: g}
	arg := NewParameter(0)
	sumAgg := Sum(arg)
	cnt := Count(arg)
	for i, v := range []storage.ColumnValue{
		storage.NewIntegerValue(5), storage.Null, storage.NewIntegerValue(7),
	} {
		g.rowID = i + 1
		arg.SetValue(v)
		require.NoError(t, sumAgg.UpdateAggregate(ec))
		require.NoError(t, cnt.UpdateAggregate(ec))
	}
	n, _ := value2(t, ec, sumAgg).AsInt64()
	assert.Equal(t, int64(12), n)
	n, _ = value2(t, ec, cnt).AsInt64()
	assert.Equal(t, int64(2), n, "COUNT(expr) skips NULL")
}

func TestEmptyAggregates(t *testing.T) {
	g := newGroupHarness()
	ec := &Context{Group: g}
	n, _ := value2(t, ec, CountAll()).AsInt64()
	assert.Equal(t, int64(0), n)
	assert.True(t, value2(t, ec, Sum(Int(1))).IsNull(), "SUM over no rows is NULL")
	assert.True(t, value2(t, ec, Min(Int(1))).IsNull())
}

func value2(t *testing.T, ec *Context, e Expression) storage.ColumnValue {
	t.Helper()
	v, err := e.Value(ec)
	require.NoError(t, err)
	return v
}
