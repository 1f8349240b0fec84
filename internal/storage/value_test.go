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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullSemantics(t *testing.T) {
	assert.True(t, Null.IsNull())
	assert.True(t, Null.Equals(Null), "null-safe equality treats NULL = NULL")
	assert.False(t, NewIntegerValue(1).Equals(Null))
	assert.False(t, Null.Equals(NewIntegerValue(1)))
}

func TestNumericCompare(t *testing.T) {
	cases := []struct {
		a, b ColumnValue
		want int
	}{
		{NewIntegerValue(1), NewIntegerValue(2), -1},
		{NewIntegerValue(2), NewIntegerValue(2), 0},
		{NewIntegerValue(3), NewIntegerValue(2), 1},
		{NewIntegerValue(1), NewDoubleValue(1.5), -1},
		{NewDoubleValue(2.5), NewIntegerValue(2), 1},
		{NewIntegerValue(1), NewNumericValue(decimal.RequireFromString("1.00")), 0},
		{NewNumericValue(decimal.RequireFromString("0.1")), NewDoubleValue(0.2), -1},
	}
	for _, c := range cases {
		got, err := c.a.Compare(c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s vs %s", c.a.SQL(), c.b.SQL())
	}
}

func TestCompareIncompatibleTypes(t *testing.T) {
	_, err := NewTextValue("x").Compare(NewIntegerValue(1))
	assert.Error(t, err)
	_, err = NewIntegerValue(1).Compare(NewTextValue("x"))
	assert.Error(t, err)
	_, err = NewBooleanValue(true).Compare(NewIntegerValue(1))
	assert.Error(t, err)
}

func TestTextAndBytes(t *testing.T) {
	c, err := NewTextValue("abc").Compare(NewTextValue("abd"))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
	assert.Equal(t, "'it''s'", NewTextValue("it's").SQL())

	c, err = NewBytesValue([]byte{1, 2}).Compare(NewBytesValue([]byte{1, 3}))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestRowKeyDistinguishesValues(t *testing.T) {
	a := Row{NewTextValue("a|b"), NewTextValue("c")}
	b := Row{NewTextValue("a"), NewTextValue("b|c")}
	assert.NotEqual(t, a.Key(), b.Key(), "separator inside a value must not collide")

	withNull := Row{Null, NewIntegerValue(1)}
	without := Row{NewIntegerValue(1), Null}
	assert.NotEqual(t, withNull.Key(), without.Key())
	assert.Equal(t, withNull.Key(), withNull.Clone().Key())
}

func TestRowEqual(t *testing.T) {
	a := Row{NewIntegerValue(1), Null}
	b := Row{NewIntegerValue(1), Null}
	c := Row{NewIntegerValue(1), NewIntegerValue(2)}
	assert.True(t, a.Equal(b), "NULLs compare equal inside rows")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Row{NewIntegerValue(1)}))
}
