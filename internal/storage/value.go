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
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataType represents the type of a column value
type DataType int

const (
	NULL DataType = iota
	INTEGER
	DOUBLE
	NUMERIC
	TEXT
	BOOLEAN
	TIMESTAMP
	BYTES
)

func (dt DataType) String() string {
	switch dt {
	case NULL:
		return "NULL"
	case INTEGER:
		return "INTEGER"
	case DOUBLE:
		return "DOUBLE"
	case NUMERIC:
		return "NUMERIC"
	case TEXT:
		return "TEXT"
	case BOOLEAN:
		return "BOOLEAN"
	case TIMESTAMP:
		return "TIMESTAMP"
	case BYTES:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// ColumnValue represents a single SQL value.
//
// Comparison follows SQL semantics at the expression layer: NULL is neither
// less than, greater than, nor equal to anything under normal comparison.
// Compare below provides the total order used by sorting and index
// maintenance, where NULL sorts before every non-NULL value unless the sort
// order says otherwise.
type ColumnValue interface {
	Type() DataType
	IsNull() bool
	AsInt64() (int64, bool)
	AsFloat64() (float64, bool)
	AsBoolean() (bool, bool)
	AsString() (string, bool)
	AsTimestamp() (time.Time, bool)
	AsDecimal() (decimal.Decimal, bool)
	AsBytes() ([]byte, bool)
	AsInterface() interface{}

	// Equals reports null-safe equality: NULL equals NULL.
	Equals(other ColumnValue) bool

	// Compare returns -1, 0 or 1, or an error if the values are not
	// comparable (e.g. TEXT against INTEGER).
	Compare(other ColumnValue) (int, error)

	// SQL returns the literal as SQL text.
	SQL() string
}

// Null is the singleton NULL value.
var Null ColumnValue = nullValue{}

type nullValue struct{}

func (nullValue) Type() DataType                      { return NULL }
func (nullValue) IsNull() bool                        { return true }
func (nullValue) AsInt64() (int64, bool)              { return 0, false }
func (nullValue) AsFloat64() (float64, bool)          { return 0, false }
func (nullValue) AsBoolean() (bool, bool)             { return false, false }
func (nullValue) AsString() (string, bool)            { return "", false }
func (nullValue) AsTimestamp() (time.Time, bool)      { return time.Time{}, false }
func (nullValue) AsDecimal() (decimal.Decimal, bool)  { return decimal.Decimal{}, false }
func (nullValue) AsBytes() ([]byte, bool)             { return nil, false }
func (nullValue) AsInterface() interface{}            { return nil }
func (nullValue) Equals(other ColumnValue) bool       { return other != nil && other.IsNull() }
func (nullValue) Compare(other ColumnValue) (int, error) {
	if other.IsNull() {
		return 0, nil
	}
	return -1, nil
}
func (nullValue) SQL() string { return "NULL" }

// IntegerValue is a 64-bit signed integer value.
type IntegerValue struct {
	v int64
}

func NewIntegerValue(v int64) IntegerValue { return IntegerValue{v: v} }

func (i IntegerValue) Type() DataType                { return INTEGER }
func (i IntegerValue) IsNull() bool                  { return false }
func (i IntegerValue) AsInt64() (int64, bool)        { return i.v, true }
func (i IntegerValue) AsFloat64() (float64, bool)    { return float64(i.v), true }
func (i IntegerValue) AsBoolean() (bool, bool)       { return i.v != 0, true }
func (i IntegerValue) AsString() (string, bool)      { return fmt.Sprintf("%d", i.v), true }
func (i IntegerValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (i IntegerValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.NewFromInt(i.v), true
}
func (i IntegerValue) AsBytes() ([]byte, bool)  { return nil, false }
func (i IntegerValue) AsInterface() interface{} { return i.v }
func (i IntegerValue) Equals(other ColumnValue) bool {
	c, err := i.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (i IntegerValue) Compare(other ColumnValue) (int, error) {
	return compareNumeric(i, other)
}
func (i IntegerValue) SQL() string { return fmt.Sprintf("%d", i.v) }

// DoubleValue is a 64-bit floating point value.
type DoubleValue struct {
	v float64
}

func NewDoubleValue(v float64) DoubleValue { return DoubleValue{v: v} }

func (d DoubleValue) Type() DataType             { return DOUBLE }
func (d DoubleValue) IsNull() bool               { return false }
func (d DoubleValue) AsInt64() (int64, bool)     { return int64(d.v), true }
func (d DoubleValue) AsFloat64() (float64, bool) { return d.v, true }
func (d DoubleValue) AsBoolean() (bool, bool)    { return d.v != 0, true }
func (d DoubleValue) AsString() (string, bool)   { return fmt.Sprintf("%g", d.v), true }
func (d DoubleValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (d DoubleValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.NewFromFloat(d.v), true
}
func (d DoubleValue) AsBytes() ([]byte, bool)  { return nil, false }
func (d DoubleValue) AsInterface() interface{} { return d.v }
func (d DoubleValue) Equals(other ColumnValue) bool {
	c, err := d.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (d DoubleValue) Compare(other ColumnValue) (int, error) {
	return compareNumeric(d, other)
}
func (d DoubleValue) SQL() string { return fmt.Sprintf("%g", d.v) }

// NumericValue is an exact decimal value.
type NumericValue struct {
	v decimal.Decimal
}

func NewNumericValue(v decimal.Decimal) NumericValue { return NumericValue{v: v} }

func (n NumericValue) Type() DataType            { return NUMERIC }
func (n NumericValue) IsNull() bool              { return false }
func (n NumericValue) AsInt64() (int64, bool)    { return n.v.IntPart(), true }
func (n NumericValue) AsFloat64() (float64, bool) {
	f, _ := n.v.Float64()
	return f, true
}
func (n NumericValue) AsBoolean() (bool, bool)  { return !n.v.IsZero(), true }
func (n NumericValue) AsString() (string, bool) { return n.v.String(), true }
func (n NumericValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (n NumericValue) AsDecimal() (decimal.Decimal, bool) { return n.v, true }
func (n NumericValue) AsBytes() ([]byte, bool)            { return nil, false }
func (n NumericValue) AsInterface() interface{}           { return n.v }
func (n NumericValue) Equals(other ColumnValue) bool {
	c, err := n.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (n NumericValue) Compare(other ColumnValue) (int, error) {
	return compareNumeric(n, other)
}
func (n NumericValue) SQL() string { return n.v.String() }

// TextValue is a string value.
type TextValue struct {
	v string
}

func NewTextValue(v string) TextValue { return TextValue{v: v} }

func (t TextValue) Type() DataType             { return TEXT }
func (t TextValue) IsNull() bool               { return false }
func (t TextValue) AsInt64() (int64, bool)     { return 0, false }
func (t TextValue) AsFloat64() (float64, bool) { return 0, false }
func (t TextValue) AsBoolean() (bool, bool)    { return false, false }
func (t TextValue) AsString() (string, bool)   { return t.v, true }
func (t TextValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (t TextValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}
func (t TextValue) AsBytes() ([]byte, bool)  { return []byte(t.v), true }
func (t TextValue) AsInterface() interface{} { return t.v }
func (t TextValue) Equals(other ColumnValue) bool {
	c, err := t.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (t TextValue) Compare(other ColumnValue) (int, error) {
	if other.IsNull() {
		return 1, nil
	}
	s, ok := other.AsString()
	if !ok || other.Type() != TEXT {
		return 0, fmt.Errorf("cannot compare TEXT with %s", other.Type())
	}
	return strings.Compare(t.v, s), nil
}
func (t TextValue) SQL() string {
	return "'" + strings.ReplaceAll(t.v, "'", "''") + "'"
}

// BooleanValue is a boolean value.
type BooleanValue struct {
	v bool
}

func NewBooleanValue(v bool) BooleanValue { return BooleanValue{v: v} }

func (b BooleanValue) Type() DataType { return BOOLEAN }
func (b BooleanValue) IsNull() bool   { return false }
func (b BooleanValue) AsInt64() (int64, bool) {
	if b.v {
		return 1, true
	}
	return 0, true
}
func (b BooleanValue) AsFloat64() (float64, bool) {
	i, _ := b.AsInt64()
	return float64(i), true
}
func (b BooleanValue) AsBoolean() (bool, bool) { return b.v, true }
func (b BooleanValue) AsString() (string, bool) {
	return fmt.Sprintf("%t", b.v), true
}
func (b BooleanValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (b BooleanValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}
func (b BooleanValue) AsBytes() ([]byte, bool)  { return nil, false }
func (b BooleanValue) AsInterface() interface{} { return b.v }
func (b BooleanValue) Equals(other ColumnValue) bool {
	c, err := b.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (b BooleanValue) Compare(other ColumnValue) (int, error) {
	if other.IsNull() {
		return 1, nil
	}
	o, ok := other.AsBoolean()
	if !ok || other.Type() != BOOLEAN {
		return 0, fmt.Errorf("cannot compare BOOLEAN with %s", other.Type())
	}
	switch {
	case b.v == o:
		return 0, nil
	case b.v:
		return 1, nil
	default:
		return -1, nil
	}
}
func (b BooleanValue) SQL() string {
	if b.v {
		return "TRUE"
	}
	return "FALSE"
}

// TimestampValue is a point-in-time value.
type TimestampValue struct {
	v time.Time
}

func NewTimestampValue(v time.Time) TimestampValue { return TimestampValue{v: v} }

func (t TimestampValue) Type() DataType             { return TIMESTAMP }
func (t TimestampValue) IsNull() bool               { return false }
func (t TimestampValue) AsInt64() (int64, bool)     { return t.v.UnixNano(), true }
func (t TimestampValue) AsFloat64() (float64, bool) { return 0, false }
func (t TimestampValue) AsBoolean() (bool, bool)    { return false, false }
func (t TimestampValue) AsString() (string, bool) {
	return t.v.Format(time.RFC3339Nano), true
}
func (t TimestampValue) AsTimestamp() (time.Time, bool) { return t.v, true }
func (t TimestampValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}
func (t TimestampValue) AsBytes() ([]byte, bool)  { return nil, false }
func (t TimestampValue) AsInterface() interface{} { return t.v }
func (t TimestampValue) Equals(other ColumnValue) bool {
	c, err := t.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (t TimestampValue) Compare(other ColumnValue) (int, error) {
	if other.IsNull() {
		return 1, nil
	}
	o, ok := other.AsTimestamp()
	if !ok {
		return 0, fmt.Errorf("cannot compare TIMESTAMP with %s", other.Type())
	}
	switch {
	case t.v.Equal(o):
		return 0, nil
	case t.v.Before(o):
		return -1, nil
	default:
		return 1, nil
	}
}
func (t TimestampValue) SQL() string {
	return "TIMESTAMP '" + t.v.Format("2006-01-02 15:04:05.999999999") + "'"
}

// BytesValue is a byte string value.
type BytesValue struct {
	v []byte
}

func NewBytesValue(v []byte) BytesValue { return BytesValue{v: v} }

func (b BytesValue) Type() DataType             { return BYTES }
func (b BytesValue) IsNull() bool               { return false }
func (b BytesValue) AsInt64() (int64, bool)     { return 0, false }
func (b BytesValue) AsFloat64() (float64, bool) { return 0, false }
func (b BytesValue) AsBoolean() (bool, bool)    { return false, false }
func (b BytesValue) AsString() (string, bool)   { return string(b.v), true }
func (b BytesValue) AsTimestamp() (time.Time, bool) {
	return time.Time{}, false
}
func (b BytesValue) AsDecimal() (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}
func (b BytesValue) AsBytes() ([]byte, bool)  { return b.v, true }
func (b BytesValue) AsInterface() interface{} { return b.v }
func (b BytesValue) Equals(other ColumnValue) bool {
	c, err := b.Compare(other)
	return err == nil && c == 0 && !other.IsNull()
}
func (b BytesValue) Compare(other ColumnValue) (int, error) {
	if other.IsNull() {
		return 1, nil
	}
	o, ok := other.AsBytes()
	if !ok || other.Type() != BYTES {
		return 0, fmt.Errorf("cannot compare BYTES with %s", other.Type())
	}
	return bytes.Compare(b.v, o), nil
}
func (b BytesValue) SQL() string { return fmt.Sprintf("X'%x'", b.v) }

// compareNumeric compares two values of any numeric type. Exact decimals are
// used whenever one side is NUMERIC so that no precision is lost.
func compareNumeric(a, b ColumnValue) (int, error) {
	if b.IsNull() {
		return 1, nil
	}
	switch b.Type() {
	case INTEGER, DOUBLE, NUMERIC:
	default:
		return 0, fmt.Errorf("cannot compare %s with %s", a.Type(), b.Type())
	}
	if a.Type() == NUMERIC || b.Type() == NUMERIC {
		da, _ := a.AsDecimal()
		db, _ := b.AsDecimal()
		return da.Cmp(db), nil
	}
	if a.Type() == DOUBLE || b.Type() == DOUBLE {
		fa, _ := a.AsFloat64()
		fb, _ := b.AsFloat64()
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	ia, _ := a.AsInt64()
	ib, _ := b.AsInt64()
	switch {
	case ia < ib:
		return -1, nil
	case ia > ib:
		return 1, nil
	default:
		return 0, nil
	}
}
