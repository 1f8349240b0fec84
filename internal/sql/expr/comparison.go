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
	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/storage"
)

// CompareOp identifies a comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	// OpEqualNullSafe treats NULL as equal to NULL (IS NOT DISTINCT FROM).
	OpEqualNullSafe
)

func (op CompareOp) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpEqualNullSafe:
		return "IS NOT DISTINCT FROM"
	default:
		return "?"
	}
}

// Comparison compares two expressions. Under normal comparison a NULL
// operand yields NULL; the null-safe variant yields TRUE or FALSE always.
type Comparison struct {
	op    CompareOp
	left  Expression
	right Expression
}

func NewComparison(op CompareOp, left, right Expression) *Comparison {
	return &Comparison{op: op, left: left, right: right}
}

func (c *Comparison) Op() CompareOp    { return c.op }
func (c *Comparison) Left() Expression  { return c.left }
func (c *Comparison) Right() Expression { return c.right }

func (c *Comparison) Value(ec *Context) (storage.ColumnValue, error) {
	l, err := c.left.Value(ec)
	if err != nil {
		return nil, err
	}
	r, err := c.right.Value(ec)
	if err != nil {
		return nil, err
	}
	if c.op == OpEqualNullSafe {
		return storage.NewBooleanValue(l.Equals(r)), nil
	}
	if l.IsNull() || r.IsNull() {
		return storage.Null, nil
	}
	cmp, err := l.Compare(r)
	if err != nil {
		return nil, sql.InvalidValue("comparison", err.Error())
	}
	var b bool
	switch c.op {
	case OpEqual:
		b = cmp == 0
	case OpNotEqual:
		b = cmp != 0
	case OpLess:
		b = cmp < 0
	case OpLessEqual:
		b = cmp <= 0
	case OpGreater:
		b = cmp > 0
	case OpGreaterEqual:
		b = cmp >= 0
	}
	return storage.NewBooleanValue(b), nil
}

func (c *Comparison) Type() storage.DataType { return storage.BOOLEAN }

func (c *Comparison) UpdateAggregate(ec *Context) error {
	if err := c.left.UpdateAggregate(ec); err != nil {
		return err
	}
	return c.right.UpdateAggregate(ec)
}

func (c *Comparison) Optimize(ec *Context) (Expression, error) {
	var err error
	if c.left, err = c.left.Optimize(ec); err != nil {
		return nil, err
	}
	if c.right, err = c.right.Optimize(ec); err != nil {
		return nil, err
	}
	if c.left.IsConstant() && c.right.IsConstant() {
		v, err := c.Value(ec)
		if err != nil {
			return nil, err
		}
		return NewLiteral(v), nil
	}
	return c, nil
}

func (c *Comparison) MapColumns(resolver ColumnResolver, level int) error {
	if err := c.left.MapColumns(resolver, level); err != nil {
		return err
	}
	return c.right.MapColumns(resolver, level)
}

func (c *Comparison) SetEvaluatable(resolver ColumnResolver, b bool) {
	c.left.SetEvaluatable(resolver, b)
	c.right.SetEvaluatable(resolver, b)
}

func (c *Comparison) IsWildcard() bool     { return false }
func (c *Comparison) NonAlias() Expression { return c }

func (c *Comparison) SQL() string {
	return c.left.SQL() + " " + c.op.String() + " " + c.right.SQL()
}

func (c *Comparison) AliasName() string { return c.SQL() }

func (c *Comparison) IsConstant() bool {
	return c.left.IsConstant() && c.right.IsConstant()
}

func (c *Comparison) IsEverything(v Visitor) bool {
	return c.left.IsEverything(v) && c.right.IsEverything(v)
}

// AndOrOp selects the boolean connective of an AndOr node.
type AndOrOp int

const (
	OpAnd AndOrOp = iota
	OpOr
)

// AndOr combines two predicates with three-valued logic: NULL AND FALSE is
// FALSE, NULL OR TRUE is TRUE, everything else involving NULL is NULL.
type AndOr struct {
	op    AndOrOp
	left  Expression
	right Expression
}

func NewAnd(left, right Expression) *AndOr { return &AndOr{op: OpAnd, left: left, right: right} }
func NewOr(left, right Expression) *AndOr  { return &AndOr{op: OpOr, left: left, right: right} }

// And conjoins two optional predicates, treating nil as absent.
func And(left, right Expression) Expression {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return NewAnd(left, right)
}

func (a *AndOr) Op() AndOrOp       { return a.op }
func (a *AndOr) Left() Expression  { return a.left }
func (a *AndOr) Right() Expression { return a.right }

func (a *AndOr) Value(ec *Context) (storage.ColumnValue, error) {
	l, err := a.left.Value(ec)
	if err != nil {
		return nil, err
	}
	r, err := a.right.Value(ec)
	if err != nil {
		return nil, err
	}
	lb, lok := l.AsBoolean()
	rb, rok := r.AsBoolean()
	lok = lok && !l.IsNull()
	rok = rok && !r.IsNull()
	if a.op == OpAnd {
		if lok && !lb || rok && !rb {
			return storage.NewBooleanValue(false), nil
		}
		if lok && rok {
			return storage.NewBooleanValue(true), nil
		}
		return storage.Null, nil
	}
	if lok && lb || rok && rb {
		return storage.NewBooleanValue(true), nil
	}
	if lok && rok {
		return storage.NewBooleanValue(false), nil
	}
	return storage.Null, nil
}

func (a *AndOr) Type() storage.DataType { return storage.BOOLEAN }

func (a *AndOr) UpdateAggregate(ec *Context) error {
	if err := a.left.UpdateAggregate(ec); err != nil {
		return err
	}
	return a.right.UpdateAggregate(ec)
}

func (a *AndOr) Optimize(ec *Context) (Expression, error) {
	var err error
	if a.left, err = a.left.Optimize(ec); err != nil {
		return nil, err
	}
	if a.right, err = a.right.Optimize(ec); err != nil {
		return nil, err
	}
	if a.left.IsConstant() && a.right.IsConstant() {
		v, err := a.Value(ec)
		if err != nil {
			return nil, err
		}
		return NewLiteral(v), nil
	}
	return a, nil
}

func (a *AndOr) MapColumns(resolver ColumnResolver, level int) error {
	if err := a.left.MapColumns(resolver, level); err != nil {
		return err
	}
	return a.right.MapColumns(resolver, level)
}

func (a *AndOr) SetEvaluatable(resolver ColumnResolver, b bool) {
	a.left.SetEvaluatable(resolver, b)
	a.right.SetEvaluatable(resolver, b)
}

func (a *AndOr) IsWildcard() bool     { return false }
func (a *AndOr) NonAlias() Expression { return a }

func (a *AndOr) SQL() string {
	op := " AND "
	if a.op == OpOr {
		op = " OR "
	}
	return "(" + a.left.SQL() + op + a.right.SQL() + ")"
}

func (a *AndOr) AliasName() string { return a.SQL() }

func (a *AndOr) IsConstant() bool {
	return a.left.IsConstant() && a.right.IsConstant()
}

func (a *AndOr) IsEverything(v Visitor) bool {
	return a.left.IsEverything(v) && a.right.IsEverything(v)
}
