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

// Package expr holds the expression tree the executor evaluates. The
// executor treats expressions as opaque nodes: it evaluates them, asks them
// to update aggregate state, optimizes them once during preparation, and
// binds their column references against table filters.
package expr

import (
	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/storage"
)

// Context carries the state expressions need during evaluation: the session
// and, while a grouped query runs, the current group's aggregate state.
// There is exactly one Context per statement execution.
type Context struct {
	Session *sql.Session
	Group   GroupState
}

// GroupState gives aggregate expressions access to the state vector of the
// group currently being processed. The executor's Select statement
// implements it.
type GroupState interface {
	// InGroup reports whether a group is current.
	InGroup() bool

	// IsQuickAggregate reports whether the running plan answers aggregates
	// from table and index metadata without scanning rows.
	IsQuickAggregate() bool

	// QuickAggregateTable returns the table a direct-lookup plan reads its
	// metadata from, or nil outside such a plan.
	QuickAggregateTable() storage.Table

	// GroupData returns the state slot owned by the expression in the
	// current group, or nil if the slot was never written.
	GroupData(e Expression) interface{}

	// SetGroupData stores the expression's state slot in the current group.
	SetGroupData(e Expression, v interface{})

	// GroupRowID is a counter incremented for every input row of the
	// grouping scan; aggregates use it to detect a new row.
	GroupRowID() int
}

// ColumnResolver resolves column names to columns and provides the current
// row's value for a resolved column. Table filters implement it, as does
// the executor's select-list resolver used for HAVING binding.
type ColumnResolver interface {
	TableAlias() string
	SchemaName() string

	// Table returns the underlying table, or nil when the resolver is not
	// table-backed.
	Table() storage.Table

	// FindColumn returns the visible column with the given name, or nil.
	FindColumn(name string) *storage.Column

	// ColumnValue returns the current row's value for the column.
	ColumnValue(ec *Context, col *storage.Column) (storage.ColumnValue, error)
}

// VisitType selects the property an IsEverything traversal checks.
type VisitType int

const (
	// VisitReadOnly: the expression does not modify database state.
	VisitReadOnly VisitType = iota
	// VisitDeterministic: repeated evaluation yields the same value.
	VisitDeterministic
	// VisitEvaluatable: the expression can be evaluated with the currently
	// available row data.
	VisitEvaluatable
	// VisitQueryComparable: the expression can appear on one side of an
	// injected comparison.
	VisitQueryComparable
	// VisitOptimizableAggregate: the expression can be answered from table
	// or index metadata without scanning rows.
	VisitOptimizableAggregate
	// VisitNoAggregate: no aggregate function appears in the expression.
	VisitNoAggregate
)

// Visitor parameterizes IsEverything checks.
type Visitor struct {
	Type VisitType

	// Table restricts VisitOptimizableAggregate to aggregates over this
	// table.
	Table storage.Table
}

// Expression is an evaluable node of a resolved query tree.
type Expression interface {
	// Value evaluates the expression for the current row.
	Value(ec *Context) (storage.ColumnValue, error)

	// Type returns the best-effort result type.
	Type() storage.DataType

	// UpdateAggregate folds the current row into any aggregate state held
	// below this node.
	UpdateAggregate(ec *Context) error

	// Optimize returns an optimized version of the expression. Called once
	// during statement preparation.
	Optimize(ec *Context) (Expression, error)

	// MapColumns resolves column references against the resolver.
	MapColumns(resolver ColumnResolver, level int) error

	// SetEvaluatable marks columns of the given resolver as (not)
	// evaluatable while the join tree is being planned.
	SetEvaluatable(resolver ColumnResolver, b bool)

	IsWildcard() bool

	// NonAlias unwraps alias nodes.
	NonAlias() Expression

	// SQL returns the expression as SQL text.
	SQL() string

	// AliasName returns the proposed output column name.
	AliasName() string

	IsConstant() bool

	// IsEverything reports whether the property holds for this node and
	// everything below it.
	IsEverything(v Visitor) bool
}

// BooleanValue evaluates the expression as a predicate: NULL counts as
// false.
func BooleanValue(ec *Context, e Expression) (bool, error) {
	v, err := e.Value(ec)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	b, ok := v.AsBoolean()
	if !ok {
		return false, sql.InvalidValue("boolean condition", v.SQL())
	}
	return b, nil
}
