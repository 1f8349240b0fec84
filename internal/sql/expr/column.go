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
	"strings"

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/storage"
)

// Column is a reference to a table column. It is created unresolved and
// bound to a resolver during MapColumns.
type Column struct {
	schemaName string
	tableAlias string
	name       string

	resolver    ColumnResolver
	col         *storage.Column
	evaluatable bool
}

// NewColumn creates an unresolved column reference. schemaName and
// tableAlias may be empty.
func NewColumn(schemaName, tableAlias, name string) *Column {
	return &Column{
		schemaName:  schemaName,
		tableAlias:  tableAlias,
		name:        name,
		evaluatable: true,
	}
}

// Resolver returns the resolver the column is bound to, or nil.
func (c *Column) Resolver() ColumnResolver { return c.resolver }

// Col returns the resolved column, or nil.
func (c *Column) Col() *storage.Column { return c.col }

func (c *Column) Name() string { return c.name }

func (c *Column) Value(ec *Context) (storage.ColumnValue, error) {
	if c.resolver == nil {
		return nil, sql.NewError(sql.CodeColumnNotFound, "column %s not found", c.SQL())
	}
	return c.resolver.ColumnValue(ec, c.col)
}

func (c *Column) Type() storage.DataType {
	if c.col == nil {
		return storage.NULL
	}
	return c.col.Type
}

func (c *Column) UpdateAggregate(ec *Context) error { return nil }

func (c *Column) Optimize(ec *Context) (Expression, error) {
	if c.resolver == nil {
		return nil, sql.NewError(sql.CodeColumnNotFound, "column %s not found", c.SQL())
	}
	return c, nil
}

func (c *Column) MapColumns(resolver ColumnResolver, level int) error {
	if c.resolver != nil {
		return nil
	}
	if c.tableAlias != "" && !strings.EqualFold(c.tableAlias, resolver.TableAlias()) {
		return nil
	}
	if c.schemaName != "" && !strings.EqualFold(c.schemaName, resolver.SchemaName()) {
		return nil
	}
	if col := resolver.FindColumn(c.name); col != nil {
		c.resolver = resolver
		c.col = col
	}
	return nil
}

func (c *Column) SetEvaluatable(resolver ColumnResolver, b bool) {
	if c.resolver == resolver {
		c.evaluatable = b
	}
}

func (c *Column) IsWildcard() bool      { return false }
func (c *Column) NonAlias() Expression  { return c }
func (c *Column) AliasName() string     { return c.name }
func (c *Column) IsConstant() bool      { return false }

func (c *Column) SQL() string {
	var sb strings.Builder
	if c.schemaName != "" {
		sb.WriteString(c.schemaName)
		sb.WriteByte('.')
	}
	if c.tableAlias != "" {
		sb.WriteString(c.tableAlias)
		sb.WriteByte('.')
	}
	sb.WriteString(c.name)
	return sb.String()
}

func (c *Column) IsEverything(v Visitor) bool {
	switch v.Type {
	case VisitEvaluatable:
		return c.evaluatable
	case VisitOptimizableAggregate:
		return false
	default:
		return true
	}
}

// Wildcard is a `*` or `alias.*` projection entry. It only exists between
// parsing and binding; column expansion replaces it.
type Wildcard struct {
	schemaName string
	tableAlias string
}

func NewWildcard(schemaName, tableAlias string) *Wildcard {
	return &Wildcard{schemaName: schemaName, tableAlias: tableAlias}
}

func (w *Wildcard) SchemaName() string { return w.schemaName }
func (w *Wildcard) TableAlias() string { return w.tableAlias }

func (w *Wildcard) Value(ec *Context) (storage.ColumnValue, error) {
	return nil, sql.Internal("wildcard was not expanded")
}

func (w *Wildcard) Type() storage.DataType             { return storage.NULL }
func (w *Wildcard) UpdateAggregate(ec *Context) error  { return nil }
func (w *Wildcard) Optimize(ec *Context) (Expression, error) {
	return nil, sql.Internal("wildcard was not expanded")
}
func (w *Wildcard) MapColumns(resolver ColumnResolver, level int) error { return nil }
func (w *Wildcard) SetEvaluatable(resolver ColumnResolver, b bool)      {}
func (w *Wildcard) IsWildcard() bool                                    { return true }
func (w *Wildcard) NonAlias() Expression                                { return w }
func (w *Wildcard) AliasName() string                                   { return "*" }
func (w *Wildcard) IsConstant() bool                                    { return false }
func (w *Wildcard) IsEverything(v Visitor) bool                         { return false }

func (w *Wildcard) SQL() string {
	var sb strings.Builder
	if w.schemaName != "" {
		sb.WriteString(w.schemaName)
		sb.WriteByte('.')
	}
	if w.tableAlias != "" {
		sb.WriteString(w.tableAlias)
		sb.WriteByte('.')
	}
	sb.WriteByte('*')
	return sb.String()
}
