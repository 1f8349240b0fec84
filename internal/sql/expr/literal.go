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

	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/storage"
)

// Literal is a constant value.
type Literal struct {
	v storage.ColumnValue
}

func NewLiteral(v storage.ColumnValue) *Literal {
	if v == nil {
		v = storage.Null
	}
	return &Literal{v: v}
}

// Convenience constructors for the common literal types.
func Int(v int64) *Literal        { return NewLiteral(storage.NewIntegerValue(v)) }
func Float(v float64) *Literal    { return NewLiteral(storage.NewDoubleValue(v)) }
func Str(v string) *Literal       { return NewLiteral(storage.NewTextValue(v)) }
func Bool(v bool) *Literal        { return NewLiteral(storage.NewBooleanValue(v)) }
func NullLiteral() *Literal       { return NewLiteral(storage.Null) }

func (l *Literal) Value(ec *Context) (storage.ColumnValue, error) { return l.v, nil }
func (l *Literal) Type() storage.DataType                         { return l.v.Type() }
func (l *Literal) UpdateAggregate(ec *Context) error              { return nil }
func (l *Literal) Optimize(ec *Context) (Expression, error)       { return l, nil }
func (l *Literal) MapColumns(resolver ColumnResolver, level int) error { return nil }
func (l *Literal) SetEvaluatable(resolver ColumnResolver, b bool)      {}
func (l *Literal) IsWildcard() bool                                    { return false }
func (l *Literal) NonAlias() Expression                                { return l }
func (l *Literal) SQL() string                                         { return l.v.SQL() }
func (l *Literal) AliasName() string                                   { return l.SQL() }
func (l *Literal) IsConstant() bool                                    { return true }
func (l *Literal) IsEverything(v Visitor) bool                         { return true }

// Parameter is a placeholder whose value is supplied before execution.
type Parameter struct {
	index int
	v     storage.ColumnValue
}

// NewParameter creates a parameter with a 0-based index.
func NewParameter(index int) *Parameter { return &Parameter{index: index} }

func (p *Parameter) Index() int { return p.index }

// SetValue binds the parameter.
func (p *Parameter) SetValue(v storage.ColumnValue) {
	if v == nil {
		v = storage.Null
	}
	p.v = v
}

func (p *Parameter) Value(ec *Context) (storage.ColumnValue, error) {
	if p.v == nil {
		return nil, sql.NewError(sql.CodeParameterNotSet,
			"parameter ?%d is not set", p.index+1)
	}
	return p.v, nil
}

func (p *Parameter) Type() storage.DataType {
	if p.v == nil {
		return storage.NULL
	}
	return p.v.Type()
}

func (p *Parameter) UpdateAggregate(ec *Context) error              { return nil }
func (p *Parameter) Optimize(ec *Context) (Expression, error)       { return p, nil }
func (p *Parameter) MapColumns(resolver ColumnResolver, level int) error { return nil }
func (p *Parameter) SetEvaluatable(resolver ColumnResolver, b bool)      {}
func (p *Parameter) IsWildcard() bool                                    { return false }
func (p *Parameter) NonAlias() Expression                                { return p }
func (p *Parameter) SQL() string                                         { return fmt.Sprintf("?%d", p.index+1) }
func (p *Parameter) AliasName() string                                   { return p.SQL() }
func (p *Parameter) IsConstant() bool                                    { return false }
func (p *Parameter) IsEverything(v Visitor) bool                         { return true }
