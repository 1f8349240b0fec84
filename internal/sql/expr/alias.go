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
	"github.com/opaldb/opal/internal/storage"
)

// Alias renames the wrapped expression in the output. Artificial aliases
// are introduced by the column namer and excluded from plan SQL.
type Alias struct {
	expr       Expression
	name       string
	artificial bool
}

func NewAlias(e Expression, name string, artificial bool) *Alias {
	return &Alias{expr: e, name: name, artificial: artificial}
}

func (a *Alias) Value(ec *Context) (storage.ColumnValue, error) {
	return a.expr.Value(ec)
}

func (a *Alias) Type() storage.DataType { return a.expr.Type() }

func (a *Alias) UpdateAggregate(ec *Context) error {
	return a.expr.UpdateAggregate(ec)
}

func (a *Alias) Optimize(ec *Context) (Expression, error) {
	e, err := a.expr.Optimize(ec)
	if err != nil {
		return nil, err
	}
	a.expr = e
	return a, nil
}

func (a *Alias) MapColumns(resolver ColumnResolver, level int) error {
	return a.expr.MapColumns(resolver, level)
}

func (a *Alias) SetEvaluatable(resolver ColumnResolver, b bool) {
	a.expr.SetEvaluatable(resolver, b)
}

func (a *Alias) IsWildcard() bool     { return false }
func (a *Alias) NonAlias() Expression { return a.expr.NonAlias() }

func (a *Alias) SQL() string {
	if a.artificial {
		return a.expr.SQL()
	}
	return a.expr.SQL() + " AS " + a.name
}

func (a *Alias) AliasName() string { return a.name }
func (a *Alias) IsConstant() bool  { return a.expr.IsConstant() }

func (a *Alias) IsEverything(v Visitor) bool { return a.expr.IsEverything(v) }
