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

	"github.com/opaldb/opal/internal/storage"
)

// InList tests the left expression against a list of values. NULL on the
// left, or no match with a NULL in the list, yields NULL.
type InList struct {
	left Expression
	list []Expression
}

func NewInList(left Expression, list []Expression) *InList {
	return &InList{left: left, list: list}
}

func (in *InList) Left() Expression   { return in.left }
func (in *InList) List() []Expression { return in.list }

func (in *InList) Value(ec *Context) (storage.ColumnValue, error) {
	l, err := in.left.Value(ec)
	if err != nil {
		return nil, err
	}
	if l.IsNull() {
		return storage.Null, nil
	}
	sawNull := false
	for _, e := range in.list {
		v, err := e.Value(ec)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			sawNull = true
			continue
		}
		if c, err := l.Compare(v); err == nil && c == 0 {
			return storage.NewBooleanValue(true), nil
		}
	}
	if sawNull {
		return storage.Null, nil
	}
	return storage.NewBooleanValue(false), nil
}

func (in *InList) Type() storage.DataType { return storage.BOOLEAN }

func (in *InList) UpdateAggregate(ec *Context) error {
	if err := in.left.UpdateAggregate(ec); err != nil {
		return err
	}
	for _, e := range in.list {
		if err := e.UpdateAggregate(ec); err != nil {
			return err
		}
	}
	return nil
}

func (in *InList) Optimize(ec *Context) (Expression, error) {
	var err error
	if in.left, err = in.left.Optimize(ec); err != nil {
		return nil, err
	}
	for i, e := range in.list {
		if in.list[i], err = e.Optimize(ec); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (in *InList) MapColumns(resolver ColumnResolver, level int) error {
	if err := in.left.MapColumns(resolver, level); err != nil {
		return err
	}
	for _, e := range in.list {
		if err := e.MapColumns(resolver, level); err != nil {
			return err
		}
	}
	return nil
}

func (in *InList) SetEvaluatable(resolver ColumnResolver, b bool) {
	in.left.SetEvaluatable(resolver, b)
	for _, e := range in.list {
		e.SetEvaluatable(resolver, b)
	}
}

func (in *InList) IsWildcard() bool     { return false }
func (in *InList) NonAlias() Expression { return in }

func (in *InList) SQL() string {
	var sb strings.Builder
	sb.WriteString(in.left.SQL())
	sb.WriteString(" IN(")
	for i, e := range in.list {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.SQL())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (in *InList) AliasName() string { return in.SQL() }

func (in *InList) IsConstant() bool {
	if !in.left.IsConstant() {
		return false
	}
	for _, e := range in.list {
		if !e.IsConstant() {
			return false
		}
	}
	return true
}

func (in *InList) IsEverything(v Visitor) bool {
	if v.Type == VisitOptimizableAggregate {
		return false
	}
	if !in.left.IsEverything(v) {
		return false
	}
	for _, e := range in.list {
		if !e.IsEverything(v) {
			return false
		}
	}
	return true
}
