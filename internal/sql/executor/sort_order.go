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
package executor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// SortField is one term of a materialized sort order: a column index into
// the statement's expression array plus sort-type bits.
type SortField struct {
	Index    int
	SortType int
}

// SortOrder is the materialized ORDER BY of a statement, built during
// preparation once every ORDER BY term has a column index.
type SortOrder struct {
	fields []SortField
}

func NewSortOrder(fields []SortField) *SortOrder {
	return &SortOrder{fields: fields}
}

func (s *SortOrder) Fields() []SortField { return s.fields }

// Compare orders two rows. NULL sorts low unless the field's null-position
// bits say otherwise; descending negates the comparison, null placement
// included, which keeps the comparator aligned with ordered indexes.
func (s *SortOrder) Compare(a, b storage.Row) int {
	for _, f := range s.fields {
		av, bv := a[f.Index], b[f.Index]
		an := av == nil || av.IsNull()
		bn := bv == nil || bv.IsNull()
		var c int
		switch {
		case an && bn:
			continue
		case an:
			c = s.nullCompare(f, -1)
		case bn:
			c = s.nullCompare(f, 1)
		default:
			c, _ = av.Compare(bv)
			if f.SortType&storage.Descending != 0 {
				c = -c
			}
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// nullCompare resolves the ordering of a NULL on one side. base is the
// default comparison result with NULL low.
func (s *SortOrder) nullCompare(f SortField, base int) int {
	switch {
	case f.SortType&storage.NullsFirst != 0:
		return base
	case f.SortType&storage.NullsLast != 0:
		return -base
	case f.SortType&storage.Descending != 0:
		return -base
	default:
		return base
	}
}

// Sort orders the rows in place, stably.
func (s *SortOrder) Sort(rows []storage.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return s.Compare(rows[i], rows[j]) < 0
	})
}

// SQL renders the ORDER BY list against the given expression array. Terms
// referring to visible columns print as 1-based positions, appended terms
// print their expression text.
func (s *SortOrder) SQL(exprs []expr.Expression, visible int) string {
	var sb strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		if f.Index < visible {
			sb.WriteString(strconv.Itoa(f.Index + 1))
		} else {
			sb.WriteString(exprs[f.Index].NonAlias().SQL())
		}
		if f.SortType&storage.Descending != 0 {
			sb.WriteString(" DESC")
		}
		if f.SortType&storage.NullsFirst != 0 {
			sb.WriteString(" NULLS FIRST")
		} else if f.SortType&storage.NullsLast != 0 {
			sb.WriteString(" NULLS LAST")
		}
	}
	return sb.String()
}
