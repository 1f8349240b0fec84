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
	"strings"
)

// PlanSQL reconstructs an equivalent SELECT statement, with inline comments
// naming the chosen optimizations.
func (s *Select) PlanSQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT")
	if s.distinct {
		sb.WriteString(" DISTINCT")
	} else if s.distinctExpressions != nil {
		sb.WriteString(" DISTINCT ON(")
		for i, e := range s.distinctExpressions {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.SQL())
		}
		sb.WriteByte(')')
	}
	for i := 0; i < s.visibleColumnCount; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("\n    ")
		sb.WriteString(s.expressions[i].SQL())
	}
	sb.WriteString("\nFROM ")
	for f := s.topTableFilter; f != nil; f = f.Join() {
		if f != s.topTableFilter {
			if f.IsJoinOuter() {
				sb.WriteString("\nLEFT OUTER JOIN ")
			} else {
				sb.WriteString("\nINNER JOIN ")
			}
		}
		s.writeFilterPlan(&sb, f)
		if jc := f.JoinCondition(); jc != nil {
			sb.WriteString(" ON ")
			sb.WriteString(jc.SQL())
		}
	}
	if s.isQuickAggregateQuery {
		sb.WriteString("\n/* direct lookup */")
	}
	if s.isDistinctQuery {
		sb.WriteString("\n/* distinct */")
	}
	if s.sortUsingIndex {
		sb.WriteString("\n/* index sorted */")
	}
	if s.isGroupSortedQuery {
		sb.WriteString("\n/* group sorted */")
	}
	if s.condition != nil {
		sb.WriteString("\nWHERE ")
		sb.WriteString(s.condition.SQL())
	}
	if len(s.groupIndex) > 0 {
		sb.WriteString("\nGROUP BY ")
		for i, gi := range s.groupIndex {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.expressions[gi].NonAlias().SQL())
		}
	}
	if s.havingIndex >= 0 {
		sb.WriteString("\nHAVING ")
		sb.WriteString(s.expressions[s.havingIndex].NonAlias().SQL())
	}
	if s.sort != nil {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(s.sort.SQL(s.expressions, s.visibleColumnCount))
	}
	if s.offsetExpr != nil {
		sb.WriteString("\nOFFSET ")
		sb.WriteString(s.offsetExpr.SQL())
		sb.WriteString(" ROWS")
	}
	if s.limitExpr != nil {
		sb.WriteString("\nFETCH NEXT ")
		sb.WriteString(s.limitExpr.SQL())
		if s.fetchPercent {
			sb.WriteString(" PERCENT")
		}
		sb.WriteString(" ROWS")
		if s.withTies {
			sb.WriteString(" WITH TIES")
		} else {
			sb.WriteString(" ONLY")
		}
	}
	if s.sampleSizeExpr != nil {
		sb.WriteString("\nSAMPLE_SIZE ")
		sb.WriteString(s.sampleSizeExpr.SQL())
	}
	if s.isForUpdate {
		sb.WriteString("\nFOR UPDATE")
	}
	return sb.String()
}

func (s *Select) writeFilterPlan(sb *strings.Builder, f *TableFilter) {
	sb.WriteString(f.SchemaName())
	sb.WriteByte('.')
	sb.WriteString(f.Table().Name())
	if alias := f.TableAlias(); alias != f.Table().Name() {
		sb.WriteByte(' ')
		sb.WriteString(alias)
	}
	sb.WriteString(" /* ")
	idx := f.Index()
	if idx.Type().Scan {
		sb.WriteString("table scan")
	} else {
		sb.WriteString(idx.Name())
	}
	sb.WriteString(" */")
}
