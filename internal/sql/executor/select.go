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
	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// OrderEntry is one pre-binding ORDER BY term. An integer literal refers to
// a 1-based output column position.
type OrderEntry struct {
	Expr     expr.Expression
	SortType int
}

// Select is a single-block SELECT statement. It is built by the parser,
// bound once by Init, planned once by Prepare and executed any number of
// times by Query.
type Select struct {
	session *sql.Session

	// expressions is the projection list. Binding appends the non-selected
	// ORDER BY, HAVING and GROUP BY terms to it, so
	// visibleColumnCount <= distinctColumnCount <= len(expressions).
	expressions   []expr.Expression
	expressionSQL []string
	columnNames   []string

	visibleColumnCount  int
	distinctColumnCount int

	filters        []*TableFilter
	topFilters     []*TableFilter
	topTableFilter *TableFilter

	condition expr.Expression

	group             []expr.Expression
	groupIndex        []int
	groupByExpression []bool
	having            expr.Expression
	havingIndex       int

	distinct            bool
	distinctOn          []expr.Expression
	distinctExpressions []expr.Expression
	distinctIndexes     []int

	orderList   []OrderEntry
	orderFields []SortField
	sort        *SortOrder

	limitExpr      expr.Expression
	offsetExpr     expr.Expression
	sampleSizeExpr expr.Expression
	fetchPercent   bool
	withTies       bool

	isForUpdate           bool
	isForUpdateMvcc       bool
	isGroupQuery          bool
	isGroupSortedQuery    bool
	isDistinctQuery       bool
	isQuickAggregateQuery bool
	sortUsingIndex        bool

	randomAccessResult bool

	initialized bool
	prepared    bool
	cost        float64

	listResolver *selectListResolver

	// Execution-scoped group state, nil outside execution.
	groupStore     *groupData
	currentEmitRow storage.Row
}

// NewSelect creates an empty SELECT bound to the session.
func NewSelect(session *sql.Session) *Select {
	return &Select{session: session, havingIndex: -1}
}

func (s *Select) Session() *sql.Session { return s.session }

func (s *Select) db() *sql.Database { return s.session.Database() }

// Statement construction, called by the parser.

func (s *Select) SetExpressions(exprs []expr.Expression) { s.expressions = exprs }

// AddTableFilter registers a FROM-clause filter. Top filters are the join
// roots eligible as plan root.
func (s *Select) AddTableFilter(f *TableFilter, isTop bool) {
	s.filters = append(s.filters, f)
	if isTop {
		s.topFilters = append(s.topFilters, f)
	}
}

// AddCondition ANDs a predicate onto the WHERE clause.
func (s *Select) AddCondition(e expr.Expression) {
	s.condition = expr.And(s.condition, e)
}

func (s *Select) SetGroupBy(group []expr.Expression) {
	s.group = group
	s.isGroupQuery = true
}

func (s *Select) SetHaving(e expr.Expression) {
	s.having = e
	s.isGroupQuery = true
}

func (s *Select) SetDistinct()                        { s.distinct = true }
func (s *Select) SetDistinctOn(on []expr.Expression)  { s.distinctOn = on }
func (s *Select) SetOrder(order []OrderEntry)         { s.orderList = order }
func (s *Select) SetLimit(e expr.Expression)          { s.limitExpr = e }
func (s *Select) SetOffset(e expr.Expression)         { s.offsetExpr = e }
func (s *Select) SetSampleSize(e expr.Expression)     { s.sampleSizeExpr = e }
func (s *Select) SetFetchPercent(b bool)              { s.fetchPercent = b }
func (s *Select) SetWithTies(b bool)                  { s.withTies = b }
func (s *Select) SetForUpdate(b bool) {
	s.isForUpdate = b
	st := s.db().Settings()
	s.isForUpdateMvcc = b && st.SelectForUpdateMvcc && st.MVStore
}
func (s *Select) SetRandomAccessResult(b bool)        { s.randomAccessResult = b }

// SetDistinctIfPossible enables DISTINCT unless the statement shape makes
// the change observable: grouping dedupes already, and with OFFSET or LIMIT
// present the rows entering the window would change.
func (s *Select) SetDistinctIfPossible() {
	if !s.isGroupQuery && s.limitExpr == nil && s.offsetExpr == nil {
		s.distinct = true
	}
}

// Introspection surface.

func (s *Select) ColumnCount() int          { return s.visibleColumnCount }
func (s *Select) ColumnNames() []string     { return s.columnNames }
func (s *Select) DistinctColumnCount() int  { return s.distinctColumnCount }
func (s *Select) Expressions() []expr.Expression { return s.expressions }
func (s *Select) SortOrder() *SortOrder     { return s.sort }
func (s *Select) Cost() float64             { return s.cost }
func (s *Select) Condition() expr.Expression { return s.condition }
func (s *Select) TopTableFilter() *TableFilter { return s.topTableFilter }
func (s *Select) GroupIndexes() []int       { return s.groupIndex }
func (s *Select) HavingIndex() int          { return s.havingIndex }
func (s *Select) DistinctIndexes() []int    { return s.distinctIndexes }

func (s *Select) IsGroupQuery() bool          { return s.isGroupQuery }
func (s *Select) IsGroupSortedQuery() bool    { return s.isGroupSortedQuery }
func (s *Select) IsDistinctQuery() bool       { return s.isDistinctQuery }
func (s *Select) IsQuickAggregateQuery() bool { return s.isQuickAggregateQuery }
func (s *Select) IsSortUsingIndex() bool      { return s.sortUsingIndex }
func (s *Select) IsForUpdate() bool           { return s.isForUpdate }

// IsAnyDistinct reports whether DISTINCT or DISTINCT ON is in effect.
func (s *Select) IsAnyDistinct() bool {
	return s.distinct || s.distinctExpressions != nil
}

// Tables returns the set of tables read by the statement.
func (s *Select) Tables() []storage.Table {
	tables := make([]storage.Table, 0, len(s.filters))
	for _, f := range s.filters {
		tables = append(tables, f.Table())
	}
	return tables
}

// IsCacheable reports whether the result may be served from a cache; FOR
// UPDATE statements may not.
func (s *Select) IsCacheable() bool { return !s.isForUpdate }

func (s *Select) IsReadOnly() bool {
	return s.IsEverything(expr.Visitor{Type: expr.VisitReadOnly})
}

// IsEverything reports whether the visitor's property holds for every
// expression of the statement.
func (s *Select) IsEverything(v expr.Visitor) bool {
	for _, e := range s.expressions {
		if !e.IsEverything(v) {
			return false
		}
	}
	if s.condition != nil && !s.condition.IsEverything(v) {
		return false
	}
	return true
}

// MapColumns binds the statement's columns against an outer resolver, for
// use as a nested query.
func (s *Select) MapColumns(resolver expr.ColumnResolver, level int) error {
	for _, e := range s.expressions {
		if err := e.MapColumns(resolver, level); err != nil {
			return err
		}
	}
	if s.condition != nil {
		return s.condition.MapColumns(resolver, level)
	}
	return nil
}

// SetEvaluatable propagates join-planning evaluability to all expressions.
func (s *Select) SetEvaluatable(resolver expr.ColumnResolver, b bool) {
	for _, e := range s.expressions {
		e.SetEvaluatable(resolver, b)
	}
	if s.condition != nil {
		s.condition.SetEvaluatable(resolver, b)
	}
}

// UpdateAggregate folds the current row into aggregates held by the
// statement's expressions, for use as a nested query.
func (s *Select) UpdateAggregate(ec *expr.Context) error {
	for _, e := range s.expressions {
		if err := e.UpdateAggregate(ec); err != nil {
			return err
		}
	}
	if s.condition != nil {
		return s.condition.UpdateAggregate(ec)
	}
	return nil
}

// FireBeforeSelectTriggers notifies every table read by the statement.
func (s *Select) FireBeforeSelectTriggers() {
	for _, f := range s.filters {
		f.Table().FireBeforeSelect()
	}
}

// Init binds the statement: wildcards are expanded, DISTINCT ON, ORDER BY,
// HAVING and GROUP BY terms are matched against the projection list or
// appended to it, and columns are resolved against the FROM clause. It must
// run exactly once.
func (s *Select) Init() error {
	if s.initialized {
		return sql.Internal("SELECT was already initialized")
	}
	s.initialized = true

	if s.distinct && s.distinctOn != nil {
		return sql.Unsupported("DISTINCT ON together with DISTINCT")
	}

	if err := s.expandWildcards(); err != nil {
		return err
	}
	s.visibleColumnCount = len(s.expressions)

	if s.distinctOn != nil || s.orderList != nil || s.group != nil {
		s.expressionSQL = make([]string, s.visibleColumnCount)
		for i := 0; i < s.visibleColumnCount; i++ {
			s.expressionSQL[i] = s.expressions[i].NonAlias().SQL()
		}
	}

	if s.distinctOn != nil {
		s.bindDistinctOn()
	}
	if err := s.bindOrder(); err != nil {
		return err
	}
	s.distinctColumnCount = len(s.expressions)

	if s.having != nil {
		s.expressions = append(s.expressions, s.having)
		s.havingIndex = len(s.expressions) - 1
		s.having = nil
	}

	if s.withTies && s.orderFields == nil {
		return sql.NewError(sql.CodeWithTiesWithoutOrderBy,
			"WITH TIES requires ORDER BY")
	}

	if s.group != nil {
		s.bindGroupBy()
	}
	if s.groupIndex != nil || s.havingIndex >= 0 {
		s.isGroupQuery = true
	}
	for _, e := range s.expressions {
		if !e.IsEverything(expr.Visitor{Type: expr.VisitNoAggregate}) {
			s.isGroupQuery = true
			break
		}
	}

	s.listResolver = newSelectListResolver(s)
	if s.havingIndex >= 0 {
		if err := s.expressions[s.havingIndex].MapColumns(s.listResolver, 0); err != nil {
			return err
		}
	}
	for _, f := range s.filters {
		for _, e := range s.expressions {
			if err := e.MapColumns(f, 0); err != nil {
				return err
			}
		}
		if s.condition != nil {
			if err := s.condition.MapColumns(f, 0); err != nil {
				return err
			}
		}
		if jc := f.JoinCondition(); jc != nil {
			for _, other := range s.filters {
				if err := jc.MapColumns(other, 0); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// expandWildcards replaces each * and alias.* entry with the visible,
// non-natural-join columns of the matching filters.
func (s *Select) expandWildcards() error {
	out := make([]expr.Expression, 0, len(s.expressions))
	for _, e := range s.expressions {
		if !e.IsWildcard() {
			out = append(out, e)
			continue
		}
		w := e.(*expr.Wildcard)
		matched := false
		for _, f := range s.filters {
			if w.TableAlias() != "" &&
				!s.db().EqualsIdentifiers(w.TableAlias(), f.TableAlias()) {
				continue
			}
			if w.SchemaName() != "" &&
				!s.db().EqualsIdentifiers(w.SchemaName(), f.SchemaName()) {
				continue
			}
			matched = true
			for _, col := range f.Table().Columns() {
				if !col.Visible || f.IsNaturalJoinColumn(col) {
					continue
				}
				out = append(out, expr.NewColumn("", f.TableAlias(), col.Name))
			}
		}
		if !matched {
			return sql.NewError(sql.CodeTableOrViewNotFound,
				"table or view %q not found", w.SQL())
		}
	}
	s.expressions = out
	return nil
}

// indexOfExpression matches e against the visible projection by SQL text,
// then by column-name-to-alias. Returns -1 when nothing matches.
func (s *Select) indexOfExpression(e expr.Expression, matchOwnAlias bool) int {
	sqlText := e.NonAlias().SQL()
	for i := 0; i < s.visibleColumnCount; i++ {
		if s.db().EqualsIdentifiers(s.expressionSQL[i], sqlText) {
			return i
		}
	}
	name := ""
	if c, ok := e.NonAlias().(*expr.Column); ok {
		name = c.Name()
	} else if matchOwnAlias {
		name = e.AliasName()
	}
	if name != "" {
		for i := 0; i < s.visibleColumnCount; i++ {
			if s.db().EqualsIdentifiers(s.expressions[i].AliasName(), name) {
				return i
			}
		}
	}
	return -1
}

// appendExpression adds a non-selected term to the projection list.
// expressionSQL only covers the visible prefix, so appended terms never
// participate in match-by-text.
func (s *Select) appendExpression(e expr.Expression) int {
	s.expressions = append(s.expressions, e)
	return len(s.expressions) - 1
}

func (s *Select) bindDistinctOn() {
	s.distinctExpressions = s.distinctOn
	s.distinctOn = nil
	seen := make(map[int]bool)
	for _, e := range s.distinctExpressions {
		idx := s.indexOfExpression(e, false)
		if idx < 0 {
			idx = s.appendExpression(e)
		}
		if !seen[idx] {
			seen[idx] = true
			s.distinctIndexes = append(s.distinctIndexes, idx)
		}
	}
	// Ascending order keeps the deduplication key stable regardless of the
	// DISTINCT ON spelling.
	for i := 1; i < len(s.distinctIndexes); i++ {
		for j := i; j > 0 && s.distinctIndexes[j-1] > s.distinctIndexes[j]; j-- {
			s.distinctIndexes[j-1], s.distinctIndexes[j] =
				s.distinctIndexes[j], s.distinctIndexes[j-1]
		}
	}
}

func (s *Select) bindOrder() error {
	if s.orderList == nil {
		return nil
	}
	for _, entry := range s.orderList {
		idx := -1
		if lit, ok := entry.Expr.NonAlias().(*expr.Literal); ok && lit.Type() == storage.INTEGER {
			v, _ := lit.Value(nil)
			pos, _ := v.AsInt64()
			if pos < 1 || pos > int64(s.visibleColumnCount) {
				return sql.InvalidValue("ORDER BY", pos)
			}
			idx = int(pos - 1)
		} else {
			idx = s.indexOfExpression(entry.Expr, false)
			if idx < 0 {
				if s.distinct || s.distinctExpressions != nil {
					return sql.NewError(sql.CodeOrderByNotInResult,
						"ORDER BY expression %s must appear in the DISTINCT result",
						entry.Expr.SQL())
				}
				idx = s.appendExpression(entry.Expr)
			}
		}
		s.orderFields = append(s.orderFields, SortField{Index: idx, SortType: entry.SortType})
	}
	s.orderList = nil
	return nil
}

func (s *Select) bindGroupBy() {
	s.groupIndex = make([]int, len(s.group))
	for i, g := range s.group {
		idx := s.indexOfExpression(g, true)
		if idx < 0 {
			idx = s.appendExpression(g)
		}
		s.groupIndex[i] = idx
	}
	s.group = nil
	s.groupByExpression = make([]bool, len(s.expressions))
	for _, idx := range s.groupIndex {
		s.groupByExpression[idx] = true
	}
	s.isGroupQuery = true
}

// isGroupKeyColumn reports whether expression position j is a GROUP BY key.
// The mask is sized when GROUP BY binds; positions appended later (HAVING)
// are never keys.
func (s *Select) isGroupKeyColumn(j int) bool {
	return s.groupByExpression != nil && j < len(s.groupByExpression) &&
		s.groupByExpression[j]
}

// AllowGlobalConditions reports whether an external driver may inject a
// parameterized predicate: not with OFFSET, and not with LIMIT combined
// with a sort.
func (s *Select) AllowGlobalConditions() bool {
	if s.offsetExpr != nil {
		return false
	}
	return s.limitExpr == nil || s.sort == nil
}

// AddGlobalCondition splices a parameterized predicate on output column
// columnID. In a group query the predicate joins the WHERE when the column
// is a group key and the HAVING otherwise; in a flat query it joins the
// WHERE.
func (s *Select) AddGlobalCondition(param *expr.Parameter, columnID int, op expr.CompareOp) error {
	if columnID < 0 || columnID >= len(s.expressions) {
		return sql.InvalidValue("column id", columnID)
	}
	col := s.expressions[columnID].NonAlias()
	var cond expr.Expression
	if col.IsEverything(expr.Visitor{Type: expr.VisitQueryComparable}) {
		cond = expr.NewComparison(op, col, param)
	} else {
		// Not comparable here; bind the parameter through a tautology so
		// the statement still carries it.
		cond = expr.NewComparison(expr.OpEqualNullSafe, param, param)
	}
	ec := &expr.Context{Session: s.session}
	for _, f := range s.filters {
		if err := cond.MapColumns(f, 0); err != nil {
			return err
		}
	}
	if s.isGroupQuery && !s.isGroupKeyColumn(columnID) {
		// Writing through havingIndex keeps repeated injections ANDed onto
		// the same slot instead of re-registering the HAVING.
		if s.havingIndex >= 0 {
			s.expressions[s.havingIndex] = expr.And(s.expressions[s.havingIndex], cond)
		} else {
			if err := cond.MapColumns(s.listResolver, 0); err != nil {
				return err
			}
			s.expressions = append(s.expressions, cond)
			s.havingIndex = len(s.expressions) - 1
		}
		return nil
	}
	if s.prepared {
		opt, err := cond.Optimize(ec)
		if err != nil {
			return err
		}
		cond = opt
	}
	s.condition = expr.And(s.condition, cond)
	return nil
}

// expr.GroupState implementation: aggregate expressions reach their state
// slot in the current group through these methods.

func (s *Select) InGroup() bool { return s.groupStore != nil }

func (s *Select) IsQuickAggregate() bool { return s.isQuickAggregateQuery }

func (s *Select) QuickAggregateTable() storage.Table {
	if !s.isQuickAggregateQuery || s.topTableFilter == nil {
		return nil
	}
	return s.topTableFilter.Table()
}

func (s *Select) GroupData(e expr.Expression) interface{} {
	if s.groupStore == nil {
		return nil
	}
	return s.groupStore.get(e)
}

func (s *Select) SetGroupData(e expr.Expression, v interface{}) {
	if s.groupStore == nil {
		return
	}
	s.groupStore.set(e, v)
}

func (s *Select) GroupRowID() int {
	if s.groupStore == nil {
		return 0
	}
	return s.groupStore.rowID
}

// selectListResolver exposes the projection list as a column source, so
// HAVING can reference aggregate results and select-list aliases.
type selectListResolver struct {
	sel  *Select
	cols []*storage.Column
}

func newSelectListResolver(s *Select) *selectListResolver {
	cols := make([]*storage.Column, s.visibleColumnCount)
	for i := 0; i < s.visibleColumnCount; i++ {
		cols[i] = &storage.Column{
			ID:      i,
			Name:    s.expressions[i].AliasName(),
			Type:    s.expressions[i].Type(),
			Visible: true,
		}
	}
	return &selectListResolver{sel: s, cols: cols}
}

func (r *selectListResolver) TableAlias() string    { return "" }
func (r *selectListResolver) SchemaName() string    { return "" }
func (r *selectListResolver) Table() storage.Table  { return nil }

func (r *selectListResolver) FindColumn(name string) *storage.Column {
	for _, c := range r.cols {
		if r.sel.db().EqualsIdentifiers(c.Name, name) {
			return c
		}
	}
	return nil
}

func (r *selectListResolver) ColumnValue(ec *expr.Context, col *storage.Column) (storage.ColumnValue, error) {
	// During grouped emission the output row under construction holds the
	// already-computed values; otherwise fall through to the expression.
	if row := r.sel.currentEmitRow; row != nil && col.ID < len(row) && row[col.ID] != nil {
		return row[col.ID], nil
	}
	return r.sel.expressions[col.ID].Value(ec)
}
