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

const (
	filterBeforeFirst = iota
	filterFound
	filterNullRow
	filterAfterLast
)

// TableFilter is the pull iterator over one table of the FROM clause. It
// walks its access index between optional seek bounds, applies the filter
// and join conditions, and chains to the next filter of the join via Next.
// It is also the ColumnResolver its columns bind against.
type TableFilter struct {
	session *sql.Session
	table   storage.Table
	alias   string
	index   storage.Index

	// filterCondition is the part of the WHERE promoted onto this filter;
	// joinCondition is the ON clause of the join this filter is the right
	// side of.
	filterCondition expr.Expression
	joinCondition   expr.Expression

	join              *TableFilter
	nestedJoin        *TableFilter
	joinOuter         bool
	joinOuterIndirect bool
	naturalJoinCols   map[*storage.Column]bool

	// scanFrom and scanTo are inclusive index seek bounds established by
	// index-condition pushdown, nil when scanning everything.
	scanFrom storage.Row
	scanTo   storage.Row

	// inComparisons records that the WHERE holds an IN over one of this
	// filter's columns; the sort elision never marks such a filter as
	// index-sorted.
	inComparisons bool

	state        int
	cursor       storage.Cursor
	currentRow   storage.Row
	currentRowID int64
	matched      bool

	lockBuffer []storage.RowRef

	scannedRows int64
}

// NewTableFilter creates a filter over the table's scan index. An empty
// alias defaults to the table name.
func NewTableFilter(session *sql.Session, table storage.Table, alias string) *TableFilter {
	return &TableFilter{
		session: session,
		table:   table,
		alias:   alias,
		index:   table.ScanIndex(),
		state:   filterBeforeFirst,
	}
}

func (f *TableFilter) Table() storage.Table    { return f.table }
func (f *TableFilter) Index() storage.Index    { return f.index }
func (f *TableFilter) SetIndex(i storage.Index) { f.index = i }

func (f *TableFilter) Join() *TableFilter       { return f.join }
func (f *TableFilter) NestedJoin() *TableFilter { return f.nestedJoin }

// AddJoin attaches the right side of a join to the end of this filter's
// chain.
func (f *TableFilter) AddJoin(right *TableFilter, outer bool, on expr.Expression) {
	right.joinOuter = outer
	right.joinCondition = on
	if outer {
		// Filters below an outer side see their rows become nullable too.
		for n := right.join; n != nil; n = n.join {
			n.joinOuterIndirect = true
		}
	}
	last := f
	for last.join != nil {
		last = last.join
	}
	last.join = right
}

func (f *TableFilter) IsJoinOuter() bool         { return f.joinOuter }
func (f *TableFilter) IsJoinOuterIndirect() bool { return f.joinOuterIndirect }

// AddNaturalJoinColumn marks a column as merged by a natural join; wildcard
// expansion skips it on this filter.
func (f *TableFilter) AddNaturalJoinColumn(col *storage.Column) {
	if f.naturalJoinCols == nil {
		f.naturalJoinCols = make(map[*storage.Column]bool)
	}
	f.naturalJoinCols[col] = true
}

func (f *TableFilter) IsNaturalJoinColumn(col *storage.Column) bool {
	return f.naturalJoinCols[col]
}

// AddFilterCondition ANDs a predicate promoted onto this filter.
func (f *TableFilter) AddFilterCondition(e expr.Expression) {
	f.filterCondition = expr.And(f.filterCondition, e)
}

func (f *TableFilter) SetScanBounds(from, to storage.Row) {
	f.scanFrom, f.scanTo = from, to
}

func (f *TableFilter) SetInComparisons()      { f.inComparisons = true }
func (f *TableFilter) HasInComparisons() bool { return f.inComparisons }

// Prepare optimizes the conditions attached to the filter chain. Called
// once during statement preparation.
func (f *TableFilter) Prepare(ec *expr.Context) error {
	var err error
	if f.filterCondition != nil {
		if f.filterCondition, err = f.filterCondition.Optimize(ec); err != nil {
			return err
		}
	}
	if f.joinCondition != nil {
		if f.joinCondition, err = f.joinCondition.Optimize(ec); err != nil {
			return err
		}
	}
	if f.nestedJoin != nil {
		if err = f.nestedJoin.Prepare(ec); err != nil {
			return err
		}
	}
	if f.join != nil {
		return f.join.Prepare(ec)
	}
	return nil
}

// JoinCondition returns the ON predicate of the join this filter is the
// right side of, or nil.
func (f *TableFilter) JoinCondition() expr.Expression { return f.joinCondition }

// LiftJoinCondition detaches the ON predicate so the caller can merge it
// into the WHERE.
func (f *TableFilter) LiftJoinCondition() expr.Expression {
	c := f.joinCondition
	f.joinCondition = nil
	return c
}

// StartQuery prepares the filter chain for a fresh execution.
func (f *TableFilter) StartQuery(session *sql.Session) {
	f.session = session
	f.lockBuffer = nil
	f.scannedRows = 0
	if f.nestedJoin != nil {
		f.nestedJoin.StartQuery(session)
	}
	if f.join != nil {
		f.join.StartQuery(session)
	}
}

// Reset rewinds the filter chain to before the first row.
func (f *TableFilter) Reset() {
	f.state = filterBeforeFirst
	f.cursor = nil
	f.currentRow = nil
	f.currentRowID = 0
	f.matched = false
	if f.nestedJoin != nil {
		f.nestedJoin.Reset()
	}
	if f.join != nil {
		f.join.Reset()
	}
}

// Lock acquires the table lock for the whole chain.
func (f *TableFilter) Lock(session *sql.Session, exclusive bool) error {
	if err := f.table.Lock(session.LockID(), exclusive); err != nil {
		return err
	}
	if f.join != nil {
		return f.join.Lock(session, exclusive)
	}
	return nil
}

// LockRowAdd buffers a row lock; LockRows installs the buffered locks all
// at once at the end of the scan.
func (f *TableFilter) LockRowAdd(ref storage.RowRef) {
	f.lockBuffer = append(f.lockBuffer, ref)
}

func (f *TableFilter) LockRows(session *sql.Session) error {
	if len(f.lockBuffer) == 0 {
		return nil
	}
	err := f.table.LockRows(session.LockID(), f.lockBuffer)
	f.lockBuffer = nil
	return err
}

// Next advances the filter chain to the next combined row, returning false
// at the end. Cancellation is checked between rows.
func (f *TableFilter) Next(ec *expr.Context) (bool, error) {
	if f.state == filterAfterLast {
		return false, nil
	}
	if f.state == filterBeforeFirst {
		f.cursor = f.index.Find(f.scanFrom, f.scanTo)
		f.matched = false
		f.currentRow = nil
		if f.join != nil {
			f.join.Reset()
		}
	}
	for {
		if err := f.session.CheckCanceled(); err != nil {
			return false, err
		}
		if f.state == filterFound && f.join != nil {
			ok, err := f.join.Next(ec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			// join exhausted for this row; fall through to advance
		}
		if f.state == filterNullRow {
			f.state = filterAfterLast
			return false, nil
		}
		if !f.cursor.Next() {
			if err := f.cursor.Err(); err != nil {
				return false, err
			}
			if f.joinOuter && !f.matched {
				// No right-side match: emit the null row once.
				f.currentRow = nil
				f.currentRowID = 0
				f.state = filterNullRow
				return true, nil
			}
			f.state = filterAfterLast
			return false, nil
		}
		f.currentRow = f.cursor.Row()
		f.currentRowID = f.cursor.RowID()
		f.scannedRows++
		ok, err := f.passesConditions(ec)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		f.matched = true
		f.state = filterFound
		if f.join == nil {
			return true, nil
		}
		f.join.Reset()
	}
}

func (f *TableFilter) passesConditions(ec *expr.Context) (bool, error) {
	if f.joinCondition != nil {
		ok, err := expr.BooleanValue(ec, f.joinCondition)
		if err != nil || !ok {
			return false, err
		}
	}
	if f.filterCondition != nil {
		ok, err := expr.BooleanValue(ec, f.filterCondition)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// CurrentRowID identifies the current row for locking.
func (f *TableFilter) CurrentRowID() int64 { return f.currentRowID }

// ScannedRows returns the number of rows read from the index so far.
func (f *TableFilter) ScannedRows() int64 { return f.scannedRows }

// ColumnResolver implementation.

func (f *TableFilter) TableAlias() string {
	if f.alias != "" {
		return f.alias
	}
	return f.table.Name()
}

func (f *TableFilter) SchemaName() string { return f.table.SchemaName() }

func (f *TableFilter) FindColumn(name string) *storage.Column {
	col := f.table.Column(name)
	if col == nil || !col.Visible {
		return nil
	}
	return col
}

func (f *TableFilter) ColumnValue(ec *expr.Context, col *storage.Column) (storage.ColumnValue, error) {
	if f.currentRow == nil {
		// Null row of an outer join, or no row positioned yet.
		return storage.Null, nil
	}
	if col.ID < 0 || col.ID >= len(f.currentRow) {
		return nil, sql.Internal("column %s out of range for table %s",
			col.Name, f.table.Name())
	}
	return f.currentRow[col.ID], nil
}
