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
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemTable is an in-memory table with ordered secondary indexes. It backs
// the executor in tests and in the demo tooling; a disk-backed engine
// plugs in behind the same Table interface.
type MemTable struct {
	schema  Schema
	columns []*Column

	mu        sync.Mutex
	rows      []memRow
	nextRowID int64
	modID     int64

	scan    *MemIndex
	indexes []Index

	lockHolder    int64
	lockExclusive bool
	rowLocks      map[int64]int64

	selectTriggers []func()
}

type memRow struct {
	id     int64
	values Row
}

// NewMemTable creates an empty table for the given schema. Column IDs are
// assigned by position; unset selectivity defaults to SelectivityDefault.
func NewMemTable(schema Schema) *MemTable {
	t := &MemTable{
		schema:    schema,
		nextRowID: 1,
		rowLocks:  make(map[int64]int64),
	}
	t.columns = make([]*Column, len(schema.Columns))
	for i := range schema.Columns {
		c := &t.schema.Columns[i]
		c.ID = i
		if c.Selectivity == 0 {
			c.Selectivity = SelectivityDefault
		}
		t.columns[i] = c
	}
	t.scan = &MemIndex{
		name:  schema.TableName + ".tableScan",
		table: t,
		typ:   IndexType{Scan: true},
	}
	return t
}

func (t *MemTable) Name() string       { return t.schema.TableName }
func (t *MemTable) SchemaName() string {
	if t.schema.SchemaName == "" {
		return "PUBLIC"
	}
	return t.schema.SchemaName
}
func (t *MemTable) Schema() Schema     { return t.schema }
func (t *MemTable) Columns() []*Column { return t.columns }

func (t *MemTable) Column(name string) *Column {
	for _, c := range t.columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (t *MemTable) RowCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.rows))
}

// Insert appends a row. Short rows are padded with NULL.
func (t *MemTable) Insert(row Row) error {
	if len(row) > len(t.columns) {
		return fmt.Errorf("row has %d values, table %s has %d columns",
			len(row), t.Name(), len(t.columns))
	}
	stored := make(Row, len(t.columns))
	for i := range stored {
		if i < len(row) && row[i] != nil {
			stored[i] = row[i]
		} else {
			stored[i] = Null
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, memRow{id: t.nextRowID, values: stored})
	t.nextRowID++
	t.modID++
	for _, idx := range t.indexes {
		idx.(*MemIndex).invalidate()
	}
	return nil
}

// CreateIndex adds an ordered index over the named columns. sortTypes may
// be nil for all-ascending.
func (t *MemTable) CreateIndex(name string, columnNames []string, unique bool, sortTypes []int) (Index, error) {
	cols := make([]IndexColumn, len(columnNames))
	for i, cn := range columnNames {
		c := t.Column(cn)
		if c == nil {
			return nil, fmt.Errorf("column %s not found in table %s", cn, t.Name())
		}
		st := Ascending
		if sortTypes != nil {
			st = sortTypes[i]
		}
		cols[i] = IndexColumn{Column: c, SortType: st}
	}
	idx := &MemIndex{
		name:  name,
		table: t,
		cols:  cols,
		typ:   IndexType{Unique: unique},
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes = append(t.indexes, idx)
	return idx, nil
}

func (t *MemTable) ScanIndex() Index { return t.scan }

func (t *MemTable) Indexes() []Index {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Index, 0, len(t.indexes)+1)
	out = append(out, t.scan)
	out = append(out, t.indexes...)
	return out
}

func (t *MemTable) IndexForColumn(col *Column, needFindNext bool) Index {
	for _, idx := range t.Indexes() {
		it := idx.Type()
		if it.Scan || it.Hash {
			continue
		}
		cols := idx.Columns()
		if len(cols) == 0 || cols[0] != col {
			continue
		}
		if needFindNext && !idx.CanFindNext() {
			continue
		}
		return idx
	}
	return nil
}

func (t *MemTable) Lock(sessionID int64, exclusive bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lockHolder != 0 && t.lockHolder != sessionID && (exclusive || t.lockExclusive) {
		return fmt.Errorf("table %s is locked by another session", t.Name())
	}
	if exclusive || t.lockHolder == 0 {
		t.lockHolder = sessionID
		t.lockExclusive = exclusive
	}
	return nil
}

func (t *MemTable) Unlock(sessionID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lockHolder == sessionID {
		t.lockHolder = 0
		t.lockExclusive = false
	}
	for id, holder := range t.rowLocks {
		if holder == sessionID {
			delete(t.rowLocks, id)
		}
	}
}

func (t *MemTable) LockRows(sessionID int64, refs []RowRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ref := range refs {
		if holder, ok := t.rowLocks[ref.RowID]; ok && holder != sessionID {
			return fmt.Errorf("row %d of table %s is locked by another session",
				ref.RowID, t.Name())
		}
	}
	for _, ref := range refs {
		t.rowLocks[ref.RowID] = sessionID
	}
	return nil
}

// RowLockCount returns the number of row locks held on this table.
func (t *MemTable) RowLockCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rowLocks)
}

func (t *MemTable) MaxDataModificationID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modID
}

func (t *MemTable) IsDeterministic() bool { return true }

// AddSelectTrigger registers a callback fired before each SELECT on the
// table.
func (t *MemTable) AddSelectTrigger(fn func()) {
	t.selectTriggers = append(t.selectTriggers, fn)
}

func (t *MemTable) FireBeforeSelect() {
	for _, fn := range t.selectTriggers {
		fn()
	}
}

// snapshot returns the current rows in insertion order.
func (t *MemTable) snapshot() []memRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]memRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// MemIndex is an ordered index over a MemTable, kept as a snapshot of the
// table's rows sorted by the index columns. It is rebuilt lazily after
// inserts.
type MemIndex struct {
	name  string
	table *MemTable
	cols  []IndexColumn
	typ   IndexType

	mu      sync.Mutex
	built   bool
	ordered []memRow
}

func (i *MemIndex) Name() string  { return i.name }
func (i *MemIndex) Table() Table  { return i.table }
func (i *MemIndex) Type() IndexType { return i.typ }

func (i *MemIndex) Columns() []*Column {
	cols := make([]*Column, len(i.cols))
	for j, ic := range i.cols {
		cols[j] = ic.Column
	}
	return cols
}

func (i *MemIndex) IndexColumns() []IndexColumn { return i.cols }

func (i *MemIndex) RowCount() int64 { return i.table.RowCount() }

func (i *MemIndex) IsRowIDIndex() bool { return i.typ.Scan }

func (i *MemIndex) CreateSQL() string {
	if i.typ.Scan {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if i.typ.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	sb.WriteString(i.name)
	sb.WriteString(" ON ")
	sb.WriteString(i.table.Name())
	sb.WriteByte('(')
	for j, ic := range i.cols {
		if j > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ic.Column.Name)
		if ic.SortType&Descending != 0 {
			sb.WriteString(" DESC")
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func (i *MemIndex) invalidate() {
	i.mu.Lock()
	i.built = false
	i.mu.Unlock()
}

// compareAt orders two rows by the index columns, honoring per-column sort
// type. NULL sorts first on ascending columns, last on descending ones.
func (i *MemIndex) compareAt(a, b Row) int {
	for _, ic := range i.cols {
		av := a[ic.Column.ID]
		bv := b[ic.Column.ID]
		c := compareWithNulls(av, bv)
		if c == 0 {
			continue
		}
		if ic.SortType&Descending != 0 {
			c = -c
		}
		return c
	}
	return 0
}

func compareWithNulls(a, b ColumnValue) int {
	an := a == nil || a.IsNull()
	bn := b == nil || b.IsNull()
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	c, err := a.Compare(b)
	if err != nil {
		return 0
	}
	return c
}

func (i *MemIndex) build() []memRow {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.built {
		return i.ordered
	}
	rows := i.table.snapshot()
	if !i.typ.Scan {
		sort.SliceStable(rows, func(a, b int) bool {
			return i.compareAt(rows[a].values, rows[b].values) < 0
		})
	}
	i.ordered = rows
	i.built = true
	return i.ordered
}

// boundCompare compares row values against a bound on the prefix of index
// columns the bound provides non-nil values for.
func (i *MemIndex) boundCompare(values Row, bound Row) int {
	for _, ic := range i.cols {
		if ic.Column.ID >= len(bound) || bound[ic.Column.ID] == nil {
			break
		}
		c := compareWithNulls(values[ic.Column.ID], bound[ic.Column.ID])
		if c == 0 {
			continue
		}
		if ic.SortType&Descending != 0 {
			c = -c
		}
		return c
	}
	return 0
}

func (i *MemIndex) Find(first, last Row) Cursor {
	rows := i.build()
	return &memCursor{
		index: i,
		rows:  rows,
		first: first,
		last:  last,
		pos:   -1,
	}
}

func (i *MemIndex) CanFindNext() bool { return !i.typ.Scan && !i.typ.Hash }

func (i *MemIndex) FindNext(first Row) Cursor {
	rows := i.build()
	pos := 0
	if first != nil && len(i.cols) > 0 {
		lead := i.cols[0]
		from := first[lead.Column.ID]
		pos = sort.Search(len(rows), func(j int) bool {
			c := compareWithNulls(rows[j].values[lead.Column.ID], from)
			if lead.SortType&Descending != 0 {
				c = -c
			}
			return c > 0
		})
	}
	return &memCursor{index: i, rows: rows, pos: pos - 1, single: true}
}

func (i *MemIndex) First() (Row, bool) {
	rows := i.build()
	if len(i.cols) == 0 {
		return nil, false
	}
	lead := i.cols[0].Column
	for _, r := range rows {
		if r.values[lead.ID] != nil && !r.values[lead.ID].IsNull() {
			return r.values, true
		}
	}
	return nil, false
}

func (i *MemIndex) Last() (Row, bool) {
	rows := i.build()
	if len(i.cols) == 0 {
		return nil, false
	}
	lead := i.cols[0].Column
	for j := len(rows) - 1; j >= 0; j-- {
		if rows[j].values[lead.ID] != nil && !rows[j].values[lead.ID].IsNull() {
			return rows[j].values, true
		}
	}
	return nil, false
}

// memCursor walks the ordered entries of a MemIndex, bounded by optional
// first/last rows. With single set it emits at most one row (FindNext).
type memCursor struct {
	index   *MemIndex
	rows    []memRow
	first   Row
	last    Row
	pos     int
	single  bool
	yielded bool
}

func (c *memCursor) Next() bool {
	if c.single && c.yielded {
		return false
	}
	for {
		c.pos++
		if c.pos >= len(c.rows) {
			return false
		}
		values := c.rows[c.pos].values
		if c.first != nil && c.index.boundCompare(values, c.first) < 0 {
			continue
		}
		if c.last != nil && c.index.boundCompare(values, c.last) > 0 {
			return false
		}
		c.yielded = true
		return true
	}
}

func (c *memCursor) Row() Row {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos].values
}

func (c *memCursor) RowID() int64 {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0
	}
	return c.rows[c.pos].id
}

func (c *memCursor) Err() error { return nil }
