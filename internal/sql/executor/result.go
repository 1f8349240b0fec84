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
	"github.com/opaldb/opal/internal/storage"
)

// Result is a stream of rows produced by a statement. Materialized and lazy
// results implement the same pull protocol; the caller cannot tell them
// apart except that only materialized results report a row count up front.
type Result interface {
	// Next advances to the next row, returning false at the end or on
	// error.
	Next() bool

	// Row returns the current row, trimmed to the visible columns.
	Row() storage.Row

	// ColumnCount returns the number of visible columns.
	ColumnCount() int

	// ColumnNames returns the output column names.
	ColumnNames() []string

	// Reset rewinds the result to before the first row.
	Reset() error

	// Close releases the result's resources. Safe to call more than once.
	Close()

	// Err returns the error that terminated iteration, if any.
	Err() error
}

// ResultTarget receives rows from a query executed on behalf of another
// statement, e.g. INSERT ... SELECT.
type ResultTarget interface {
	AddRow(row storage.Row) error
	RowCount() int64

	// LimitsWereApplied tells the target that offset and limit were already
	// enforced while producing the rows.
	LimitsWereApplied()
}

// rowSink is what the execution strategies write to: either a LocalResult
// or a caller-supplied target wrapped for streaming.
type rowSink interface {
	AddRow(row storage.Row) error
	RowCount() int64
	LimitsWereApplied()
}

// targetSink adapts a ResultTarget to the strategy-facing sink.
type targetSink struct {
	target ResultTarget
}

func (t *targetSink) AddRow(row storage.Row) error { return t.target.AddRow(row) }
func (t *targetSink) RowCount() int64              { return t.target.RowCount() }
func (t *targetSink) LimitsWereApplied()           { t.target.LimitsWereApplied() }
