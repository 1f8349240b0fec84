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

// SelectivityDefault is the selectivity of a column for which no statistics
// have been collected. Selectivity is the approximate percentage of distinct
// values, 1 meaning almost all rows share one value and 100 meaning all
// values are distinct.
const SelectivityDefault = 50

// Column represents a column in a table schema
type Column struct {
	ID          int    // Position of the column in the table
	Name        string // Column name
	Type        DataType
	Nullable    bool
	PrimaryKey  bool
	Visible     bool // Hidden system columns are excluded from SELECT *
	Selectivity int  // 1..100, SelectivityDefault when unknown
}

// Schema represents the structure of a table
type Schema struct {
	SchemaName string // Owning schema, e.g. "PUBLIC"
	TableName  string
	Columns    []Column
}
