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
package sql

// Settings are the database settings consulted by the planner and the
// executor. They are fixed at database creation.
type Settings struct {
	// OptimizeInsertFromSelect streams rows straight into a caller-supplied
	// target instead of materializing them first.
	OptimizeInsertFromSelect bool

	// OptimizeDistinct enables the single-column indexed DISTINCT scan.
	OptimizeDistinct bool

	// OptimizeEvaluatableSubqueries allows subquery results to be treated
	// as evaluatable expressions during planning.
	OptimizeEvaluatableSubqueries bool

	// SelectForUpdateMvcc buffers row locks during a FOR UPDATE scan
	// instead of taking an exclusive table lock, when the store is
	// multi-versioned.
	SelectForUpdateMvcc bool

	// MVStore marks the backing store as multi-versioned.
	MVStore bool

	// CaseInsensitiveIdentifiers controls identifier comparison during
	// binding.
	CaseInsensitiveIdentifiers bool
}

// DefaultSettings returns the settings a fresh database runs with.
func DefaultSettings() Settings {
	return Settings{
		OptimizeInsertFromSelect:      true,
		OptimizeDistinct:              true,
		OptimizeEvaluatableSubqueries: true,
		SelectForUpdateMvcc:           true,
		MVStore:                       true,
		CaseInsensitiveIdentifiers:    true,
	}
}
