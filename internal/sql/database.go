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

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/opaldb/opal/internal/storage"
)

// Database holds the tables visible to sessions, the database settings and
// the logger.
type Database struct {
	settings Settings
	logger   *zap.Logger

	mu     sync.RWMutex
	tables map[string]storage.Table
}

// NewDatabase creates a database with the given settings. A nil logger is
// replaced with a no-op logger.
func NewDatabase(settings Settings, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{
		settings: settings,
		logger:   logger,
		tables:   make(map[string]storage.Table),
	}
}

func (db *Database) Settings() Settings  { return db.settings }
func (db *Database) Logger() *zap.Logger { return db.logger }

// AddTable registers a table under its own name.
func (db *Database) AddTable(t storage.Table) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[db.normalize(t.Name())] = t
}

// Table returns the named table or nil.
func (db *Database) Table(name string) storage.Table {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tables[db.normalize(name)]
}

func (db *Database) normalize(name string) string {
	if db.settings.CaseInsensitiveIdentifiers {
		return strings.ToUpper(name)
	}
	return name
}

// EqualsIdentifiers compares two identifiers under the database's
// identifier rules.
func (db *Database) EqualsIdentifiers(a, b string) bool {
	if db.settings.CaseInsensitiveIdentifiers {
		return strings.EqualFold(a, b)
	}
	return a == b
}
