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
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var nextSessionSerial atomic.Int64

// Session is a single connection to the database. A session executes one
// statement at a time on one goroutine; the cancel flag is the only field
// touched from outside.
type Session struct {
	id     uuid.UUID
	serial int64
	db     *Database

	lazyQueryExecution bool
	sampleSize         int

	canceled atomic.Bool

	// currentRowNumber is the 1-based number of the row the running
	// statement is processing, for progress reporting.
	currentRowNumber int64
}

// NewSession opens a session on the database.
func NewSession(db *Database) *Session {
	return &Session{
		id:     uuid.New(),
		serial: nextSessionSerial.Add(1),
		db:     db,
	}
}

func (s *Session) ID() uuid.UUID       { return s.id }
func (s *Session) Database() *Database { return s.db }
func (s *Session) Logger() *zap.Logger { return s.db.Logger() }

// LockID identifies this session to the lock manager.
func (s *Session) LockID() int64 { return s.serial }

func (s *Session) IsLazyQueryExecution() bool { return s.lazyQueryExecution }
func (s *Session) SetLazyQueryExecution(b bool) {
	s.lazyQueryExecution = b
}

// SampleSize caps the number of condition-passing rows a scan reads;
// 0 means unlimited.
func (s *Session) SampleSize() int    { return s.sampleSize }
func (s *Session) SetSampleSize(n int) { s.sampleSize = n }

// Cancel requests cancellation of the running statement. Safe to call from
// another goroutine.
func (s *Session) Cancel() { s.canceled.Store(true) }

// ClearCancel resets the cancel flag before a new statement runs.
func (s *Session) ClearCancel() { s.canceled.Store(false) }

// CheckCanceled returns an error if the session was canceled. Scans call
// this between rows.
func (s *Session) CheckCanceled() error {
	if s.canceled.Load() {
		return NewError(CodeStatementCanceled, "statement was canceled")
	}
	return nil
}

func (s *Session) SetCurrentRowNumber(n int64) { s.currentRowNumber = n }
func (s *Session) CurrentRowNumber() int64     { return s.currentRowNumber }
