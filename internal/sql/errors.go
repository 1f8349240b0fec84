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
	"github.com/cockroachdb/errors"
)

// Code identifies a class of engine error. User-visible errors carry one of
// these codes; collaborator errors propagate unchanged.
type Code string

const (
	CodeInvalidValue           Code = "INVALID_VALUE"
	CodeTableOrViewNotFound    Code = "TABLE_OR_VIEW_NOT_FOUND"
	CodeWithTiesWithoutOrderBy Code = "WITH_TIES_WITHOUT_ORDER_BY"
	CodeOrderByNotInResult     Code = "ORDER_BY_NOT_IN_RESULT"
	CodeColumnNotFound         Code = "COLUMN_NOT_FOUND"
	CodeParameterNotSet        Code = "PARAMETER_NOT_SET"
	CodeFeatureNotSupported    Code = "FEATURE_NOT_SUPPORTED"
	CodeStatementCanceled      Code = "STATEMENT_CANCELED"
	CodeInternal               Code = "INTERNAL"
)

var codeMarkers = map[Code]error{
	CodeInvalidValue:           errors.New(string(CodeInvalidValue)),
	CodeTableOrViewNotFound:    errors.New(string(CodeTableOrViewNotFound)),
	CodeWithTiesWithoutOrderBy: errors.New(string(CodeWithTiesWithoutOrderBy)),
	CodeOrderByNotInResult:     errors.New(string(CodeOrderByNotInResult)),
	CodeColumnNotFound:         errors.New(string(CodeColumnNotFound)),
	CodeParameterNotSet:        errors.New(string(CodeParameterNotSet)),
	CodeFeatureNotSupported:    errors.New(string(CodeFeatureNotSupported)),
	CodeStatementCanceled:      errors.New(string(CodeStatementCanceled)),
	CodeInternal:               errors.New(string(CodeInternal)),
}

// NewError creates an error of the given code.
func NewError(code Code, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), codeMarkers[code])
}

// InvalidValue reports a user-supplied value outside its legal range, for
// example an ORDER BY position or a FETCH PERCENT argument.
func InvalidValue(what string, value interface{}) error {
	return NewError(CodeInvalidValue, "invalid value %v for %s", value, what)
}

// Unsupported reports a feature combination the engine does not implement.
func Unsupported(what string) error {
	return NewError(CodeFeatureNotSupported, "feature not supported: %s", what)
}

// Internal reports a broken engine invariant, such as a statement bound
// twice.
func Internal(format string, args ...interface{}) error {
	return errors.Mark(
		errors.AssertionFailedf(format, args...),
		codeMarkers[CodeInternal],
	)
}

// HasCode reports whether err carries the given engine error code.
func HasCode(err error, code Code) bool {
	marker, ok := codeMarkers[code]
	return ok && errors.Is(err, marker)
}
