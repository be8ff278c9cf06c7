/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package ferrodberrs implements the closed error-code taxonomy every
// component surfaces to its caller, in the tagged-wrappable-error
// style of github.com/zeebo/errs: a Code rides along with the error
// instead of being recovered by string-matching.
package ferrodberrs

import (
	"errors"
	"fmt"
)

// Code is the closed set of error kinds every surfaced error carries.
type Code string

const (
	InvalidArgument   Code = "invalid_argument"
	NotFound          Code = "not_found"
	AlreadyExists     Code = "already_exists"
	Precondition      Code = "precondition"
	Internal          Code = "internal"
	ResourceExhausted Code = "resource_exhausted"
	PermissionDenied  Code = "permission_denied"
	Unauthenticated   Code = "unauthenticated"
	NotSupported      Code = "not_supported"
	VersionMismatch   Code = "version_mismatch"
	Aborted           Code = "aborted"
)

// Error is a coded, wrappable error. The zero value is not usable;
// always construct through one of the Code constructors below.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ferrodberrs.New(Precondition, "")) match on Code
// alone, mirroring how callers in the corpus match on sentinel classes
// rather than formatted strings.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New builds a fresh coded error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error, preserving it as the cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the Code of err, defaulting to Internal for errors
// that never went through this package (e.g. a bare panic value).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// HasCode reports whether CodeOf(err) is code: the code of the
// outermost *Error in err's chain, or Internal when there is none.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Panic wraps a recovered panic payload as an Internal error, matching
// the "task panics are caught at the boundary and surfaced as
// Internal" propagation policy.
func Panic(payload interface{}) *Error {
	return New(Internal, "panic: %v", payload)
}
