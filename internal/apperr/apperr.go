// Copyright 2026 The Doghouse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apperr defines the platform error type shared by every core
// service. Errors carry a stable machine-readable code that clients
// branch on, a human-readable message, and an optional wrapped cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Stable error codes. These are part of the public API: clients branch
// on them, so renaming one is a breaking change.
const (
	EAlreadyExists           = "already-exists"
	EInvalidParameter        = "invalid-parameter"
	EUnknownUsername         = "unknown-username"
	EInvalidPassword         = "invalid-password"
	EDisabledCredentials     = "disabled-credentials"
	EPasswordMustChange      = "password-must-change"
	EUnchallengedPassword    = "unchallenged-password"
	EForbidden               = "forbidden"
	EUnauthorized            = "unauthorized"
	EExpiredAccessToken      = "expired-access-token"
	EInvalidAccessToken      = "invalid-access-token"
	EVersionConflict         = "version-conflict"
	ENotFound                = "not-found"
	ETenantNotFound          = "tenant-not-found"
	ECredentialsNotFound     = "credentials-not-found"
	ELifetimeExceedsMaximum  = "lifetime-exceeds-maximum"
	EBatchLimitExceeded      = "batch-limit-exceeded"
	EInternal                = "internal-error"
)

// Error is the platform error. Code targets automated handlers, Msg the
// operator, and Op/Err chain errors into a logical stack trace.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// New builds an error from a code and a formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches an operation and a cause to an internal error.
func Wrap(op string, err error) *Error {
	return &Error{Code: EInternal, Op: op, Err: err}
}

// Error implements the error interface by writing out the recursive
// messages.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return fmt.Sprintf("<%s>", e.Code)
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the code of the first *Error in err's chain, or
// EInternal for non-platform errors. A nil err yields the empty string.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return EInternal
}

// ErrorMessage returns the human-readable message of the first *Error
// in err's chain, falling back to err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return ErrorCode(err) == code
}

// statusByCode maps codes to the HTTP status each surfaces by default.
// A few codes surface differently depending on the call site (see the
// transport layer); these are the defaults.
var statusByCode = map[string]int{
	EAlreadyExists:          http.StatusBadRequest,
	EInvalidParameter:       http.StatusBadRequest,
	EUnknownUsername:        http.StatusUnauthorized,
	EInvalidPassword:        http.StatusUnauthorized,
	EDisabledCredentials:    http.StatusUnauthorized,
	EPasswordMustChange:     http.StatusForbidden,
	EUnchallengedPassword:   http.StatusForbidden,
	EForbidden:              http.StatusForbidden,
	EUnauthorized:           http.StatusUnauthorized,
	EExpiredAccessToken:     http.StatusUnauthorized,
	EInvalidAccessToken:     http.StatusUnauthorized,
	EVersionConflict:        http.StatusConflict,
	ENotFound:               http.StatusNotFound,
	ETenantNotFound:         http.StatusNotFound,
	ECredentialsNotFound:    http.StatusNotFound,
	ELifetimeExceedsMaximum: http.StatusForbidden,
	EBatchLimitExceeded:     http.StatusBadRequest,
	EInternal:               http.StatusInternalServerError,
}

// HTTPStatus maps an error to the HTTP status it surfaces as.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
