// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is the sentinel returned by collaborator lookups when
// the requested row does not exist (membership, PDU, state mapping).
// Callers distinguish "absent" from store failure with errors.Is.
var ErrNotFound = errors.New("not found")

// Standard Matrix error codes used on the federation surface.
const (
	CodeForbidden               = "M_FORBIDDEN"
	CodeNotFound                = "M_NOT_FOUND"
	CodeBadJSON                 = "M_BAD_JSON"
	CodeIncompatibleRoomVersion = "M_INCOMPATIBLE_ROOM_VERSION"
)

// Error is a structured federation rejection. Callers use errors.As to
// extract the code and status, or [IsCode] for a single-code test:
//
//	var fedErr *federation.Error
//	if errors.As(err, &fedErr) {
//	    if fedErr.Code == federation.CodeForbidden { ... }
//	}
//
// Rejections are terminal: nothing in this package retries them, and
// the transport returns them to the remote peer as-is.
type Error struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the human-readable rejection reason.
	Message string `json:"error"`
	// StatusCode is the HTTP status the transport should use.
	StatusCode int `json:"-"`
	// RoomVersion carries the room's actual version when Code is
	// M_INCOMPATIBLE_ROOM_VERSION, so the remote peer can decide
	// whether to retry with different capabilities.
	RoomVersion RoomVersion `json:"room_version,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("federation: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Forbidden builds an M_FORBIDDEN rejection (HTTP 403).
func Forbidden(format string, args ...any) *Error {
	return &Error{
		Code:       CodeForbidden,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusForbidden,
	}
}

// NotFound builds an M_NOT_FOUND rejection (HTTP 404).
func NotFound(format string, args ...any) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusNotFound,
	}
}

// BadJSON builds an M_BAD_JSON rejection (HTTP 400) for requests that
// are structurally valid but semantically malformed.
func BadJSON(format string, args ...any) *Error {
	return &Error{
		Code:       CodeBadJSON,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusBadRequest,
	}
}

// IncompatibleRoomVersion builds an M_INCOMPATIBLE_ROOM_VERSION
// rejection (HTTP 400) carrying the room's actual version.
func IncompatibleRoomVersion(version RoomVersion, format string, args ...any) *Error {
	return &Error{
		Code:        CodeIncompatibleRoomVersion,
		Message:     fmt.Sprintf(format, args...),
		StatusCode:  http.StatusBadRequest,
		RoomVersion: version,
	}
}

// IsCode checks whether err is a *Error with the given Matrix error code.
func IsCode(err error, code string) bool {
	var fedErr *Error
	if errors.As(err, &fedErr) {
		return fedErr.Code == code
	}
	return false
}
