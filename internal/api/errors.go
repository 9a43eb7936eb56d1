// Copyright 2025 Tom Barlow
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

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies API client errors.
type ErrorType string

const (
	// ErrorTypeNoAuthToken indicates no credential was available before the
	// first attempt. No network call was made.
	ErrorTypeNoAuthToken ErrorType = "no_auth_token"

	// ErrorTypeNoAuthTokenRefresh indicates the forced refresh after a 401
	// produced no credential.
	ErrorTypeNoAuthTokenRefresh ErrorType = "no_auth_token_refresh"

	// ErrorTypeNetwork indicates the request never produced a response
	// (DNS, connection refused, reset).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeTimeout indicates the per-attempt timeout or the caller's
	// deadline expired.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeCancelled indicates the caller cancelled the context.
	ErrorTypeCancelled ErrorType = "cancelled"

	// ErrorTypeHTTP indicates a final status outside 200-299.
	ErrorTypeHTTP ErrorType = "http"

	// ErrorTypeDecode indicates a 2xx response declared JSON but did not parse.
	ErrorTypeDecode ErrorType = "decode"
)

// Sentinels for errors.Is. Any *Error of the same Type matches.
var (
	ErrNoAuthToken        = &Error{Type: ErrorTypeNoAuthToken, Message: "no auth token available"}
	ErrNoAuthTokenRefresh = &Error{Type: ErrorTypeNoAuthTokenRefresh, Message: "auth token refresh failed"}
)

// Error is returned by every Client call that fails.
type Error struct {
	// Type classifies the error.
	Type ErrorType

	// StatusCode is the final HTTP status. Zero when no response was received.
	StatusCode int

	// Message is a short description safe to show to users.
	Message string

	// Body is the raw response body text for ErrorTypeHTTP.
	Body string

	// RequestID is the correlation ID sent with the call.
	RequestID string

	// Method and Path identify the call. Path has its query string stripped.
	Method string
	Path   string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// IsType returns true if the error is of the given type.
func (e *Error) IsType(t ErrorType) bool {
	return e.Type == t
}

// IsNetwork reports whether the call failed before a response arrived.
func (e *Error) IsNetwork() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeCancelled:
		return true
	}
	return false
}

// TypeOf returns the ErrorType of err, or "" if err is not an *Error.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ""
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// classifyTransportError maps an http.Client failure to an ErrorType.
// parent is the caller's context; attempt is the per-attempt timeout context.
func classifyTransportError(parent, attempt context.Context, err error) ErrorType {
	if parentErr := parent.Err(); parentErr != nil {
		if errors.Is(parentErr, context.DeadlineExceeded) {
			return ErrorTypeTimeout
		}
		return ErrorTypeCancelled
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func errorMessage(t ErrorType) string {
	switch t {
	case ErrorTypeTimeout:
		return "request timed out"
	case ErrorTypeCancelled:
		return "request cancelled"
	default:
		return "request failed"
	}
}
