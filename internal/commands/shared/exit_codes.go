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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/auth"
	"github.com/veridia-health/veridia/internal/config"
	"github.com/veridia-health/veridia/internal/transcription"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitFailed       = 1
	ExitInvalidInput = 2
	ExitNotSignedIn  = 3
	ExitAPIError     = 4
	ExitNetworkError = 5
	ExitConfigError  = 78 // EX_CONFIG from sysexits.h
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code       int
	Message    string
	Suggestion string
	Cause      error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewInvalidInputError creates an error for bad arguments or files
func NewInvalidInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidInput,
		Message: msg,
		Cause:   cause,
	}
}

// NewNotSignedInError creates an error for commands that need a session
func NewNotSignedInError(cause error) *ExitError {
	return &ExitError{
		Code:       ExitNotSignedIn,
		Message:    "not signed in",
		Suggestion: "Run 'veridia auth login' or set " + auth.EnvToken,
		Cause:      cause,
	}
}

// NewConfigError creates an error for configuration problems
func NewConfigError(cause error) *ExitError {
	return &ExitError{
		Code:       ExitConfigError,
		Message:    "invalid configuration",
		Suggestion: "Check 'veridia config show' and your VERIDIA_* environment variables",
		Cause:      cause,
	}
}

// Classify wraps err in an ExitError whose code follows the error's type.
// ExitErrors pass through unchanged.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var cfgErr *config.Error
	switch {
	case errors.As(err, &cfgErr):
		return NewConfigError(err)
	case errors.Is(err, auth.ErrNotSignedIn),
		errors.Is(err, api.ErrNoAuthToken),
		errors.Is(err, api.ErrNoAuthTokenRefresh):
		return NewNotSignedInError(err)
	case errors.Is(err, transcription.ErrUnsupportedType),
		errors.Is(err, transcription.ErrTooLarge),
		errors.Is(err, transcription.ErrEmpty):
		return NewInvalidInputError(msg, err)
	}

	switch api.TypeOf(err) {
	case api.ErrorTypeNetwork, api.ErrorTypeTimeout:
		return &ExitError{
			Code:       ExitNetworkError,
			Message:    msg,
			Suggestion: "Check your connection, or raise the timeout with VERIDIA_TIMEOUT",
			Cause:      err,
		}
	case api.ErrorTypeHTTP, api.ErrorTypeDecode:
		return &ExitError{Code: ExitAPIError, Message: msg, Cause: err}
	}
	return &ExitError{Code: ExitFailed, Message: msg, Cause: err}
}

// HandleExitError prints err and exits with its code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(PrintExitError(os.Stderr, err))
}

// PrintExitError writes err, and its suggestion if any, to w. It returns
// the exit code for err.
func PrintExitError(w io.Writer, err error) int {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(w, RenderError(err.Error()))
		return ExitFailed
	}

	fmt.Fprintln(w, RenderError(exitErr.Error()))
	if exitErr.Suggestion != "" {
		fmt.Fprintf(w, "\n%s %s\n", Muted.Render("Suggestion:"), exitErr.Suggestion)
	}
	return exitErr.Code
}
