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
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/veridia-health/veridia/internal/api"
)

// JSONVersion is the envelope schema version.
const JSONVersion = "1.0"

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError represents a structured error with code, message and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     int    `json:"status,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// OK returns a success envelope for command.
func OK(command string) JSONResponse {
	return JSONResponse{Version: JSONVersion, Command: command, Success: true}
}

// EmitJSON marshals v as indented JSON to w. This ensures consistent
// formatting across all commands.
func EmitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// EmitJSONError writes a failure envelope describing err.
func EmitJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return EmitJSON(w, errorResponse{
		JSONResponse: JSONResponse{Version: JSONVersion, Command: command, Success: false},
		Errors:       []JSONError{ToJSONError(err)},
	})
}

// ToJSONError describes err. API errors contribute their type, status and
// request ID; exit errors their code and suggestion.
func ToJSONError(err error) JSONError {
	out := JSONError{Code: "error", Message: err.Error()}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		out.Code = "exit_" + strconv.Itoa(exitErr.Code)
		out.Suggestion = exitErr.Suggestion
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		out.Code = string(apiErr.Type)
		out.Status = apiErr.StatusCode
		out.RequestID = apiErr.RequestID
	}
	return out
}
