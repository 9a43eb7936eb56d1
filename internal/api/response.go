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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is a successful (2xx) API response.
type Response struct {
	// StatusCode is the final HTTP status.
	StatusCode int

	// Header contains response headers.
	Header http.Header

	// RequestID is the correlation ID sent with the call.
	RequestID string

	// Attempts is 1, or 2 when the call was retried after a token refresh.
	Attempts int

	body   []byte
	isJSON bool
	value  any
}

func newResponse(status int, header http.Header, body []byte) (*Response, error) {
	r := &Response{
		StatusCode: status,
		Header:     header,
		body:       body,
		isJSON:     strings.Contains(header.Get("Content-Type"), "application/json"),
	}
	if !r.isJSON {
		r.value = string(body)
		return r, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(body, &r.value); err != nil {
		return nil, fmt.Errorf("decode JSON response: %w", err)
	}
	return r, nil
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Response) IsJSON() bool {
	return r.isJSON
}

// Value returns the decoded JSON value (map[string]any, []any, string,
// float64, bool or nil) for JSON responses, and the body text otherwise.
func (r *Response) Value() any {
	return r.value
}

// Text returns the raw body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// Bytes returns the raw body.
func (r *Response) Bytes() []byte {
	return r.body
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if !r.isJSON {
		return &Error{
			Type:      ErrorTypeDecode,
			Message:   fmt.Sprintf("response is not JSON (Content-Type %q)", r.Header.Get("Content-Type")),
			RequestID: r.RequestID,
		}
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return &Error{
			Type:      ErrorTypeDecode,
			Message:   "invalid JSON response",
			RequestID: r.RequestID,
			Cause:     err,
		}
	}
	return nil
}
