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
	"encoding/json"
	"fmt"
	"net/http"
)

// Request describes one logical API call.
type Request struct {
	// Method is one of GET, POST, PUT, PATCH, DELETE.
	Method string

	// Path is resolved against the client's base URL. A query string is kept.
	Path string

	// Body is nil, a *Form, or any JSON-serializable value. []byte and
	// json.RawMessage are sent verbatim as JSON.
	Body any

	// Header holds caller headers. Authorization and X-Request-Id are
	// always overwritten by the client.
	Header http.Header
}

// RequestOption customizes a Request built by the verb helpers.
type RequestOption func(*Request)

// WithHeader sets a single caller header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// WithHeaders sets several caller headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range headers {
			WithHeader(k, v)(r)
		}
	}
}

var validMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func (r *Request) validate() error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	if !validMethods[r.Method] {
		return fmt.Errorf("invalid HTTP method: %q", r.Method)
	}
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// encodedBody is a request body rendered once and replayed per attempt.
type encodedBody struct {
	data        []byte
	contentType string
}

func encodeBody(body any) (*encodedBody, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case *Form:
		data, ct, err := b.encode()
		if err != nil {
			return nil, err
		}
		return &encodedBody{data: data, contentType: ct}, nil
	case json.RawMessage:
		return &encodedBody{data: b, contentType: "application/json"}, nil
	case []byte:
		return &encodedBody{data: b, contentType: "application/json"}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return &encodedBody{data: data, contentType: "application/json"}, nil
	}
}
