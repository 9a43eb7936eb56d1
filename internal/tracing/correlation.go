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

package tracing

import (
	"context"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestID identifies one logical API call. Every attempt of the call
// (including a retry after a token refresh) carries the same ID.
type RequestID string

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// HeaderRequestID carries the request ID to the backend.
const HeaderRequestID = "X-Request-Id"

var (
	uuidRegex     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	fallbackRegex = regexp.MustCompile(`^req_[0-9a-z]+_[0-9a-z]{6}$`)
)

// newRandom is swapped in tests to exercise the fallback path.
var newRandom = uuid.NewRandom

// NewRequestID returns a random UUID, or a "req_<ms>_<rand>" string when the
// system random source is unavailable.
func NewRequestID() RequestID {
	id, err := newRandom()
	if err != nil {
		return fallbackRequestID(time.Now())
	}
	return RequestID(id.String())
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func fallbackRequestID(now time.Time) RequestID {
	var suffix strings.Builder
	suffix.Grow(6)
	for range 6 {
		suffix.WriteByte(base36[rand.IntN(len(base36))])
	}
	return RequestID("req_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + suffix.String())
}

// String returns the string representation of the request ID.
func (r RequestID) String() string {
	return string(r)
}

// IsValid reports whether r is either a UUID or a fallback ID.
func (r RequestID) IsValid() bool {
	s := string(r)
	return uuidRegex.MatchString(s) || fallbackRegex.MatchString(s)
}

// ToContext adds the request ID to the context.
func ToContext(ctx context.Context, id RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// FromContext returns the request ID stored in ctx, or a new one.
func FromContext(ctx context.Context) RequestID {
	if id := FromContextOrEmpty(ctx); id != "" {
		return id
	}
	return NewRequestID()
}

// FromContextOrEmpty returns the request ID stored in ctx, if any.
func FromContextOrEmpty(ctx context.Context) RequestID {
	if id, ok := ctx.Value(requestIDKey).(RequestID); ok {
		return id
	}
	return ""
}

// ExtractFromRequest reads the request ID header, as a backend would.
func ExtractFromRequest(r *http.Request) (RequestID, bool) {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return RequestID(id), true
	}
	return "", false
}

// InjectIntoRequest sets the request ID header, overriding any value the
// caller supplied.
func InjectIntoRequest(req *http.Request, id RequestID) {
	if id != "" {
		req.Header.Set(HeaderRequestID, id.String())
	}
}
