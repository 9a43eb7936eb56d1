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

package log

import (
	"fmt"
	"log/slog"
	"time"
)

// Standard field keys shared by the HTTP client and domain wrappers.
const (
	RequestIDKey = "requestId"
	MethodKey    = "method"
	PathKey      = "path"
	StatusKey    = "status"
	DurationKey  = "durationMs"
	AttemptKey   = "attempt"
	ScopeKey     = "scope"
	AppKey       = "app"
)

// Fields is a string-keyed payload attached to an event.
type Fields map[string]any

// Merge returns a new Fields with other's keys laid over f's.
func (f Fields) Merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Event is a single log record. It is created per Log call and handed to
// every transport; transports must treat it as read-only.
type Event struct {
	Time    time.Time `json:"ts"`
	Level   Level     `json:"level"`
	Message string    `json:"msg"`
	Context Fields    `json:"context,omitempty"`
	Data    Fields    `json:"data,omitempty"`
}

// Payload returns context merged with data, data winning on collisions.
func (e *Event) Payload() Fields {
	return e.Context.Merge(e.Data)
}

const badKey = "!BADKEY"

// fieldsFromArgs turns slog-style alternating key/value arguments into Fields.
// slog.Attr values are accepted as well. Returns nil when args is empty.
func fieldsFromArgs(args []any) Fields {
	if len(args) == 0 {
		return nil
	}
	f := make(Fields, len(args)/2+1)
	for len(args) > 0 {
		switch key := args[0].(type) {
		case slog.Attr:
			f[key.Key] = key.Value.Any()
			args = args[1:]
		case string:
			if len(args) == 1 {
				f[badKey] = key
				return f
			}
			f[key] = args[1]
			args = args[2:]
		default:
			f[badKey] = fmt.Sprint(key)
			args = args[1:]
		}
	}
	return f
}
