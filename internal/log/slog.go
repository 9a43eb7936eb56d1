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
	"context"
	"log/slog"
	"sort"
)

// SlogTransport forwards events to a structured slog logger. Context keys
// are grouped under "context"; data keys are top-level attributes.
type SlogTransport struct {
	logger *slog.Logger
}

// NewSlogTransport wraps logger. A nil logger uses slog.Default().
func NewSlogTransport(logger *slog.Logger) *SlogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTransport{logger: logger}
}

// Log writes evt through the slog handler.
func (s *SlogTransport) Log(ctx context.Context, evt *Event) error {
	level := evt.Level.slogLevel()
	if !s.logger.Enabled(ctx, level) {
		return nil
	}

	attrs := make([]slog.Attr, 0, len(evt.Data)+1)
	if len(evt.Context) > 0 {
		attrs = append(attrs, slog.Any("context", sortedGroup(evt.Context)))
	}
	for _, k := range sortedKeys(evt.Data) {
		attrs = append(attrs, slog.Any(k, evt.Data[k]))
	}

	s.logger.LogAttrs(ctx, level, evt.Message, attrs...)
	return nil
}

func sortedGroup(f Fields) slog.Value {
	attrs := make([]slog.Attr, 0, len(f))
	for _, k := range sortedKeys(f) {
		attrs = append(attrs, slog.Any(k, f[k]))
	}
	return slog.GroupValue(attrs...)
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
