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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleTransport_Format(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleTransport(&buf)

	err := c.Log(context.Background(), &Event{
		Time:    time.Date(2025, 1, 2, 15, 4, 5, 123000000, time.UTC),
		Level:   LevelWarn,
		Message: "response",
		Context: Fields{"scope": "http.client", "status": 0},
		Data:    Fields{"status": 404},
	})
	require.NoError(t, err)

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[2025-01-02T15:04:05.123Z] WARN: response "), line)
	assert.True(t, strings.HasSuffix(line, "\n"))

	payload := strings.TrimSpace(strings.TrimPrefix(line, "[2025-01-02T15:04:05.123Z] WARN: response "))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "http.client", decoded["scope"])
	assert.Equal(t, float64(404), decoded["status"], "data wins over context")
}

func TestConsoleTransport_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleTransport(&buf)

	require.NoError(t, c.Log(context.Background(), &Event{
		Time:    time.Unix(0, 0),
		Level:   LevelInfo,
		Message: "signed_out",
	}))

	assert.Equal(t, "[1970-01-01T00:00:00.000Z] INFO: signed_out\n", buf.String())
}

func TestConsoleTransport_UnknownLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleTransport(&buf, WithColor(true))

	require.NoError(t, c.Log(context.Background(), &Event{
		Time:    time.Unix(0, 0),
		Level:   Level(35),
		Message: "odd",
	}))

	assert.Contains(t, buf.String(), "LEVEL(35): odd")
}

func TestSlogTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlog(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	s := NewSlogTransport(logger)

	require.NoError(t, s.Log(context.Background(), &Event{
		Level:   LevelWarn,
		Message: "refresh_failed",
		Context: Fields{"scope": "http.client"},
		Data:    Fields{"method": "GET"},
	}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "refresh_failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, map[string]any{"scope": "http.client"}, entry["context"])
}

func TestSlogTransport_RespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlog(&Config{Level: "error", Format: FormatJSON, Output: &buf})
	s := NewSlogTransport(logger)

	require.NoError(t, s.Log(context.Background(), &Event{Level: LevelInfo, Message: "quiet"}))
	assert.Empty(t, buf.String())
}

func TestLevel_SlogMapping(t *testing.T) {
	assert.Equal(t, SlogLevelTrace, LevelTrace.slogLevel())
	assert.Equal(t, slog.LevelDebug, LevelDebug.slogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.slogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.slogLevel())
	assert.Equal(t, slog.LevelError, LevelError.slogLevel())
}
