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
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// isoMillis matches the ISO-8601 form with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var levelStyles = map[Level]lipgloss.Style{
	LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

// ConsoleTransport writes one human-readable line per event:
//
//	[2025-01-02T15:04:05.000Z] INFO: message {"key":"value"}
//
// The payload is the event context merged with its data. Known levels are
// colored when the output is a terminal; anything else is written plain.
type ConsoleTransport struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// ConsoleOption configures a ConsoleTransport.
type ConsoleOption func(*ConsoleTransport)

// WithColor forces colored output on or off.
func WithColor(enabled bool) ConsoleOption {
	return func(c *ConsoleTransport) {
		c.color = enabled
	}
}

// NewConsoleTransport creates a console transport writing to out
// (os.Stderr when nil). Color is enabled when out is a terminal.
func NewConsoleTransport(out io.Writer, opts ...ConsoleOption) *ConsoleTransport {
	if out == nil {
		out = os.Stderr
	}
	c := &ConsoleTransport{out: out}
	if f, ok := out.(*os.File); ok {
		c.color = term.IsTerminal(int(f.Fd()))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Log formats and writes evt synchronously.
func (c *ConsoleTransport) Log(_ context.Context, evt *Event) error {
	var buf bytes.Buffer

	buf.WriteByte('[')
	buf.WriteString(evt.Time.UTC().Format(isoMillis))
	buf.WriteString("] ")
	buf.WriteString(c.renderLevel(evt.Level))
	buf.WriteString(": ")
	buf.WriteString(evt.Message)

	if payload := evt.Payload(); len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		buf.WriteByte(' ')
		buf.Write(data)
	}
	buf.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.out.Write(buf.Bytes())
	return err
}

func (c *ConsoleTransport) renderLevel(level Level) string {
	name := strings.ToUpper(level.String())
	if !c.color {
		return name
	}
	style, ok := levelStyles[level]
	if !ok {
		return name
	}
	return style.Render(name)
}
