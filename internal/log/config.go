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
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Format represents the console output format.
type Format string

const (
	// FormatConsole writes "[ts] LEVEL: msg {payload}" lines.
	FormatConsole Format = "console"
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in slog's key=value format.
	FormatText Format = "text"
)

// DefaultApp is the app name attached to every event from the root logger.
const DefaultApp = "veridia"

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, silent).
	// Default: info
	Level string

	// Format sets the local output format (console, json, text).
	// Default: console
	Format Format

	// Output is the writer for local log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to json/text logs.
	// Default: false
	AddSource bool

	// RemoteURL enables the batching HTTP transport when set.
	RemoteURL string

	// BatchSize and FlushInterval tune the HTTP transport.
	BatchSize     int
	FlushInterval time.Duration

	// RateLimit caps HTTP transport POSTs per second. Zero disables limiting.
	// Default: DefaultRateLimit
	RateLimit float64

	// App is attached to every event's context.
	// Default: veridia
	App string

	// Registerer receives transport metrics (optional).
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:         "info",
		Format:        FormatConsole,
		Output:        os.Stderr,
		AddSource:     false,
		BatchSize:     DefaultBatchSize,
		FlushInterval: DefaultFlushInterval,
		RateLimit:     DefaultRateLimit,
		App:           DefaultApp,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - VERIDIA_DEBUG: true/1 to enable debug level and source logging (takes precedence)
//   - VERIDIA_LOG_LEVEL: trace, debug, info, warn, error, silent (takes precedence over LOG_LEVEL)
//   - LOG_LEVEL: same values (default: info)
//   - LOG_FORMAT: console, json, text (default: console)
//   - LOG_SOURCE: 1 to enable source file/line (default: 0)
//   - VERIDIA_LOG_HTTP_URL: remote sink for batched events (default: none)
//   - VERIDIA_LOG_RATE_LIMIT: remote POSTs per second, 0 disables (default: 2)
func FromEnv() *Config {
	cfg := DefaultConfig()

	// VERIDIA_DEBUG enables debug logging and source information
	debug := os.Getenv("VERIDIA_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	if debug == "" {
		if level := os.Getenv("VERIDIA_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv("LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	if remote := os.Getenv("VERIDIA_LOG_HTTP_URL"); remote != "" {
		cfg.RemoteURL = remote
	}

	if limit := os.Getenv("VERIDIA_LOG_RATE_LIMIT"); limit != "" {
		if v, err := strconv.ParseFloat(limit, 64); err == nil && v >= 0 {
			cfg.RateLimit = v
		}
	}

	return cfg
}

// NewSlog creates a structured slog logger from the given configuration.
// Format console is treated as text here.
func NewSlog(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level.slogLevel(),
		AddSource: cfg.AddSource,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

// NewFromConfig builds the root event logger: a local transport chosen by
// Format, plus the batching HTTP transport when RemoteURL is set.
// Callers must Close the returned logger at teardown.
func NewFromConfig(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var local Transport
	switch cfg.Format {
	case FormatConsole, "":
		local = NewConsoleTransport(cfg.Output)
	case FormatJSON, FormatText:
		local = NewSlogTransport(NewSlog(cfg))
	default:
		return nil, fmt.Errorf("unknown log format %q (must be console, json, or text)", cfg.Format)
	}

	transports := []Transport{local}

	if cfg.RemoteURL != "" {
		var metrics *TransportMetrics
		if cfg.Registerer != nil {
			metrics = NewTransportMetrics(cfg.Registerer)
		}
		remote, err := NewHTTPTransport(HTTPTransportConfig{
			URL:           cfg.RemoteURL,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			RateLimit:     rate.Limit(cfg.RateLimit),
			Metrics:       metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("remote log transport: %w", err)
		}
		transports = append(transports, remote)
	}

	app := cfg.App
	if app == "" {
		app = DefaultApp
	}

	return New(Options{
		Level:      level,
		Context:    Fields{AppKey: app},
		Transports: transports,
	}), nil
}
