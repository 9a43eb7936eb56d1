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

// Package config loads veridia settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/auth"
	"github.com/veridia-health/veridia/internal/log"
	"github.com/veridia-health/veridia/internal/transcription"
)

// DefaultAPIBase is the production backend.
const DefaultAPIBase = "https://backend-veridia-health.onrender.com/api"

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Error describes a configuration problem.
type Error struct {
	// Key is the offending setting (e.g. "api.base_url") or a load phase.
	Key string

	// Reason explains what's wrong.
	Reason string

	// Cause is the underlying error.
	Cause error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config is the complete veridia configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Auth          AuthConfig          `yaml:"auth"`
	Log           LogConfig           `yaml:"log"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

// APIConfig configures the backend client.
type APIConfig struct {
	// BaseURL is the API root. Environment: VERIDIA_API_BASE
	BaseURL string `yaml:"base_url" validate:"required,http_url"`

	// Timeout bounds each attempt of a request. Environment: VERIDIA_TIMEOUT
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// AuthConfig configures refresh-token sessions.
type AuthConfig struct {
	// TokenURL is the refresh endpoint. Environment: VERIDIA_TOKEN_URL
	TokenURL string `yaml:"token_url" validate:"required,http_url"`

	// APIKey is the web API key sent to the token endpoint.
	// Environment: VERIDIA_FIREBASE_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout bounds one refresh call.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// KeyringService names the keychain entry holding the session.
	KeyringService string `yaml:"keyring_service" validate:"required"`
}

// LogConfig configures the event logger.
type LogConfig struct {
	// Level is the minimum level. Environment: VERIDIA_LOG_LEVEL, LOG_LEVEL
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error silent"`

	// Format is the console output format. Environment: LOG_FORMAT
	Format string `yaml:"format" validate:"oneof=console json text"`

	// RemoteURL enables the HTTP transport. Environment: VERIDIA_LOG_HTTP_URL
	RemoteURL string `yaml:"remote_url,omitempty" validate:"omitempty,http_url"`

	// BatchSize and FlushInterval tune the HTTP transport.
	BatchSize     int           `yaml:"batch_size" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gt=0"`

	// RateLimit caps HTTP transport POSTs per second; 0 disables the cap.
	// Environment: VERIDIA_LOG_RATE_LIMIT
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
}

// TranscriptionConfig constrains uploads.
type TranscriptionConfig struct {
	// Mode is the default analysis mode (complete or simple).
	Mode string `yaml:"mode" validate:"oneof=complete simple"`

	// MaxSize is the largest accepted recording in bytes.
	MaxSize int64 `yaml:"max_size" validate:"gt=0"`

	// Types lists accepted MIME types.
	Types []string `yaml:"types" validate:"min=1,dive,required"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultAPIBase,
			Timeout: api.DefaultTimeout,
		},
		Auth: AuthConfig{
			TokenURL:       auth.DefaultTokenURL,
			Timeout:        auth.DefaultRefreshTimeout,
			KeyringService: auth.DefaultKeyringService,
		},
		Log: LogConfig{
			Level:         "info",
			Format:        string(log.FormatConsole),
			BatchSize:     log.DefaultBatchSize,
			FlushInterval: log.DefaultFlushInterval,
			RateLimit:     log.DefaultRateLimit,
		},
		Transcription: TranscriptionConfig{
			Mode:    string(transcription.ModeComplete),
			MaxSize: transcription.DefaultMaxSize,
			Types:   append([]string(nil), transcription.DefaultTypes...),
		},
	}
}

// Load builds the configuration. Values come from defaults, then the YAML
// file at configPath (skipped when empty, or when the default path does not
// exist), then a .env file in the working directory, then the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		p, err := Path()
		if err == nil {
			configPath = p
		}
	}
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, &Error{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", configPath),
					Cause:  err,
				}
			}
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, &Error{Key: "dotenv", Reason: "failed to read .env", Cause: err}
	}

	cfg.applyDefaults()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &Error{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// loadDotEnv exports variables from path without overriding ones already
// set. A missing file is ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = d.API.Timeout
	}
	if c.Auth.TokenURL == "" {
		c.Auth.TokenURL = d.Auth.TokenURL
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = d.Auth.Timeout
	}
	if c.Auth.KeyringService == "" {
		c.Auth.KeyringService = d.Auth.KeyringService
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.BatchSize == 0 {
		c.Log.BatchSize = d.Log.BatchSize
	}
	if c.Log.FlushInterval == 0 {
		c.Log.FlushInterval = d.Log.FlushInterval
	}
	if c.Transcription.Mode == "" {
		c.Transcription.Mode = d.Transcription.Mode
	}
	if c.Transcription.MaxSize == 0 {
		c.Transcription.MaxSize = d.Transcription.MaxSize
	}
	if len(c.Transcription.Types) == 0 {
		c.Transcription.Types = d.Transcription.Types
	}
}

func (c *Config) loadFromEnv() error {
	if val := os.Getenv("VERIDIA_API_BASE"); val != "" {
		c.API.BaseURL = val
	}
	if val := os.Getenv("VERIDIA_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return &Error{Key: "VERIDIA_TIMEOUT", Reason: fmt.Sprintf("invalid duration %q", val), Cause: err}
		}
		c.API.Timeout = d
	}
	if val := os.Getenv("VERIDIA_TOKEN_URL"); val != "" {
		c.Auth.TokenURL = val
	}
	if val := os.Getenv("VERIDIA_FIREBASE_API_KEY"); val != "" {
		c.Auth.APIKey = val
	}

	// VERIDIA_DEBUG takes precedence over explicit levels.
	if debug := os.Getenv("VERIDIA_DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		c.Log.Level = "debug"
	} else if val := os.Getenv("VERIDIA_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("VERIDIA_LOG_HTTP_URL"); val != "" {
		c.Log.RemoteURL = val
	}
	if val := os.Getenv("VERIDIA_LOG_RATE_LIMIT"); val != "" {
		limit, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &Error{Key: "VERIDIA_LOG_RATE_LIMIT", Reason: fmt.Sprintf("invalid number %q", val), Cause: err}
		}
		c.Log.RateLimit = limit
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(msgs, "\n  - "))
}

// describe renders a field error using the YAML key path.
func describe(fe validator.FieldError) string {
	key := yamlPath(fe.StructNamespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fmt.Sprint(fe.Value()))
	case "http_url":
		return fmt.Sprintf("%s must be an http(s) URL, got %q", key, fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value())
	}
}

var yamlKeys = map[string]string{
	"API":            "api",
	"BaseURL":        "base_url",
	"Timeout":        "timeout",
	"Auth":           "auth",
	"TokenURL":       "token_url",
	"APIKey":         "api_key",
	"KeyringService": "keyring_service",
	"Log":            "log",
	"Level":          "level",
	"Format":         "format",
	"RemoteURL":      "remote_url",
	"BatchSize":      "batch_size",
	"FlushInterval":  "flush_interval",
	"RateLimit":      "rate_limit",
	"Transcription":  "transcription",
	"Mode":           "mode",
	"MaxSize":        "max_size",
	"Types":          "types",
}

func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		if k, ok := yamlKeys[name]; ok {
			name = k
		}
		if index != "" {
			name += "[" + index
		}
		parts[i] = name
	}
	return strings.Join(parts, ".")
}

// Save writes the configuration as YAML to path, creating parent
// directories with owner-only permissions.
func (c *Config) Save(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LogConfig converts the log settings for log.NewFromConfig.
func (c *Config) LogConfig() *log.Config {
	lc := log.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = log.Format(c.Log.Format)
	lc.RemoteURL = c.Log.RemoteURL
	lc.BatchSize = c.Log.BatchSize
	lc.FlushInterval = c.Log.FlushInterval
	lc.RateLimit = c.Log.RateLimit
	if c.Log.Level == "debug" || c.Log.Level == "trace" {
		lc.AddSource = true
	}
	return lc
}

// SessionConfig converts the auth settings for auth.NewManager.
func (c *Config) SessionConfig(logger *log.Logger) auth.SessionConfig {
	return auth.SessionConfig{
		TokenURL:       c.Auth.TokenURL,
		APIKey:         c.Auth.APIKey,
		RefreshTimeout: c.Auth.Timeout,
		Logger:         logger,
	}
}

// UploadLimits converts the transcription settings for transcription.Validate.
func (c *Config) UploadLimits() transcription.Limits {
	return transcription.Limits{
		Types:   append([]string(nil), c.Transcription.Types...),
		MaxSize: c.Transcription.MaxSize,
	}
}
