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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-health/veridia/internal/log"
)

// isolate points the config directory at a temp dir and clears the
// variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, name := range []string{
		"VERIDIA_API_BASE", "VERIDIA_TIMEOUT", "VERIDIA_TOKEN_URL",
		"VERIDIA_FIREBASE_API_KEY", "VERIDIA_DEBUG", "VERIDIA_LOG_LEVEL",
		"LOG_LEVEL", "LOG_FORMAT", "VERIDIA_LOG_HTTP_URL", "VERIDIA_LOG_RATE_LIMIT",
	} {
		t.Setenv(name, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBase, cfg.API.BaseURL)
	assert.Equal(t, 200*time.Second, cfg.API.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "complete", cfg.Transcription.Mode)
	assert.NotEmpty(t, cfg.Transcription.Types)
}

func TestLoad_DefaultPathFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, AppName, "config.yaml"), `
api:
  base_url: https://staging.example.com/api
  timeout: 30s
log:
  level: debug
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "unset keys keep defaults")
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "config_file", cerr.Key)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "api: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "api base and timeout",
			env:  map[string]string{"VERIDIA_API_BASE": "http://localhost:8000/api", "VERIDIA_TIMEOUT": "45s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
				assert.Equal(t, 45*time.Second, cfg.API.Timeout)
			},
		},
		{
			name: "VERIDIA_LOG_LEVEL beats LOG_LEVEL",
			env:  map[string]string{"VERIDIA_LOG_LEVEL": "WARN", "LOG_LEVEL": "error"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "warn", cfg.Log.Level)
			},
		},
		{
			name: "debug flag wins",
			env:  map[string]string{"VERIDIA_DEBUG": "true", "VERIDIA_LOG_LEVEL": "error"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Log.Level)
			},
		},
		{
			name: "remote sink and api key",
			env:  map[string]string{"VERIDIA_LOG_HTTP_URL": "https://logs.example.com/ingest", "VERIDIA_FIREBASE_API_KEY": "k"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://logs.example.com/ingest", cfg.Log.RemoteURL)
				assert.Equal(t, "k", cfg.Auth.APIKey)
			},
		},
		{
			name: "log rate limit",
			env:  map[string]string{"VERIDIA_LOG_RATE_LIMIT": "0.5"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.5, cfg.Log.RateLimit)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_InvalidTimeoutEnv(t *testing.T) {
	isolate(t)
	t.Setenv("VERIDIA_TIMEOUT", "soon")

	_, err := Load("")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "VERIDIA_TIMEOUT", cerr.Key)
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	isolate(t)
	t.Setenv("VERIDIA_LOG_RATE_LIMIT", "lots")

	_, err := Load("")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "VERIDIA_LOG_RATE_LIMIT", cerr.Key)

	t.Setenv("VERIDIA_LOG_RATE_LIMIT", "-3")
	_, err = Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Cause.Error(), "log.rate_limit")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantMsg string
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url must be an http(s) URL"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level must be one of"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format must be one of"},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, "api.timeout"},
		{"no types", func(c *Config) { c.Transcription.Types = nil }, "transcription.types"},
		{"empty type", func(c *Config) { c.Transcription.Types = []string{""} }, "transcription.types[0] is required"},
		{"bad remote url", func(c *Config) { c.Log.RemoteURL = "not a url" }, "log.remote_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadDotEnv(t *testing.T) {
	const name = "VERIDIA_DOTENV_TEST_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(name) })

	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, name+"=from-file\n")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(name))

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.API.BaseURL = "https://staging.example.com/api"
	cfg.Log.Level = "trace"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	cfg.Log.RemoteURL = "https://logs.example.com"
	cfg.Log.RateLimit = 4

	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, log.FormatJSON, lc.Format)
	assert.Equal(t, "https://logs.example.com", lc.RemoteURL)
	assert.True(t, lc.AddSource)
	assert.Equal(t, 4.0, lc.RateLimit)

	sc := cfg.SessionConfig(nil)
	assert.Equal(t, cfg.Auth.TokenURL, sc.TokenURL)
	assert.Equal(t, cfg.Auth.Timeout, sc.RefreshTimeout)

	limits := cfg.UploadLimits()
	limits.Types[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Transcription.Types[0])
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "veridia", "config.yaml"), p)

	_, err = os.Stat(filepath.Dir(p))
	assert.True(t, os.IsNotExist(err), "Path does not create the directory")

	created, err := EnsureDir()
	require.NoError(t, err)
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
