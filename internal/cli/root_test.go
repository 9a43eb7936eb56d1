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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/veridia-health/veridia/internal/commands/shared"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "veridia" {
		t.Errorf("expected use 'veridia', got %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("expected short description to be set")
	}
	if cmd.Long == "" {
		t.Error("expected long description to be set")
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"verbose", "quiet", "json", "config", "trace", "metrics-file"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("%s flag not registered", name)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	defer SetVersion("dev", "unknown", "unknown")

	v, c, b := GetVersion()
	if v != "1.2.3" || c != "abc123" || b != "2025-12-22" {
		t.Errorf("GetVersion() = %q, %q, %q", v, c, b)
	}
}

func TestNewApp_Subcommands(t *testing.T) {
	app := NewApp()
	for _, name := range []string{"transcribe", "me", "auth", "config", "version"} {
		found, _, err := app.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

// backend is a fake Veridia API. Setting unauthorized rejects the next
// call with 401.
type backend struct {
	*httptest.Server
	hits         atomic.Int32
	unauthorized atomic.Bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		if b.unauthorized.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer env-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/me":
			_, _ = io.WriteString(w, `{"uid":"u1","email":"ana@clinic.com"}`)
		case "/api/transcribe", "/api/transcribe-simple":
			if _, _, err := r.FormFile("file"); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"extracted_data":{"motivo_consulta":"cefalea","plan":["reposo","ibuprofeno"]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.Close)
	return b
}

// execute runs the app with args in an isolated environment.
func execute(t *testing.T, apiBase string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	keyring.MockInit()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("VERIDIA_API_BASE", apiBase)
	for _, name := range []string{"VERIDIA_DEBUG", "VERIDIA_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "VERIDIA_LOG_HTTP_URL", "VERIDIA_LOG_RATE_LIMIT", "VERIDIA_TIMEOUT"} {
		t.Setenv(name, "")
	}

	var out, errOut bytes.Buffer
	app := NewApp()
	app.SetOut(&out)
	app.SetErr(&errOut)
	app.SetArgs(args)
	err = app.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

var wavData = append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consulta.wav")
	require.NoError(t, os.WriteFile(path, wavData, 0o600))
	return path
}

func TestTranscribe_EnvTokenCannotRefresh(t *testing.T) {
	b := newBackend(t)
	b.unauthorized.Store(true)
	t.Setenv("VERIDIA_TOKEN", "env-token")

	// An env token cannot be refreshed, so the 401 ends the call.
	_, _, err := execute(t, b.URL+"/api", "transcribe", writeWAV(t), "--quiet")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotSignedIn, exitCode(err))
	assert.Equal(t, int32(1), b.hits.Load())
}

func TestTranscribe_PrintsSections(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "env-token")

	out, _, err := execute(t, b.URL+"/api", "transcribe", writeWAV(t), "--quiet")
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, "Motivo Consulta"), strings.Index(out, "Plan"))
	assert.Contains(t, out, "cefalea")
	assert.Contains(t, out, "- ibuprofeno")
}

func TestTranscribe_JSONAndOutputFile(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "env-token")
	dest := filepath.Join(t.TempDir(), "record.json")

	out, _, err := execute(t, b.URL+"/api", "transcribe", writeWAV(t), "--simple", "--json", "-o", dest)
	require.NoError(t, err)

	var resp struct {
		Success bool           `json:"success"`
		Mode    string         `json:"mode"`
		Record  map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "simple", resp.Mode)
	assert.Equal(t, "cefalea", resp.Record["motivo_consulta"])

	saved, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"motivo_consulta":"cefalea","plan":["reposo","ibuprofeno"]}`, string(saved))
}

func TestTranscribe_RejectsUnsupportedFile(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "env-token")
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hola"), 0o600))

	_, _, err := execute(t, b.URL+"/api", "transcribe", path)
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, exitCode(err))
	assert.Zero(t, b.hits.Load())
}

func TestTranscribe_NotSignedIn(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "")

	out, _, err := execute(t, b.URL+"/api", "transcribe", writeWAV(t), "--json")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotSignedIn, exitCode(err))
	assert.Zero(t, b.hits.Load(), "no request without a token")
	assert.Contains(t, out, `"code": "no_auth_token"`)
}

func TestMe(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "env-token")

	out, _, err := execute(t, b.URL+"/api", "me")
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, "ana@clinic.com")
}

func TestAuthStatus_EnvToken(t *testing.T) {
	t.Setenv("VERIDIA_TOKEN", "env-token")

	out, _, err := execute(t, "https://api.example.com/api", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "VERIDIA_TOKEN")
}

func TestAuthStatus_SignedOut(t *testing.T) {
	t.Setenv("VERIDIA_TOKEN", "")

	_, _, err := execute(t, "https://api.example.com/api", "auth", "status")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotSignedIn, exitCode(err))
}

func TestConfigShow_MasksAPIKey(t *testing.T) {
	t.Setenv("VERIDIA_FIREBASE_API_KEY", "super-secret")

	out, _, err := execute(t, "https://api.example.com/api", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: https://api.example.com/api")
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "[REDACTED]")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, _, err := execute(t, "https://api.example.com/api", "config", "init", "--config", path, "-q")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = execute(t, "https://api.example.com/api", "config", "init", "--config", path)
	assert.Equal(t, shared.ExitInvalidInput, exitCode(err))
}

func TestVersion(t *testing.T) {
	SetVersion("1.0.0", "test123", "2025-12-22")
	defer SetVersion("dev", "unknown", "unknown")

	out, _, err := execute(t, "https://api.example.com/api", "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "test123", info["commit"])
}

func TestMetricsFile(t *testing.T) {
	b := newBackend(t)
	t.Setenv("VERIDIA_TOKEN", "env-token")
	path := filepath.Join(t.TempDir(), "metrics.prom")

	_, _, err := execute(t, b.URL+"/api", "me", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "veridia_api_")
}

func exitCode(err error) int {
	return shared.PrintExitError(io.Discard, err)
}
