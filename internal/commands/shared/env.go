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

package shared

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/auth"
	"github.com/veridia-health/veridia/internal/config"
	"github.com/veridia-health/veridia/internal/log"
	"github.com/veridia-health/veridia/internal/tracing"
	"github.com/veridia-health/veridia/internal/transcription"
)

// Env is the wiring shared by one command invocation: configuration, the
// root logger, tracing, metrics and the session manager.
type Env struct {
	Config   *config.Config
	Logger   *log.Logger
	Registry *prometheus.Registry
	Tracing  *tracing.Provider
	Auth     *auth.Manager
	Out      io.Writer
	Err      io.Writer

	metrics *api.Metrics
}

// Setup loads configuration and builds the Env for cmd.
func Setup(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, Classify("load configuration", err)
	}
	return NewEnv(cmd, cfg)
}

// NewEnv builds an Env from an already loaded configuration.
func NewEnv(cmd *cobra.Command, cfg *config.Config) (*Env, error) {
	env := &Env{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Out:      cmd.OutOrStdout(),
		Err:      cmd.ErrOrStderr(),
	}

	lc := cfg.LogConfig()
	lc.Output = env.Err
	lc.Registerer = env.Registry
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	logger, err := log.NewFromConfig(lc)
	if err != nil {
		return nil, NewConfigError(err)
	}
	env.Logger = logger

	exporter := tracing.ExporterNone
	if GetTrace() {
		exporter = tracing.ExporterStdout
	}
	v, _, _ := GetVersion()
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "veridia",
		ServiceVersion: v,
		Exporter:       exporter,
		Writer:         env.Err,
		PrettyPrint:    true,
	})
	if err != nil {
		return nil, err
	}
	env.Tracing = tp

	env.Auth = auth.NewManager(cfg.SessionConfig(logger), auth.NewKeyringStore(cfg.Auth.KeyringService))
	env.metrics = api.NewMetrics(env.Registry)
	return env, nil
}

// TokenProvider picks the credentials for API calls. VERIDIA_TOKEN wins;
// otherwise the stored session is restored and resolved at call time.
func (e *Env) TokenProvider(ctx context.Context) api.TokenProvider {
	if os.Getenv(auth.EnvToken) != "" {
		return auth.EnvProvider(auth.EnvToken)
	}
	if _, err := e.Auth.Restore(ctx); err != nil && !errors.Is(err, auth.ErrNotSignedIn) {
		e.Logger.Scoped("cli").Warn("session_restore_failed", "message", err.Error())
	}
	return e.Auth.Provider()
}

// Client builds an API client for the configured backend.
func (e *Env) Client(ctx context.Context) (*api.Client, error) {
	return api.New(api.Config{
		BaseURL:       e.Config.API.BaseURL,
		TokenProvider: e.TokenProvider(ctx),
		Timeout:       e.Config.API.Timeout,
		Logger:        e.Logger,
		Metrics:       e.metrics,
		Tracer:        e.Tracing.Tracer("github.com/veridia-health/veridia/internal/api"),
	})
}

// Transcription builds the transcription service.
func (e *Env) Transcription(ctx context.Context) (*transcription.Service, error) {
	client, err := e.Client(ctx)
	if err != nil {
		return nil, NewConfigError(err)
	}
	return transcription.NewService(client, e.Logger), nil
}

// Close flushes logs and spans and writes metrics when --metrics-file is
// set.
func (e *Env) Close(ctx context.Context) error {
	var errs []error
	if err := e.Logger.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if path := GetMetricsFile(); path != "" {
		if err := prometheus.WriteToTextfile(path, e.Registry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
