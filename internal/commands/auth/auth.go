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

// Package auth implements the auth command group: login, logout and status.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridia-health/veridia/internal/auth"
	"github.com/veridia-health/veridia/internal/commands/shared"
)

// EnvRefreshToken supplies the refresh token to login without a prompt.
const EnvRefreshToken = "VERIDIA_REFRESH_TOKEN"

// NewCommand creates the auth command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in session",
		Long: `Sign in with a refresh token, check the current session, or sign out.

The refresh token is kept in the system keychain. Set VERIDIA_TOKEN to use
a fixed ID token instead of a stored session.`,
	}

	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newStatusCommand())
	return cmd
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with a refresh token",
		Long: `Exchange a refresh token for an ID token and store the session.

The token is read from ` + EnvRefreshToken + ` when set, otherwise from stdin.
On a terminal the input is not echoed.`,
		Example: `  veridia auth login
  pbpaste | veridia auth login`,
		Args: cobra.NoArgs,
		RunE: shared.WithEnv("auth login", func(ctx context.Context, env *shared.Env, _ []string) error {
			return runLogin(ctx, env, os.Stdin)
		}),
	}
}

func runLogin(ctx context.Context, env *shared.Env, in *os.File) error {
	token := os.Getenv(EnvRefreshToken)
	if token == "" {
		var err error
		token, err = shared.ReadSecret(in, env.Err, "Refresh token: ")
		if err != nil {
			return shared.NewInvalidInputError("refresh token required", err)
		}
	}

	s, err := env.Auth.SignIn(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			return &shared.ExitError{
				Code:       shared.ExitFailed,
				Message:    "cannot store the session",
				Suggestion: "Unlock the system keychain, or use VERIDIA_TOKEN for this shell",
				Cause:      err,
			}
		}
		return shared.Classify("sign in failed", err)
	}

	creds := s.Credentials()
	if shared.GetJSON() {
		return shared.EmitJSON(env.Out, statusJSON{
			JSONResponse: shared.OK("auth login"),
			SignedIn:     true,
			Source:       "keychain",
			UID:          creds.UID,
			Email:        creds.Email,
			Provider:     creds.ProviderID,
			Expires:      formatExpiry(s.Expiry()),
		})
	}
	fmt.Fprintln(env.Out, shared.RenderOK(fmt.Sprintf("Signed in as %s", displayName(creds))))
	return nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: shared.WithEnv("auth logout", func(ctx context.Context, env *shared.Env, _ []string) error {
			if err := env.Auth.SignOut(ctx); err != nil {
				return shared.Classify("sign out failed", err)
			}
			if shared.GetJSON() {
				return shared.EmitJSON(env.Out, shared.OK("auth logout"))
			}
			fmt.Fprintln(env.Out, shared.RenderOK("Signed out"))
			return nil
		}),
	}
}

type statusJSON struct {
	shared.JSONResponse
	SignedIn bool   `json:"signed_in"`
	Source   string `json:"source,omitempty"`
	UID      string `json:"uid,omitempty"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
	Expires  string `json:"expires,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Show who is signed in. With --check the session is refreshed against the
token endpoint, which confirms the refresh token is still accepted.`,
		Args: cobra.NoArgs,
		RunE: shared.WithEnv("auth status", func(ctx context.Context, env *shared.Env, _ []string) error {
			return runStatus(ctx, env, check)
		}),
	}
	cmd.Flags().BoolVar(&check, "check", false, "Refresh the token to verify the session")
	return cmd
}

func runStatus(ctx context.Context, env *shared.Env, check bool) error {
	if os.Getenv(auth.EnvToken) != "" {
		if shared.GetJSON() {
			return shared.EmitJSON(env.Out, statusJSON{JSONResponse: shared.OK("auth status"), SignedIn: true, Source: "env"})
		}
		fmt.Fprintln(env.Out, shared.RenderOK("Using token from "+auth.EnvToken))
		return nil
	}

	s, err := env.Auth.Restore(ctx)
	if err != nil {
		return shared.Classify("no session", err)
	}
	if check {
		if _, err := s.Token(ctx, true); err != nil {
			return shared.NewNotSignedInError(err)
		}
	}

	creds := s.Credentials()
	if shared.GetJSON() {
		return shared.EmitJSON(env.Out, statusJSON{
			JSONResponse: shared.OK("auth status"),
			SignedIn:     true,
			Source:       "keychain",
			UID:          creds.UID,
			Email:        creds.Email,
			Provider:     creds.ProviderID,
			Expires:      formatExpiry(s.Expiry()),
		})
	}

	fmt.Fprintln(env.Out, shared.RenderOK("Signed in as "+displayName(creds)))
	if creds.UID != "" {
		fmt.Fprintln(env.Out, "  "+shared.RenderKV("uid", creds.UID))
	}
	if creds.ProviderID != "" {
		fmt.Fprintln(env.Out, "  "+shared.RenderKV("provider", creds.ProviderID))
	}
	if exp := formatExpiry(s.Expiry()); exp != "" {
		fmt.Fprintln(env.Out, "  "+shared.RenderKV("token expires", exp))
	}
	return nil
}

func displayName(c auth.Credentials) string {
	switch {
	case c.Email != "":
		return c.Email
	case c.UID != "":
		return c.UID
	default:
		return "unknown user"
	}
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
