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

package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/veridia-health/veridia/internal/log"
)

const (
	// DefaultTokenURL is the Firebase secure token endpoint.
	DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	// DefaultLeeway is how long before expiry a cached token stops being used.
	DefaultLeeway = 5 * time.Minute

	// DefaultRefreshTimeout bounds one call to the token endpoint.
	DefaultRefreshTimeout = 15 * time.Second

	// LogScope is the scope attached to session log events.
	LogScope = "auth.session"
)

// SessionConfig configures how sessions refresh their ID tokens.
type SessionConfig struct {
	// TokenURL is the refresh endpoint (default: DefaultTokenURL).
	TokenURL string

	// APIKey is appended to TokenURL as ?key=.
	APIKey string

	// HTTPClient performs refresh calls (default: http.DefaultClient).
	HTTPClient *http.Client

	// Leeway before expiry (default: 5m).
	Leeway time.Duration

	// RefreshTimeout bounds one refresh (default: 15s).
	RefreshTimeout time.Duration

	// Logger receives token lifecycle events (default: discard).
	Logger *log.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Leeway == 0 {
		c.Leeway = DefaultLeeway
	}
	if c.RefreshTimeout == 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	return c
}

func (c SessionConfig) endpoint() (string, error) {
	u, err := url.Parse(c.TokenURL)
	if err != nil {
		return "", fmt.Errorf("invalid token URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("token URL must start with http:// or https://")
	}
	if c.APIKey != "" {
		q := u.Query()
		q.Set("key", c.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Session is a signed-in user. It implements api.TokenProvider: cached ID
// tokens are served without network I/O until they near expiry, and
// concurrent refreshes share one call to the token endpoint.
type Session struct {
	conf    *oauth2.Config
	http    *http.Client
	logger  *log.Logger
	leeway  time.Duration
	timeout time.Duration
	now     func() time.Time

	// onRotate is called when the endpoint issues a new refresh token.
	onRotate func(ctx context.Context, creds Credentials)

	group singleflight.Group

	mu      sync.Mutex
	creds   Credentials
	idToken string
	expiry  time.Time
}

// NewSession creates a session from stored credentials. No network call is
// made until the first Token.
func NewSession(cfg SessionConfig, creds Credentials) (*Session, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	cfg = cfg.withDefaults()
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}

	return &Session{
		conf: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  endpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:    cfg.HTTPClient,
		logger:  cfg.Logger.Scoped(LogScope),
		leeway:  cfg.Leeway,
		timeout: cfg.RefreshTimeout,
		now:     time.Now,
		creds:   creds,
	}, nil
}

// Credentials returns a copy of the session's current credentials.
func (s *Session) Credentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// UID returns the signed-in user's ID, if known.
func (s *Session) UID() string {
	return s.Credentials().UID
}

// Expiry returns the expiry of the cached ID token (zero if none).
func (s *Session) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// Token returns an ID token. With forceRefresh false a cached token that is
// valid for longer than the leeway is returned as is.
func (s *Session) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
	}

	ch := s.group.DoChan("refresh", func() (any, error) {
		return s.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idToken == "" {
		return "", false
	}
	return s.idToken, s.now().Add(s.leeway).Before(s.expiry)
}

// refresh exchanges the refresh token for a new ID token. It runs detached
// from the caller's cancellation because other callers may share it.
func (s *Session) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)

	s.mu.Lock()
	refreshToken := s.creds.RefreshToken
	s.mu.Unlock()

	tok, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.logger.Warn("token_refresh_failed", "message", err.Error(), "uid", s.UID())
		return "", fmt.Errorf("refresh ID token: %w", err)
	}

	idToken := tok.AccessToken
	if v, ok := tok.Extra("id_token").(string); ok && v != "" {
		idToken = v
	}

	claims := parseClaims(idToken)
	expiry := tok.Expiry
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}

	s.mu.Lock()
	s.idToken = idToken
	s.expiry = expiry
	if uid := claims.uid(); uid != "" {
		s.creds.UID = uid
	}
	if email, _ := claims["email"].(string); email != "" {
		s.creds.Email = email
	}
	if provider := claims.provider(); provider != "" {
		s.creds.ProviderID = provider
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != s.creds.RefreshToken
	if rotated {
		s.creds.RefreshToken = tok.RefreshToken
	}
	creds := s.creds
	onRotate := s.onRotate
	s.mu.Unlock()

	if rotated && onRotate != nil {
		onRotate(ctx, creds)
	}

	s.logger.Debug("token_refreshed", "uid", creds.UID)
	return idToken, nil
}

// idClaims are the unverified claims of an ID token.
type idClaims jwt.MapClaims

func (c idClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.MapClaims(c).GetExpirationTime()
}

func (c idClaims) uid() string {
	if uid, ok := c["user_id"].(string); ok && uid != "" {
		return uid
	}
	sub, _ := c["sub"].(string)
	return sub
}

func (c idClaims) provider() string {
	fb, ok := c["firebase"].(map[string]any)
	if !ok {
		return ""
	}
	p, _ := fb["sign_in_provider"].(string)
	return p
}

// parseClaims reads claims without verifying the signature. Opaque tokens
// yield no claims.
func parseClaims(token string) idClaims {
	if strings.Count(token, ".") != 2 {
		return idClaims{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return idClaims{}
	}
	return idClaims(claims)
}
