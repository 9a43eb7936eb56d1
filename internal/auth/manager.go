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
	"errors"
	"fmt"
	"sync"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/log"
)

// Manager owns the current session and its persistence.
type Manager struct {
	cfg    SessionConfig
	store  Store
	logger *log.Logger

	mu      sync.RWMutex
	current *Session
}

// NewManager creates a manager. store may be nil, in which case sessions
// are not persisted.
func NewManager(cfg SessionConfig, store Store) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger.Scoped("auth.manager"),
	}
}

// Current returns the signed-in session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Restore loads stored credentials and makes them the current session.
// Returns ErrNotSignedIn when nothing is stored.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	if m.store == nil {
		return nil, ErrNotSignedIn
	}
	creds, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.newSession(*creds)
	if err != nil {
		return nil, err
	}
	m.setCurrent(s)
	return s, nil
}

// SignIn validates refreshToken by exchanging it for an ID token, stores
// the credentials and makes the session current.
func (m *Manager) SignIn(ctx context.Context, refreshToken string) (*Session, error) {
	s, err := m.newSession(Credentials{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	if _, err := s.Token(ctx, true); err != nil {
		m.logger.Warn("token_fetch_failed", "message", err.Error())
		return nil, fmt.Errorf("sign in: %w", err)
	}

	creds := s.Credentials()
	if m.store != nil {
		if err := m.store.Save(ctx, &creds); err != nil {
			return nil, fmt.Errorf("save credentials: %w", err)
		}
	}

	m.setCurrent(s)

	provider := creds.ProviderID
	if provider == "" {
		provider = "unknown"
	}
	m.logger.Info("signed_in", "uid", creds.UID, "providerId", provider)
	return s, nil
}

// SignOut forgets the current session and deletes stored credentials.
func (m *Manager) SignOut(ctx context.Context) error {
	m.setCurrent(nil)
	if m.store != nil {
		if err := m.store.Delete(ctx); err != nil && !errors.Is(err, ErrNotSignedIn) {
			return fmt.Errorf("delete credentials: %w", err)
		}
	}
	m.logger.Info("signed_out")
	return nil
}

// Provider returns a token provider that resolves the current session at
// call time. It reports no token when nobody is signed in.
func (m *Manager) Provider() api.TokenProvider {
	return api.TokenProviderFunc(func(ctx context.Context, forceRefresh bool) (string, error) {
		s := m.Current()
		if s == nil {
			return "", nil
		}
		return s.Token(ctx, forceRefresh)
	})
}

func (m *Manager) newSession(creds Credentials) (*Session, error) {
	s, err := NewSession(m.cfg, creds)
	if err != nil {
		return nil, err
	}
	if m.store != nil {
		s.onRotate = func(ctx context.Context, creds Credentials) {
			if err := m.store.Save(ctx, &creds); err != nil {
				m.logger.Warn("credentials_save_failed", "message", err.Error())
			}
		}
	}
	return s, nil
}

func (m *Manager) setCurrent(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}
