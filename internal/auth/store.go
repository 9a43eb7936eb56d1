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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNotSignedIn is returned when no stored credentials exist.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrStoreUnavailable is returned when the system keychain cannot be used.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Credentials are the persisted parts of a session.
type Credentials struct {
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid,omitempty"`
	Email        string `json:"email,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
}

// Store persists Credentials between runs.
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	Delete(ctx context.Context) error
}

const (
	// DefaultKeyringService is the keychain service name.
	DefaultKeyringService = "veridia"

	keyringAccount = "session"
)

// KeyringStore keeps credentials in the system keychain:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store under the given keychain service name.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// Load reads the stored credentials.
func (k *KeyringStore) Load(ctx context.Context) (*Credentials, error) {
	raw, err := keyring.Get(k.service, keyringAccount)
	if err != nil {
		return nil, k.wrap(err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("stored credentials are corrupt: %w", err)
	}
	if creds.RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	return &creds, nil
}

// Save writes creds, replacing any previous entry.
func (k *KeyringStore) Save(ctx context.Context, creds *Credentials) error {
	if creds == nil || creds.RefreshToken == "" {
		return fmt.Errorf("refresh token is required")
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.service, keyringAccount, string(raw)); err != nil {
		return k.wrap(err)
	}
	return nil
}

// Delete removes the stored credentials. Deleting nothing is not an error.
func (k *KeyringStore) Delete(ctx context.Context) error {
	err := keyring.Delete(k.service, keyringAccount)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return k.wrap(err)
}

func (k *KeyringStore) wrap(err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotSignedIn
	}
	if isKeychainUnavailableError(err) {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, err.Error())
	}
	return fmt.Errorf("keychain error: %w", err)
}

// isKeychainUnavailableError checks if an error indicates the keychain is
// locked or inaccessible.
func isKeychainUnavailableError(err error) bool {
	errStr := strings.ToLower(err.Error())

	for _, indicator := range []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
