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
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-health/veridia/internal/log"
)

// tokenServer mimics the secure token endpoint. Each refresh returns a
// signed ID token that expires after ttl.
type tokenServer struct {
	*httptest.Server
	hits     atomic.Int32
	ttl      time.Duration
	rotateTo string
	status   int
	release  chan struct{}

	mu        sync.Mutex
	lastForm  map[string]string
	lastQuery string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{ttl: time.Hour, status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.hits.Add(1)
		if ts.release != nil {
			<-ts.release
		}

		_ = r.ParseForm()
		ts.mu.Lock()
		ts.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
		}
		ts.lastQuery = r.URL.RawQuery
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"TOKEN_EXPIRED"}`))
			return
		}

		idToken := signedIDToken(t, fmt.Sprintf("id-%d", n), time.Now().Add(ts.ttl))
		body := map[string]any{
			"access_token": idToken,
			"id_token":     idToken,
			"token_type":   "Bearer",
			"expires_in":   fmt.Sprint(int(ts.ttl.Seconds())),
			"user_id":      "uid-123",
		}
		if ts.rotateTo != "" {
			body["refresh_token"] = ts.rotateTo
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func signedIDToken(t *testing.T, jti string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "uid-123",
		"user_id": "uid-123",
		"email":   "ana.garcia@clinic.com",
		"jti":     jti,
		"exp":     exp.Unix(),
		"firebase": map[string]any{
			"sign_in_provider": "google.com",
		},
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func newTestSession(t *testing.T, ts *tokenServer, logger *log.Logger) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		TokenURL: ts.URL + "/v1/token",
		APIKey:   "web-key",
		Logger:   logger,
	}, Credentials{RefreshToken: "rt-1"})
	require.NoError(t, err)
	return s
}

func TestSession_FirstTokenRefreshes(t *testing.T) {
	ts := newTokenServer(t)
	s := newTestSession(t, ts, nil)

	tok, err := s.Token(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, int32(1), ts.hits.Load())

	ts.mu.Lock()
	assert.Equal(t, "refresh_token", ts.lastForm["grant_type"])
	assert.Equal(t, "rt-1", ts.lastForm["refresh_token"])
	assert.Equal(t, "key=web-key", ts.lastQuery)
	ts.mu.Unlock()

	creds := s.Credentials()
	assert.Equal(t, "uid-123", creds.UID)
	assert.Equal(t, "ana.garcia@clinic.com", creds.Email)
	assert.Equal(t, "google.com", creds.ProviderID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Expiry(), 5*time.Second)
}

func TestSession_CachedTokenNeedsNoNetwork(t *testing.T) {
	ts := newTokenServer(t)
	s := newTestSession(t, ts, nil)
	ctx := context.Background()

	first, err := s.Token(ctx, false)
	require.NoError(t, err)
	second, err := s.Token(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), ts.hits.Load())
}

func TestSession_ForceAlwaysRefreshes(t *testing.T) {
	ts := newTokenServer(t)
	s := newTestSession(t, ts, nil)
	ctx := context.Background()

	first, err := s.Token(ctx, false)
	require.NoError(t, err)
	forced, err := s.Token(ctx, true)
	require.NoError(t, err)

	assert.NotEqual(t, first, forced)
	assert.Equal(t, int32(2), ts.hits.Load())
}

func TestSession_NearExpiryRefreshes(t *testing.T) {
	ts := newTokenServer(t)
	ts.ttl = 2 * time.Minute // inside the default 5m leeway
	s := newTestSession(t, ts, nil)
	ctx := context.Background()

	_, err := s.Token(ctx, false)
	require.NoError(t, err)
	_, err = s.Token(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, int32(2), ts.hits.Load())
}

func TestSession_ConcurrentRefreshesCoalesce(t *testing.T) {
	ts := newTokenServer(t)
	ts.release = make(chan struct{})
	s := newTestSession(t, ts, nil)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.Token(context.Background(), true)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}

	require.Eventually(t, func() bool { return ts.hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(ts.release)
	wg.Wait()

	assert.Equal(t, int32(1), ts.hits.Load())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestSession_RefreshFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest

	rec := &recorder{}
	logger := log.New(log.Options{Level: log.LevelTrace, Transports: []log.Transport{rec}})
	s := newTestSession(t, ts, logger)

	tok, err := s.Token(context.Background(), true)
	assert.Error(t, err)
	assert.Empty(t, tok)

	require.Equal(t, []string{"token_refresh_failed"}, rec.messages())
	assert.Equal(t, log.LevelWarn, rec.events[0].Level)
	assert.Equal(t, LogScope, rec.events[0].Context[log.ScopeKey])
}

func TestSession_LogsRefresh(t *testing.T) {
	ts := newTokenServer(t)
	rec := &recorder{}
	logger := log.New(log.Options{Level: log.LevelDebug, Transports: []log.Transport{rec}})
	s := newTestSession(t, ts, logger)

	_, err := s.Token(context.Background(), true)
	require.NoError(t, err)

	require.Equal(t, []string{"token_refreshed"}, rec.messages())
	assert.Equal(t, "uid-123", rec.events[0].Data["uid"])
}

func TestSession_RotatedRefreshTokenIsKept(t *testing.T) {
	ts := newTokenServer(t)
	ts.rotateTo = "rt-2"
	s := newTestSession(t, ts, nil)

	var rotated Credentials
	s.onRotate = func(_ context.Context, c Credentials) { rotated = c }

	_, err := s.Token(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, "rt-2", s.Credentials().RefreshToken)
	assert.Equal(t, "rt-2", rotated.RefreshToken)

	_, err = s.Token(context.Background(), true)
	require.NoError(t, err)
	ts.mu.Lock()
	assert.Equal(t, "rt-2", ts.lastForm["refresh_token"])
	ts.mu.Unlock()
}

func TestSession_CallerCancelDoesNotBreakSharedRefresh(t *testing.T) {
	ts := newTokenServer(t)
	ts.release = make(chan struct{})
	s := newTestSession(t, ts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Token(ctx, true)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return ts.hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(ts.release)
	require.Eventually(t, func() bool {
		tok, ok := s.cached()
		return ok && tok != ""
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(SessionConfig{}, Credentials{})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{TokenURL: "ftp://x"}, Credentials{RefreshToken: "rt"})
	assert.Error(t, err)
}

func TestParseClaims(t *testing.T) {
	tok := signedIDToken(t, "a", time.Unix(2000000000, 0))
	c := parseClaims(tok)
	assert.Equal(t, "uid-123", c.uid())
	assert.Equal(t, "google.com", c.provider())

	exp, err := c.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, int64(2000000000), exp.Unix())

	assert.Empty(t, parseClaims("opaque-token"))
	assert.Empty(t, parseClaims("a.b.c"))
}
