// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/auth/memory"
	"github.com/stockroom/stockroom/internal/httpapi"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if err := auth.ValidatePasswordStrength(password); err != nil {
		return "", err
	}
	return "plain:" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

type apiFixture struct {
	handler http.Handler
	sink    *mailRecorder
}

type mailRecorder struct {
	mu   sync.Mutex
	body string
}

func (m *mailRecorder) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = body
	return nil
}

var resetLinkRe = regexp.MustCompile(`href="([^"]+)"`)

func (m *mailRecorder) token(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	match := resetLinkRe.FindStringSubmatch(m.body)
	require.Len(t, match, 2)
	link, err := url.Parse(match[1])
	require.NoError(t, err)
	return link.Query().Get("token")
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	directory := memory.NewDirectory(plainHasher{})
	issuer, err := auth.NewTokenIssuer(auth.SessionConfig{Secret: "test-secret"})
	require.NoError(t, err)
	manager, err := auth.NewResetTokenManager(directory)
	require.NoError(t, err)

	sink := &mailRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewServiceWithLogger(directory, issuer, manager, sink, "https://app.example.com", logger)
	require.NoError(t, err)

	srv, err := httpapi.New("127.0.0.1:0", svc, issuer, nil, logger)
	require.NoError(t, err)

	return &apiFixture{handler: srv.Handler(), sink: sink}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "kim@example.com",
		"password": "secret123",
		"fullName": "Kim Reyes",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("creates an account", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "kim@example.com",
			"password": "secret123",
			"fullName": "Kim Reyes",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_ALREADY_EXISTS")
	})

	t.Run("invalid role is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "kim@example.com",
			"password": "secret123",
			"fullName": "Kim Reyes",
			"role":     "wizard",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_INVALID_ROLE")
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
			"email": "not-an-email",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("sets the session cookie", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "kim@example.com",
			"password": "secret123",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		cookie := sessionCookie(t, rec)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

		var resp struct {
			Profile auth.Profile `json:"profile"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "kim@example.com", resp.Profile.Email)
		assert.Equal(t, auth.RoleCandidate, resp.Profile.Role)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "kim@example.com",
			"password": "wrong-pass",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("unknown account is unauthorized, not 404", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "nobody@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestMeEndpoint(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a garbage cookie", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/auth/me", nil,
			&http.Cookie{Name: auth.SessionCookieName, Value: "garbage"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns the profile for a valid session", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		login := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "kim@example.com",
			"password": "secret123",
		})
		require.Equal(t, http.StatusOK, login.Code)
		cookie := sessionCookie(t, login)

		rec := f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var profile auth.Profile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
		assert.Equal(t, "kim@example.com", profile.Email)
		assert.Equal(t, "Kim Reyes", profile.FullName)
	})
}

func TestPasswordResetEndpoints(t *testing.T) {
	t.Run("full reset flow", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "kim@example.com",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		token := f.sink.token(t)

		rec = f.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
			"email":       "kim@example.com",
			"token":       token,
			"newPassword": "newsecret456",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// Old password no longer works, new one does.
		rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "kim@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "kim@example.com",
			"password": "newsecret456",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown email on request is 404", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "nobody@example.com",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_NOT_FOUND")
	})

	t.Run("repeat request conflicts while pending", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "kim@example.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "kim@example.com",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "RESET_ALREADY_PENDING")
	})

	t.Run("used token is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "kim@example.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		token := f.sink.token(t)

		rec = f.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
			"email":       "kim@example.com",
			"token":       token,
			"newPassword": "newsecret456",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
			"email":       "kim@example.com",
			"token":       token,
			"newPassword": "thirdsecret789",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "RESET_TOKEN_USED")
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		f.register(t)

		rec := f.do(t, http.MethodPost, "/api/auth/request-password-reset", map[string]string{
			"email": "kim@example.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
			"email":       "kim@example.com",
			"token":       "deadbeef",
			"newPassword": "newsecret456",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "RESET_TOKEN_INVALID")
	})
}
