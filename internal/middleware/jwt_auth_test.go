package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestJWTMiddleware(t *testing.T, enabled bool) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("secret-password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		Enabled:           enabled,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-signing-secret",
		JWTExpiryHours:    1,
		SkipPaths:         []string{"/health", "/auth/*"},
	})
}

func TestJWTAuthMiddleware_RejectsMissingToken(t *testing.T) {
	m := newTestJWTMiddleware(t, true)
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conflicts", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthMiddleware_AcceptsValidToken(t *testing.T) {
	m := newTestJWTMiddleware(t, true)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var user string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conflicts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if user != "admin" {
		t.Errorf("user from context = %q, want %q", user, "admin")
	}
}

func TestJWTAuthMiddleware_RejectsTamperedToken(t *testing.T) {
	m := newTestJWTMiddleware(t, true)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conflicts", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthMiddleware_RejectsUnsignedToken(t *testing.T) {
	m := newTestJWTMiddleware(t, true)

	// A token claiming alg "none" must never pass, whatever its payload says.
	claims := UserClaims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := m.ValidateToken(unsigned); err == nil {
		t.Error("unsigned token validated, want rejection")
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	m := newTestJWTMiddleware(t, true)
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/auth/login"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200 without token", path, w.Code)
		}
	}
}

func TestJWTAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	m := newTestJWTMiddleware(t, false)
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conflicts", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth disabled", w.Code)
	}
}

func TestValidateCredentials(t *testing.T) {
	m := newTestJWTMiddleware(t, true)

	if !m.ValidateCredentials("admin", "secret-password") {
		t.Error("valid credentials rejected")
	}
	if m.ValidateCredentials("admin", "wrong") {
		t.Error("wrong password accepted")
	}
	if m.ValidateCredentials("root", "secret-password") {
		t.Error("wrong username accepted")
	}
}
