package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/provanto/provanto/internal/api"
	"github.com/provanto/provanto/internal/middleware"
	"github.com/provanto/provanto/internal/testhelpers"
)

func setupAuthTest(t *testing.T) (*middleware.JWTAuthMiddleware, *http.ServeMux) {
	t.Helper()
	hash, err := middleware.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    24,
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth, 24).SetupRoutes(mux)
	return jwtAuth, mux
}

func TestLogin(t *testing.T) {
	jwtAuth, mux := setupAuthTest(t)

	var resp api.LoginResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin", Password: "correct-horse"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be set")
	}

	claims, err := jwtAuth.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("token username = %s, want admin", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, mux := setupAuthTest(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin", Password: "wrong"}).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "intruder", Password: "correct-horse"}).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin"}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestVerify(t *testing.T) {
	_, mux := setupAuthTest(t)

	// Without an authenticated context the endpoint reports unauthorized.
	testhelpers.NewHTTPTestContext(t, "GET", "/auth/verify", nil).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)

	// With the user injected the way the auth middleware does it.
	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/auth/verify", nil)
	ctx.Request = ctx.Request.WithContext(
		context.WithValue(ctx.Request.Context(), middleware.UserContextKey, "admin"))
	ctx.Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"username":"admin"`)
}

func TestHealthEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler("1.2.3").SetupRoutes(mux)

	testhelpers.NewHTTPTestContext(t, "GET", "/health", nil).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"status":"ok"`).
		AssertBodyContains(`"version":"1.2.3"`)
}
