package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "hospital-idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles:      []string{RolePharmacist},
		Facilities: []string{"f-1"},
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var seen echo.Context
	err := mw(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return httpErr.Code
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	if statusOf(t, err) != http.StatusUnauthorized {
		t.Error("expected 401")
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(header, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), header)
			if statusOf(t, err) != http.StatusUnauthorized {
				t.Error("expected 401")
			}
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, validClaims(), testSigningKey)
	c, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hospital-idp"}), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "user-1" {
		t.Errorf("expected user-1, got %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePharmacist {
		t.Errorf("unexpected roles %v", roles)
	}
	if f := FacilitiesFromContext(ctx); len(f) != 1 || f[0] != "f-1" {
		t.Errorf("unexpected facilities %v", f)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := validClaims()
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", createTestToken(t, validClaims(), []byte("other-key"))},
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"missing exp", createTestToken(t, noExp, testSigningKey)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tt.token)
			if statusOf(t, err) != http.StatusUnauthorized {
				t.Error("expected 401")
			}
		})
	}
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	tok := createTestToken(t, validClaims(), testSigningKey)
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "someone-else"}), "Bearer "+tok)
	if statusOf(t, err) != http.StatusUnauthorized {
		t.Error("expected 401")
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: func(echo.Context) bool { return true }}
	if _, err := runMiddleware(t, JWTMiddleware(cfg), ""); err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	c, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "dev-user" {
		t.Errorf("expected dev-user, got %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}
}

func TestDevAuthMiddleware_ValidatesSuppliedToken(t *testing.T) {
	_, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer junk")
	if statusOf(t, err) != http.StatusUnauthorized {
		t.Error("expected 401 for a bad token even in development")
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" || RolesFromContext(ctx) != nil || FacilitiesFromContext(ctx) != nil {
		t.Error("expected zero values from an empty context")
	}
}
