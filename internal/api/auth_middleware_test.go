package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func authProbe(cfg AuthConfig) (http.Handler, *struct {
	called      bool
	subject     string
	serviceRole bool
}) {
	seen := &struct {
		called      bool
		subject     string
		serviceRole bool
	}{}
	handler := AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.called = true
		seen.subject, _ = GetAuthUserID(r.Context())
		seen.serviceRole = IsServiceRole(r.Context())
	}))
	return handler, seen
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestAuthMiddlewareAcceptsValidSessionToken(t *testing.T) {
	cfg := AuthConfig{JWTSecret: testJWTSecret, ExpectedAudience: "authenticated", ExpectedIssuer: testIssuer}
	handler, seen := authProbe(cfg)

	token := signToken(t, testJWTSecret, jwt.MapClaims{
		"sub": "user-123",
		"aud": "authenticated",
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !seen.called || seen.subject != "user-123" {
		t.Fatalf("expected the subject in context, got %+v", seen)
	}
	if seen.serviceRole {
		t.Fatal("expected a session token not to carry the service role")
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	cfg := AuthConfig{JWTSecret: testJWTSecret, ExpectedAudience: "authenticated", ExpectedIssuer: testIssuer}

	tests := []struct {
		name   string
		header string
	}{
		{
			name:   "missing header",
			header: "",
		},
		{
			name:   "not a bearer token",
			header: "Basic dXNlcjpwYXNz",
		},
		{
			name:   "garbage token",
			header: "Bearer not.a.token",
		},
		{
			name: "wrong signing secret",
			header: "Bearer " + signToken(t, "other-secret", jwt.MapClaims{
				"sub": "user-123", "aud": "authenticated", "iss": testIssuer,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, testJWTSecret, jwt.MapClaims{
				"sub": "user-123", "aud": "authenticated", "iss": testIssuer,
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "wrong audience",
			header: "Bearer " + signToken(t, testJWTSecret, jwt.MapClaims{
				"sub": "user-123", "aud": "anon", "iss": testIssuer,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "wrong issuer",
			header: "Bearer " + signToken(t, testJWTSecret, jwt.MapClaims{
				"sub": "user-123", "aud": "authenticated", "iss": "https://evil.example.test",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "missing subject",
			header: "Bearer " + signToken(t, testJWTSecret, jwt.MapClaims{
				"aud": "authenticated", "iss": testIssuer,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, seen := authProbe(cfg)
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if seen.called {
				t.Fatal("expected the handler not to run")
			}
		})
	}
}

func TestAuthMiddlewareAcceptsStringArrayAudience(t *testing.T) {
	cfg := AuthConfig{JWTSecret: testJWTSecret, ExpectedAudience: "authenticated"}
	handler, seen := authProbe(cfg)

	token := signToken(t, testJWTSecret, jwt.MapClaims{
		"sub": "user-123",
		"aud": []string{"other", "authenticated"},
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !seen.called {
		t.Fatalf("expected an array audience to be accepted, got %d", rec.Code)
	}
}

func TestAuthMiddlewareServiceRoleKey(t *testing.T) {
	cfg := AuthConfig{JWTSecret: testJWTSecret, ServiceRoleKey: testServiceKey}

	t.Run("valid key", func(t *testing.T) {
		handler, seen := authProbe(cfg)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("x-service-role-key", testServiceKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || !seen.serviceRole {
			t.Fatalf("expected the service role to be granted, got %d %+v", rec.Code, seen)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		handler, seen := authProbe(cfg)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("x-service-role-key", "wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized || seen.called {
			t.Fatalf("expected 401 for a wrong key, got %d", rec.Code)
		}
	})

	t.Run("key disabled by configuration", func(t *testing.T) {
		handler, seen := authProbe(AuthConfig{JWTSecret: testJWTSecret})
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("x-service-role-key", testServiceKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized || seen.called {
			t.Fatalf("expected 401 when no service key is configured, got %d", rec.Code)
		}
	})
}
