/**
 * @description
 * Authentication middleware for the functions endpoints. Requests carry
 * either a session JWT issued by the identity provider (HS256, shared
 * secret) or the service-role key in the x-service-role-key header.
 * Trusted backend callers use the key; end users use their session token.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For JWT parsing and validation.
 *
 * @notes
 * - The middleware only establishes identity; per-endpoint authorization
 *   (token subject must equal the acted-on user) happens in the handlers,
 *   because the subject to compare against lives in the request body.
 */
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const authUserIDContextKey contextKey = "authUserID"
const serviceRoleContextKey contextKey = "serviceRole"

// AuthConfig controls how incoming requests are authenticated.
type AuthConfig struct {
	JWTSecret        string
	ServiceRoleKey   string
	ExpectedAudience string
	ExpectedIssuer   string
}

// AuthMiddleware validates the bearer token or the service-role key and
// injects the caller's identity into the request context. Requests with
// neither credential are rejected with 401.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if serviceKey := strings.TrimSpace(r.Header.Get("x-service-role-key")); serviceKey != "" {
				if cfg.ServiceRoleKey == "" || subtle.ConstantTimeCompare([]byte(serviceKey), []byte(cfg.ServiceRoleKey)) != 1 {
					http.Error(w, "Invalid service key", http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), serviceRoleContextKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			subject, err := validateSessionToken(tokenString, cfg)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authUserIDContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthUserID returns the authenticated user ID from request context.
func GetAuthUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(authUserIDContextKey).(string)
	return userID, ok
}

// IsServiceRole reports whether the caller authenticated with the
// service-role key.
func IsServiceRole(ctx context.Context) bool {
	serviceRole, ok := ctx.Value(serviceRoleContextKey).(bool)
	return ok && serviceRole
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}

func validateSessionToken(tokenString string, cfg AuthConfig) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("token validation failed")
	}

	if cfg.ExpectedIssuer != "" {
		issuer, ok := claims["iss"].(string)
		if !ok || issuer != cfg.ExpectedIssuer {
			return "", errors.New("issuer mismatch")
		}
	}

	if cfg.ExpectedAudience != "" {
		if !verifyAudienceClaim(claims["aud"], cfg.ExpectedAudience) {
			return "", errors.New("audience mismatch")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("subject claim missing")
	}

	return sub, nil
}

func verifyAudienceClaim(audClaim any, expected string) bool {
	switch aud := audClaim.(type) {
	case string:
		return aud == expected
	case []any:
		for _, item := range aud {
			s, ok := item.(string)
			if ok && s == expected {
				return true
			}
		}
	case []string:
		for _, item := range aud {
			if item == expected {
				return true
			}
		}
	}
	return false
}
