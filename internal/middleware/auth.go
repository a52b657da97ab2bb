// Package middleware provides HTTP middleware for the admin API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/pkg/logger"
)

type contextKey string

const subjectKey contextKey = "auth.subject"

// Claims are the JWT claims accepted on admin requests.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth authenticates admin requests with either a static API key
// (X-API-Key header) or an HS256 bearer token. With no key and no secret
// configured, SkipOnEmpty lets everything through for local development.
type Auth struct {
	cfg       config.AuthConfig
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuth creates the auth middleware. skipPaths are exact request paths
// that never require credentials (health, metrics).
func NewAuth(cfg config.AuthConfig, log *logger.Logger, skipPaths ...string) *Auth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Auth{cfg: cfg, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if m.cfg.APIKey == "" && m.cfg.JWTSecret == "" {
			if m.cfg.SkipOnEmpty {
				next.ServeHTTP(w, r)
				return
			}
			m.reject(w, r, "no credentials configured")
			return
		}

		if key := r.Header.Get("X-API-Key"); key != "" && m.cfg.APIKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.APIKey)) == 1 {
				next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), "api-key")))
				return
			}
			m.reject(w, r, "invalid api key")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.reject(w, r, "missing credentials")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.reject(w, r, "malformed authorization header")
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("token validation failed")
			m.reject(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), claims.Subject)))
	})
}

func (m *Auth) validateToken(tokenString string) (*Claims, error) {
	if m.cfg.JWTSecret == "" {
		return nil, fmt.Errorf("bearer auth not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(m.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (m *Auth) reject(w http.ResponseWriter, r *http.Request, reason string) {
	m.log.WithField("path", r.URL.Path).
		WithField("method", r.Method).
		WithField("reason", reason).
		Warn("request rejected")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject returns the authenticated subject, or "" when unauthenticated.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}
