package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capstonehub/projectchat/internal/models"
)

type contextKey string

// UserContextKey is where RequireAuth stores the authenticated user.
const UserContextKey contextKey = "user"

// Claims is the payload of the bearer token issued by the account service.
// This service only verifies it; issuance lives elsewhere.
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies bearer tokens on protected endpoints.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates an auth middleware verifying with the shared secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// RequireAuth verifies the credential and stores the user identity in the
// request context. REST clients send "Authorization: Bearer <token>"; the
// WebSocket handshake sends "?token=<token>" because browsers cannot set
// headers on the upgrade request.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing credential")
			return
		}

		user, err := m.Verify(token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses and validates a token, returning the embedded identity.
func (m *AuthMiddleware) Verify(tokenString string) (models.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return models.User{}, err
	}
	if !token.Valid {
		return models.User{}, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return models.User{}, errors.New("token without user_id")
	}
	if claims.Role != models.RoleStudent && claims.Role != models.RoleAdvisor {
		return models.User{}, errors.New("token with unknown role " + claims.Role)
	}
	return models.User{ID: claims.UserID, FullName: claims.FullName, Role: claims.Role}, nil
}

// UserFromContext returns the authenticated user set by RequireAuth.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(models.User)
	return user, ok
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
