package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capstonehub/projectchat/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id":   "u1",
		"full_name": "Alice Zhang",
		"role":      models.RoleStudent,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	user, err := m.Verify(signToken(t, testSecret, validClaims()))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != "u1" || user.FullName != "Alice Zhang" || user.Role != models.RoleStudent {
		t.Fatalf("unexpected identity: %+v", user)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	if _, err := m.Verify(signToken(t, "other-secret", validClaims())); err == nil {
		t.Fatal("token signed with the wrong secret accepted")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	if _, err := m.Verify(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	claims := validClaims()
	claims["role"] = "administrator"
	if _, err := m.Verify(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("token with unknown role accepted")
	}
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	claims := validClaims()
	delete(claims, "user_id")
	if _, err := m.Verify(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("token without user_id accepted")
	}
}

func TestRequireAuthHeaderAndQuery(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	token := signToken(t, testSecret, validClaims())

	var gotUser models.User
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// Authorization header, the REST path.
	req := httptest.NewRequest("GET", "/api/chats/unread", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("header auth: status %d", rec.Code)
	}
	if gotUser.ID != "u1" {
		t.Fatalf("header auth: identity %+v", gotUser)
	}

	// Query parameter, the WebSocket handshake path.
	req = httptest.NewRequest("GET", "/ws/chat/p1?token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("query auth: status %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without a credential")
	}))

	req := httptest.NewRequest("GET", "/api/chats/unread", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}
