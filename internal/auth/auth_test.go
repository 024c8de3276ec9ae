package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dappforge/internal/store"
)

func testUser() *store.User {
	return &store.User{ID: 7, Username: "alice"}
}

func TestPasswordHashing(t *testing.T) {
	s := NewService("secret")

	hash, err := s.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("password stored in the clear")
	}
	if err := s.CheckPassword("correct horse battery", hash); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
	if err := s.CheckPassword("wrong", hash); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestShortPasswordRejected(t *testing.T) {
	s := NewService("secret")
	if _, err := s.HashPassword("short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := NewService("secret")

	tok, err := s.IssueToken(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if tok.TokenType != "Bearer" {
		t.Errorf("unexpected token type %q", tok.TokenType)
	}

	claims, err := s.ValidateToken(tok.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Errorf("claims lost identity: %+v", claims)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	tok, _ := NewService("secret-a").IssueToken(testUser())
	if _, err := NewService("secret-b").ValidateToken(tok.AccessToken); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	s := NewService("secret")
	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))

	if _, err := s.ValidateToken(signed); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc"); err != nil || tok != "abc" {
		t.Errorf("expected abc, got %q / %v", tok, err)
	}
	for _, bad := range []string{"", "abc", "Basic abc", "Bearer "} {
		if _, err := BearerToken(bad); err == nil {
			t.Errorf("expected error for header %q", bad)
		}
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService("secret")

	r := gin.New()
	r.GET("/protected", s.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})

	// No token.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	// Valid token.
	tok, _ := s.IssueToken(testUser())
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}
