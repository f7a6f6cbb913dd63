package service

import (
	"errors"
	"testing"
	"time"

	"gowa-multibot/internal/helper"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	hash, err := helper.HashPassword("rahasia123")
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthService("secret", time.Hour, "admin", hash)
}

func TestAuthLogin(t *testing.T) {
	s := newTestAuth(t)

	token, exp, err := s.Login("admin", "rahasia123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is in the past", exp)
	}

	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	if _, _, err := s.Login("admin", "salah"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := s.Login("root", "rahasia123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong user err = %v", err)
	}
}

func TestAuthRejectsForeignTokens(t *testing.T) {
	s := newTestAuth(t)
	other := NewAuthService("other-secret", time.Hour, "admin", "")

	token, _, err := other.GenerateAccessToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token err = %v", err)
	}
	if _, err := s.ValidateAccessToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token err = %v", err)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	s := newTestAuth(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := s.GenerateAccessToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestAuthLoginDisabled(t *testing.T) {
	s := NewAuthService("", time.Hour, "admin", "")
	if s.Enabled() {
		t.Error("Enabled() = true without secret")
	}
	if _, _, err := s.Login("admin", "x"); !errors.Is(err, ErrLoginDisabled) {
		t.Errorf("err = %v", err)
	}
}
