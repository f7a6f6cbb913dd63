// internal/service/auth_service.go
package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"gowa-multibot/internal/helper"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLoginDisabled      = errors.New("admin login is not configured")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and checks the tokens guarding the /api routes.
// There is a single admin account configured from the environment.
type AuthService struct {
	secret        []byte
	expiry        time.Duration
	adminUsername string
	adminHash     string
	now           func() time.Time
}

func NewAuthService(secret string, expiry time.Duration, adminUsername, adminPasswordHash string) *AuthService {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &AuthService{
		secret:        []byte(secret),
		expiry:        expiry,
		adminUsername: adminUsername,
		adminHash:     adminPasswordHash,
		now:           time.Now,
	}
}

// Enabled reports whether a JWT secret is configured.
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0
}

// PasswordConfigured reports whether an admin password hash is set.
func (s *AuthService) PasswordConfigured() bool {
	return s.adminHash != ""
}

// CheckCredentials validates the admin username/password pair.
func (s *AuthService) CheckCredentials(username, password string) error {
	if s.adminHash == "" {
		return ErrLoginDisabled
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) != 1 {
		return ErrInvalidCredentials
	}
	if err := helper.VerifyPassword(s.adminHash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login validates username/password and returns a signed access token.
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrLoginDisabled
	}
	if err := s.CheckCredentials(username, password); err != nil {
		return "", time.Time{}, err
	}
	return s.GenerateAccessToken(username)
}

// GenerateAccessToken generates a JWT access token for an admin user
func (s *AuthService) GenerateAccessToken(username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := &Claims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken validates JWT access token and returns claims
func (s *AuthService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
