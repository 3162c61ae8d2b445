// Package auth guards schema-mutating operations. A single admin
// identity comes from configuration: email plus bcrypt password hash.
// Login exchanges credentials for a signed HS256 token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gridbase/internal/config"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims represents the JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

type Service struct {
	cfg config.AdminConfig
}

func NewService(cfg config.AdminConfig) *Service {
	return &Service{cfg: cfg}
}

// Login checks the credentials against the configured admin and returns
// a signed token.
func (s *Service) Login(email, password string) (string, error) {
	if email != s.cfg.Email || !CheckPassword(password, s.cfg.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return GenerateToken(email, s.cfg.JWTSecret, s.TokenTTL())
}

func (s *Service) TokenTTL() time.Duration {
	if s.cfg.TokenTTLMin <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(s.cfg.TokenTTLMin) * time.Minute
}

func (s *Service) Secret() string {
	return s.cfg.JWTSecret
}

// GenerateToken creates a signed admin JWT.
func GenerateToken(subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Admin: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT, returning the claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
