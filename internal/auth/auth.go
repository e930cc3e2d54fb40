// Package auth validates bearer tokens for the admin surface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agentbot-ai/agentbot/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Identity is the authenticated caller.
type Identity struct {
	Subject  string
	Username string
}

// Provider validates bearer tokens.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	Name() string
}

// LoginProvider is implemented by providers supporting username/password
// login.
type LoginProvider interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Claims are the JWT claims issued by the builtin provider.
type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Builtin signs and verifies HS256 tokens for a single configured admin.
type Builtin struct {
	secret       []byte
	expiry       time.Duration
	adminUser    string
	passwordHash []byte
}

// NewBuiltin creates the builtin provider from config.
func NewBuiltin(cfg config.AuthConfig) *Builtin {
	return &Builtin{
		secret:       []byte(cfg.JWTSecret),
		expiry:       cfg.JWTExpiry.Std(),
		adminUser:    cfg.AdminUser,
		passwordHash: []byte(cfg.AdminPasswordHash),
	}
}

func (b *Builtin) Name() string { return "builtin" }

// Login checks the admin credentials and returns a signed token.
func (b *Builtin) Login(ctx context.Context, username, password string) (string, error) {
	if username != b.adminUser || b.adminUser == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(b.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(b.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

func (b *Builtin) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return &Identity{Subject: claims.Subject, Username: claims.Username}, nil
}

// HashPassword produces a bcrypt hash for admin_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var (
	_ Provider      = (*Builtin)(nil)
	_ LoginProvider = (*Builtin)(nil)
)
