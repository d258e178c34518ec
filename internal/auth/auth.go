// Package auth verifies the bearer identity issued by the authentication
// collaborator. The core trusts the token's claims without re-verifying
// credentials; only signature and expiry are checked here.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller as asserted by the token.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Admin  bool
}

type TokenManager struct {
	secretKey []byte
}

func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{[]byte(secretKey)}
}

// GenerateToken issues an HS256 token for an identity. Used by tooling and
// tests; production tokens come from the auth service.
func (tm *TokenManager) GenerateToken(id Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"email": id.Email,
		"name":  id.Name,
		"admin": id.Admin,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ParseToken validates the signature and returns the embedded identity.
func (tm *TokenManager) ParseToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return tm.secretKey, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if admin, ok := claims["admin"].(bool); ok {
		id.Admin = admin
	}
	return id, nil
}
