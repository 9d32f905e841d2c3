package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig holds the HS256 signing key and optional iss/aud checks.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Claims is the token payload. Identity is also mirrored into sub.
type Claims struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

// Sign issues a token for identity valid for ttl.
func (c TokenConfig) Sign(identity domain.Identity, role string, ttl time.Duration) (string, error) {
	if len(c.Secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{
		Identity: string(identity),
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.Issuer != "" {
		claims.Issuer = c.Issuer
	}
	if c.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
}

// Parse verifies tokenString and returns its claims.
func (c TokenConfig) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return c.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Identity) == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrInvalidToken)
	}
	if claims.Subject != "" && claims.Subject != claims.Identity {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return claims, nil
}
