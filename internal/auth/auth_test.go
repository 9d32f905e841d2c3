package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextGate(t *testing.T) {
	gate := ContextGate{}
	ctx := WithIdentity(context.Background(), "alice", RoleUser)
	assert.True(t, gate.Authorized(ctx, "alice"))
	assert.False(t, gate.Authorized(ctx, "bob"))
	assert.False(t, gate.Authorized(context.Background(), "alice"))
	assert.False(t, gate.Authorized(ctx, ""))

	sys := WithIdentity(context.Background(), "scheduler", RoleSystem)
	assert.True(t, gate.Authorized(sys, "bob"))
}

func TestDeny(t *testing.T) {
	gate := Deny("mallory")
	assert.True(t, gate.Authorized(context.Background(), "alice"))
	assert.False(t, gate.Authorized(context.Background(), "mallory"))
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := TokenConfig{Secret: []byte("test-secret"), Issuer: "custody-engine", Audience: "custody-clients"}
	token, err := cfg.Sign("alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := cfg.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity)
	assert.Equal(t, RoleAdmin, claims.Role)

	other := TokenConfig{Secret: []byte("other"), Issuer: cfg.Issuer, Audience: cfg.Audience}
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongAud := TokenConfig{Secret: cfg.Secret, Audience: "someone-else"}
	_, err = wrongAud.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsSubjectMismatch(t *testing.T) {
	secret := []byte("test-secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Identity:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "bob", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = TokenConfig{Secret: secret}.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
