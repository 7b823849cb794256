package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-with-enough-length"

func sign(t *testing.T, key string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsFor(subject, issuer string, ttl time.Duration) Claims {
	return Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestVerifyValidToken(t *testing.T) {
	req := require.New(t)
	v := NewVerifier(secret, "identity")

	userID, claims, err := v.Verify(sign(t, secret, jwt.SigningMethodHS256, claimsFor("uid-123", "identity", time.Hour)))

	req.NoError(err)
	req.Equal("uid-123", userID)
	req.Equal("uid-123@example.com", claims.Email)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(secret, "identity")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", sign(t, "other-secret", jwt.SigningMethodHS256, claimsFor("u", "identity", time.Hour))},
		{"expired", sign(t, secret, jwt.SigningMethodHS256, claimsFor("u", "identity", -time.Minute))},
		{"wrong issuer", sign(t, secret, jwt.SigningMethodHS256, claimsFor("u", "someone-else", time.Hour))},
		{"no subject", sign(t, secret, jwt.SigningMethodHS256, claimsFor("", "identity", time.Hour))},
		{"no expiry", sign(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Issuer: "identity"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyAnyIssuerWhenUnset(t *testing.T) {
	v := NewVerifier(secret, "")

	userID, _, err := v.Verify(sign(t, secret, jwt.SigningMethodHS512, claimsFor("u", "whoever", time.Hour)))

	require.NoError(t, err)
	require.Equal(t, "u", userID)
}
