package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
)

const testSecret = "super-secret-jwt-key"

func signHS256(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims() Claims {
	return Claims{
		Email: "dev@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifyHS256(t *testing.T) {
	v := NewTokenVerifier(context.Background(), VerifierConfig{JWTSecret: testSecret, Audience: "authenticated"})

	user, err := v.Verify(context.Background(), signHS256(t, validClaims(), testSecret))
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.SubjectID)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.Equal(t, "authenticated", user.Role)
}

func TestVerifyHS256Rejections(t *testing.T) {
	v := NewTokenVerifier(context.Background(), VerifierConfig{JWTSecret: testSecret, Audience: "authenticated"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"anon"}

	noExp := validClaims()
	noExp.ExpiresAt = nil

	noSub := validClaims()
	noSub.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signHS256(t, validClaims(), "other-secret")},
		{"expired", signHS256(t, expired, testSecret)},
		{"wrong audience", signHS256(t, wrongAud, testSecret)},
		{"missing exp", signHS256(t, noExp, testSecret)},
		{"missing sub", signHS256(t, noSub, testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		})
	}
}

func jwksServer(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	enc := base64.RawURLEncoding
	body, err := json.Marshal(map[string]any{
		"keys": []any{map[string]any{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   enc.EncodeToString(key.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
}

func TestVerifyRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, &key.PublicKey, "key-1")
	defer srv.Close()

	v := NewTokenVerifier(context.Background(), VerifierConfig{JWKSURL: srv.URL, Audience: "authenticated"})

	sign := func(c Claims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
		tok.Header["kid"] = "key-1"
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	user, err := v.Verify(context.Background(), sign(validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.SubjectID)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = v.Verify(context.Background(), sign(expired))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// HS256 令牌在未配置共享密钥时被拒绝
	_, err = v.Verify(context.Background(), signHS256(t, validClaims(), testSecret))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
