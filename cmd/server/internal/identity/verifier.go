// Package identity 用户目录：校验访问令牌并读写用户档案
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

// Claims 身份提供方签发的 access token claims
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// VerifierConfig 令牌校验配置
type VerifierConfig struct {
	JWTSecret string // HS256 共享密钥
	JWKSURL   string // 非对称签名公钥集
	Audience  string
	Leeway    time.Duration
}

// TokenVerifier 校验 access token
// HS256 令牌用共享密钥校验；RS256/ES256 令牌经 JWKS 验签后再校验 claims
type TokenVerifier struct {
	secret   []byte
	keySet   oidc.KeySet
	audience string
	leeway   time.Duration
}

// NewTokenVerifier 创建校验器，ctx 控制 JWKS 后台刷新的生命周期
func NewTokenVerifier(ctx context.Context, cfg VerifierConfig) *TokenVerifier {
	v := &TokenVerifier{
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
	}
	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	}
	if cfg.JWKSURL != "" {
		v.keySet = oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	}
	return v
}

// Verify 校验令牌并返回调用者身份
func (v *TokenVerifier) Verify(ctx context.Context, token string) (models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.User{}, apperr.Unauthorized("Missing authentication token.", nil)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		return models.User{}, apperr.Unauthorized("Invalid or expired token.", err)
	}

	var claims *Claims
	switch alg := unverified.Method.Alg(); {
	case alg == jwt.SigningMethodHS256.Alg() && v.secret != nil:
		claims, err = v.verifyShared(token)
	case alg != jwt.SigningMethodHS256.Alg() && v.keySet != nil:
		claims, err = v.verifyRemote(ctx, token)
	default:
		err = errors.New("no verification key for algorithm " + alg)
	}
	if err != nil {
		return models.User{}, apperr.Unauthorized("Invalid or expired token.", err)
	}

	if claims.Subject == "" {
		return models.User{}, apperr.Unauthorized("Invalid token: missing subject.", nil)
	}
	return models.User{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	}, nil
}

func (v *TokenVerifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(v.leeway)}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

func (v *TokenVerifier) verifyShared(token string) (*Claims, error) {
	opts := append(v.parserOptions(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func (v *TokenVerifier) verifyRemote(ctx context.Context, token string) (*Claims, error) {
	payload, err := v.keySet.VerifySignature(ctx, token)
	if err != nil {
		return nil, err
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	if err := jwt.NewValidator(v.parserOptions()...).Validate(claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
