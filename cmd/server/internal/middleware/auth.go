package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

const userKey = "user"

// TokenVerifier 校验 bearer token 并返回调用者身份
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.User, error)
}

// RequireAuth 校验 Authorization: Bearer <token>，通过后注入 models.User
func RequireAuth(verifier TokenVerifier, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			log.Warn("missing bearer token",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			AbortWithError(c, apperr.Unauthorized("Missing authentication token.", nil))
			return
		}

		user, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			log.Warn("invalid token",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			if !apperr.Is(err, apperr.KindUnauthorized) {
				err = apperr.Unauthorized("Invalid or expired token.", err)
			}
			AbortWithError(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser 取出认证中间件注入的用户
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok && user.SubjectID != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
