package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
)

// ErrorBody 统一错误响应体 {"success":false,"error":{code,message,details}}
func ErrorBody(err error) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    apperr.KindOf(err),
			"message": apperr.Message(err),
			"details": details(err),
		},
	}
}

// AbortWithError 以错误分类对应的状态码终止请求
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), ErrorBody(err))
}

func details(err error) any {
	e, ok := apperr.As(err)
	if !ok {
		return nil
	}
	if e.Kind == apperr.KindUpstream && e.StatusCode != 0 {
		return gin.H{"status_code": e.StatusCode, "body": e.Body}
	}
	// Persistence 的 cause 已在 message 中
	if e.Cause != nil && e.Kind != apperr.KindPersistence {
		return e.Cause.Error()
	}
	return nil
}
