package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/middleware"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

// currentUser 获取认证中间件注入的用户，缺失时直接返回 401
func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		errorResponse(c, apperr.Unauthorized("Missing authentication token.", nil))
	}
	return user, ok
}

// errorResponse 按错误分类返回 {"success":false,"error":{...}}
func errorResponse(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(err), middleware.ErrorBody(err))
}

// bindJSON 绑定请求体，失败时返回 400
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		errorResponse(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return apperr.New(apperr.KindValidation, "Invalid request body.", err)
}

// successResponse 返回成功响应
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// createdResponse 返回 201 响应
func createdResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
