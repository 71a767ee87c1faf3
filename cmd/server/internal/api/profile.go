package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

// ProfileService 用户档案读写
type ProfileService interface {
	Profile(ctx context.Context, subjectID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, user models.User, update models.ProfileUpdate) (*models.Profile, error)
}

// ProfileHandler 当前用户档案处理器
type ProfileHandler struct {
	profiles ProfileService
}

// NewProfileHandler 创建 ProfileHandler 实例
func NewProfileHandler(profiles ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// HandleGetMe GET /api/auth/me
func (h *ProfileHandler) HandleGetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Profile(c.Request.Context(), user.SubjectID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	profile.Email = user.Email
	successResponse(c, profile)
}

// HandleUpdateMe PUT/PATCH /api/auth/me，只更新非空字段
func (h *ProfileHandler) HandleUpdateMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var update models.ProfileUpdate
	if !bindJSON(c, &update) {
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), user, update)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, profile)
}
