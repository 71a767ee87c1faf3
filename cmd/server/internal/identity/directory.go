package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/audit"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/cmd/server/internal/store"
)

// ProfileStore 档案存储
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, userID string, fields map[string]any) (*models.Profile, error)
}

// Directory 用户目录
type Directory struct {
	verifier *TokenVerifier
	profiles ProfileStore
	audit    audit.AuditLogger
	logger   *slog.Logger
}

// NewDirectory 创建用户目录
func NewDirectory(verifier *TokenVerifier, profiles ProfileStore, auditLogger audit.AuditLogger, logger *slog.Logger) *Directory {
	if auditLogger == nil {
		auditLogger = audit.NoopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		verifier: verifier,
		profiles: profiles,
		audit:    auditLogger,
		logger:   logger.With("component", "identity"),
	}
}

// Verify 校验令牌
func (d *Directory) Verify(ctx context.Context, token string) (models.User, error) {
	return d.verifier.Verify(ctx, token)
}

// Profile 读取档案，尚未建立档案时返回空档案
func (d *Directory) Profile(ctx context.Context, subjectID string) (*models.Profile, error) {
	profile, err := d.profiles.GetProfile(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Profile{ID: subjectID}, nil
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch profile", err)
	}
	return profile, nil
}

// UpdateProfile 只更新请求中出现的字段
func (d *Directory) UpdateProfile(ctx context.Context, user models.User, update models.ProfileUpdate) (*models.Profile, error) {
	fields := update.Fields()
	if len(fields) == 0 {
		return nil, apperr.Validation("No fields to update.")
	}

	profile, err := d.profiles.UpsertProfile(ctx, user.SubjectID, fields)
	if err != nil {
		return nil, apperr.Persistence("Failed to update profile", err)
	}
	profile.Email = user.Email
	if err := d.audit.LogAction(user.SubjectID, audit.ActionUpdateProfile, user.SubjectID, fmt.Sprintf("fields=%d", len(fields))); err != nil {
		d.logger.Warn("audit log failed", "action", audit.ActionUpdateProfile, "error", err)
	}
	return profile, nil
}
