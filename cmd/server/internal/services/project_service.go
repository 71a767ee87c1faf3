package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/audit"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/cmd/server/internal/store"
)

// ProjectStore 项目查询与维护所需的存储操作
type ProjectStore interface {
	GetProject(ctx context.Context, projectID, userID string) (*models.Project, error)
	ListProjects(ctx context.Context, userID string) ([]models.Project, error)
	DeleteProject(ctx context.Context, projectID, userID string) error
	ListModules(ctx context.Context, projectID string) ([]models.Module, error)
	ListTasks(ctx context.Context, projectID string) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, projectID, taskID string, status models.TaskStatus, completedAt *time.Time) (*models.Task, error)
	UpcomingDeadlines(ctx context.Context, userID string, limit int) ([]models.DeadlineItem, error)
}

// ProjectService 已生成项目的查询、任务状态更新与删除
type ProjectService struct {
	store  ProjectStore
	audit  audit.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewProjectService 创建项目服务
func NewProjectService(st ProjectStore, auditLogger audit.AuditLogger, logger *slog.Logger) *ProjectService {
	if auditLogger == nil {
		auditLogger = audit.NoopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{
		store:  st,
		audit:  auditLogger,
		logger: logger.With("component", "projects"),
		now:    time.Now,
	}
}

// ListProjects 列出项目摘要（不含模块与任务）
func (s *ProjectService) ListProjects(ctx context.Context, user models.User) ([]models.Project, error) {
	projects, err := s.store.ListProjects(ctx, user.SubjectID)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch projects", err)
	}
	return projects, nil
}

// GetProjectDetail 项目详情：模块按 order_index 排序，任务按模块分组
func (s *ProjectService) GetProjectDetail(ctx context.Context, user models.User, projectID string) (*models.ProjectWithRoadmap, error) {
	project, err := s.ownedProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}

	modules, err := s.store.ListModules(ctx, projectID)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch project", err)
	}
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch project", err)
	}

	byModule := make(map[string][]models.Task, len(modules))
	for _, task := range tasks {
		byModule[task.ModuleID] = append(byModule[task.ModuleID], task)
	}
	for i := range modules {
		modules[i].Tasks = byModule[modules[i].ID]
		if modules[i].Tasks == nil {
			modules[i].Tasks = []models.Task{}
		}
	}

	return &models.ProjectWithRoadmap{Project: *project, Modules: modules}, nil
}

// UpdateTaskStatus 更新任务状态
// completed 写入完成时间；其它状态保留已有的完成时间
func (s *ProjectService) UpdateTaskStatus(ctx context.Context, user models.User, projectID, taskID string, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status must be one of: pending, in_progress, completed, blocked.")
	}
	if _, err := s.ownedProject(ctx, user, projectID); err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if status == models.TaskCompleted {
		now := s.now().UTC()
		completedAt = &now
	}

	task, err := s.store.UpdateTaskStatus(ctx, projectID, taskID, status, completedAt)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Task")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to update task", err)
	}

	s.record(user.SubjectID, audit.ActionUpdateTaskStatus, taskID, "status="+string(status))
	return task, nil
}

// UpcomingDeadlines 未完成且设置了截止日期的任务，最早到期的在前
func (s *ProjectService) UpcomingDeadlines(ctx context.Context, user models.User, limit int) ([]models.DeadlineItem, error) {
	items, err := s.store.UpcomingDeadlines(ctx, user.SubjectID, limit)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch deadlines", err)
	}
	return items, nil
}

// DeleteProject 删除项目及其模块、任务
func (s *ProjectService) DeleteProject(ctx context.Context, user models.User, projectID string) error {
	err := s.store.DeleteProject(ctx, projectID, user.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Project")
	}
	if err != nil {
		return apperr.Persistence("Failed to delete project", err)
	}

	s.record(user.SubjectID, audit.ActionDeleteProject, projectID, "")
	s.logger.Info("project deleted", "project_id", projectID, "user_id", user.SubjectID)
	return nil
}

func (s *ProjectService) ownedProject(ctx context.Context, user models.User, projectID string) (*models.Project, error) {
	project, err := s.store.GetProject(ctx, projectID, user.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Project")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch project", err)
	}
	return project, nil
}

func (s *ProjectService) record(operator string, action audit.AuditAction, resourceID, details string) {
	if err := s.audit.LogAction(operator, action, resourceID, details); err != nil {
		s.logger.Warn("audit log failed", "action", action, "error", err)
	}
}
