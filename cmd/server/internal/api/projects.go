package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/middleware"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/cmd/server/internal/roadmap"
	"github.com/houzhh15/spm-agent/cmd/server/internal/store"
)

// RoadmapGenerator 路线图生成
type RoadmapGenerator interface {
	GenerateRoadmap(ctx context.Context, user models.User, req *models.CreateProjectRequest) (*models.ProjectWithRoadmap, error)
	GenerateRoadmapStream(ctx context.Context, user models.User, req *models.CreateProjectRequest) (<-chan roadmap.Event, error)
}

// ProjectService 项目 CRUD
type ProjectService interface {
	ListProjects(ctx context.Context, user models.User) ([]models.Project, error)
	GetProjectDetail(ctx context.Context, user models.User, projectID string) (*models.ProjectWithRoadmap, error)
	UpdateTaskStatus(ctx context.Context, user models.User, projectID, taskID string, status models.TaskStatus) (*models.Task, error)
	UpcomingDeadlines(ctx context.Context, user models.User, limit int) ([]models.DeadlineItem, error)
	DeleteProject(ctx context.Context, user models.User, projectID string) error
}

// ProjectHandler 项目 API 处理器
type ProjectHandler struct {
	generator RoadmapGenerator
	projects  ProjectService
	logger    *slog.Logger
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(generator RoadmapGenerator, projects ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{generator: generator, projects: projects, logger: logger}
}

// HandleCreateProject 创建项目并阻塞生成 roadmap
// POST /api/projects
func (h *ProjectHandler) HandleCreateProject(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.generator.GenerateRoadmap(c.Request.Context(), user, &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	createdResponse(c, project)
}

// HandleCreateProjectStream 创建项目并以 SSE 推送生成过程
// POST /api/projects/stream
// 校验或建项目失败时返回普通 JSON 错误；事件流开始后状态码恒为 200
func (h *ProjectHandler) HandleCreateProjectStream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	events, err := h.generator.GenerateRoadmapStream(c.Request.Context(), user, &req)
	if err != nil {
		errorResponse(c, err)
		return
	}

	startSSE(c)
	broken := false
	for ev := range events {
		if broken {
			continue
		}
		if err := writeSSE(c, ev); err != nil {
			h.logger.Debug("sse write failed", "rid", middleware.RequestID(c), "user", user.SubjectID, "error", err)
			broken = true
		}
	}
}

// HandleListProjects 列出当前用户的项目
// GET /api/projects
func (h *ProjectHandler) HandleListProjects(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	projects, err := h.projects.ListProjects(c.Request.Context(), user)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, projects)
}

// HandleUpcomingDeadlines 跨项目的即将到期任务
// GET /api/projects/deadlines?limit=10
func (h *ProjectHandler) HandleUpcomingDeadlines(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	limit := store.DefaultDeadlineLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxDeadlineLimit {
			errorResponse(c, apperr.Validation("limit must be an integer between 1 and "+strconv.Itoa(store.MaxDeadlineLimit)+"."))
			return
		}
		limit = n
	}

	items, err := h.projects.UpcomingDeadlines(c.Request.Context(), user, limit)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, items)
}

// HandleGetProject 项目详情（含模块与任务）
// GET /api/projects/:id
func (h *ProjectHandler) HandleGetProject(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	detail, err := h.projects.GetProjectDetail(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, detail)
}

// HandleUpdateTaskStatus 更新任务状态
// PATCH /api/projects/:id/tasks/:task_id
func (h *ProjectHandler) HandleUpdateTaskStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateTaskStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.projects.UpdateTaskStatus(c.Request.Context(), user, c.Param("id"), c.Param("task_id"), req.Status)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, task)
}

// HandleDeleteProject 删除项目及其模块、任务
// DELETE /api/projects/:id
func (h *ProjectHandler) HandleDeleteProject(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.projects.DeleteProject(c.Request.Context(), user, c.Param("id")); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Project deleted successfully.",
		"success": true,
	})
}
