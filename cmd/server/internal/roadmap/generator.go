package roadmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/audit"
	"github.com/houzhh15/spm-agent/cmd/server/internal/llm"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/pkg/logger"
	"github.com/houzhh15/spm-agent/pkg/metrics"
)

const (
	modeBlocking  = "blocking"
	modeStreaming = "streaming"
)

// Store 生成流水线使用的存储操作
type Store interface {
	RoadmapStore
	CreateProject(ctx context.Context, project *models.Project) error
}

// ProfileSource 读取用户档案
type ProfileSource interface {
	Profile(ctx context.Context, subjectID string) (*models.Profile, error)
}

// Client LLM 调用
type Client interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
	Stream(ctx context.Context, prompt string) <-chan llm.Event
}

// Generator 路线图生成入口，同时提供阻塞与流式两种调用
type Generator struct {
	store     Store
	profiles  ProfileSource
	client    Client
	persistor *Persistor
	audit     audit.AuditLogger
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator 创建生成器
func NewGenerator(store Store, profiles ProfileSource, client Client, auditLogger audit.AuditLogger, log *slog.Logger) *Generator {
	if auditLogger == nil {
		auditLogger = audit.NoopAuditLogger{}
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "roadmap")
	return &Generator{
		store:     store,
		profiles:  profiles,
		client:    client,
		persistor: NewPersistor(store, log),
		audit:     auditLogger,
		logger:    log,
		now:       time.Now,
	}
}

// GenerateRoadmap 阻塞生成：校验 -> 创建项目 -> 调用 LLM -> 校验输出 -> 写库
// 返回包含模块与任务的完整项目
func (g *Generator) GenerateRoadmap(ctx context.Context, user models.User, req *models.CreateProjectRequest) (*models.ProjectWithRoadmap, error) {
	start := time.Now()

	project, prompt, err := g.prepare(ctx, user, req)
	if err != nil {
		metrics.RecordGeneration(modeBlocking, outcomeOf(err))
		return nil, err
	}

	llmStart := time.Now()
	raw, err := g.client.Generate(ctx, prompt)
	logger.LogStage(g.logger, project.ID, "llm", actionOf(err), time.Since(llmStart).Milliseconds(), err)
	if err != nil {
		return nil, g.fail(modeBlocking, user, project, err)
	}

	drafts, err := g.normalize(project.ID, raw)
	if err != nil {
		return nil, g.fail(modeBlocking, user, project, err)
	}

	// 已发出的写入在调用方断开后继续完成
	modules, err := g.persist(context.WithoutCancel(ctx), project, drafts, raw, nil)
	if err != nil {
		return nil, g.fail(modeBlocking, user, project, err)
	}

	g.succeed(modeBlocking, user, project, modules, start)
	return &models.ProjectWithRoadmap{Project: *project, Modules: modules}, nil
}

// prepare 校验请求并创建 planning 状态的项目，返回 prompt
// 校验失败时不会写库也不会调用 LLM
func (g *Generator) prepare(ctx context.Context, user models.User, req *models.CreateProjectRequest) (*models.Project, string, error) {
	if req == nil {
		return nil, "", apperr.Validation("request body is required.")
	}
	if err := req.Validate(models.DateOf(g.now())); err != nil {
		return nil, "", err
	}

	profile := g.loadProfile(ctx, user.SubjectID)
	roadmapReq := models.NewRoadmapRequest(req, profile)

	project := &models.Project{
		UserID:             user.SubjectID,
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		TechStack:          datatypes.JSONSlice[string](append([]string{}, req.TechStack...)),
		PlanningMode:       req.PlanningMode,
		DeadlineDate:       req.DeadlineDate,
		WorkingHoursPerDay: req.HoursPerDay(),
		Status:             models.ProjectPlanning,
	}
	if err := g.store.CreateProject(ctx, project); err != nil {
		return nil, "", apperr.Persistence("Failed to create project", err)
	}
	g.record(user.SubjectID, audit.ActionCreateProject, project.ID, "mode="+string(project.PlanningMode))

	return project, BuildPrompt(roadmapReq, g.now()), nil
}

// loadProfile 档案读取失败时降级为默认值，不中断生成
func (g *Generator) loadProfile(ctx context.Context, subjectID string) *models.Profile {
	if g.profiles == nil {
		return nil
	}
	profile, err := g.profiles.Profile(ctx, subjectID)
	if err != nil {
		g.logger.Warn("profile lookup failed, using defaults", "user_id", subjectID, "error", err)
		return nil
	}
	return profile
}

// normalize 校验 LLM 输出；零模块视为未生成 roadmap
func (g *Generator) normalize(projectID string, raw json.RawMessage) ([]ModuleDraft, error) {
	start := time.Now()
	drafts, err := Normalize(raw)
	if err == nil && len(drafts) == 0 {
		err = apperr.EmptyRoadmap()
	}
	logger.LogStage(g.logger, projectID, "normalize", actionOf(err), time.Since(start).Milliseconds(), err)
	return drafts, err
}

func (g *Generator) persist(ctx context.Context, project *models.Project, drafts []ModuleDraft, raw json.RawMessage, progress ProgressFunc) ([]models.Module, error) {
	start := time.Now()
	modules, err := g.persistor.Persist(ctx, project.ID, drafts, raw, progress)
	logger.LogStage(g.logger, project.ID, "persist", actionOf(err), time.Since(start).Milliseconds(), err)
	if err != nil {
		return nil, err
	}
	project.Status = models.ProjectActive
	project.RawLLMResponse = datatypes.JSON(raw)
	return modules, nil
}

func (g *Generator) succeed(mode string, user models.User, project *models.Project, modules []models.Module, start time.Time) {
	tasks := 0
	for _, m := range modules {
		tasks += len(m.Tasks)
	}
	metrics.RecordGeneration(mode, "success")
	g.record(user.SubjectID, audit.ActionRoadmapGenerated, project.ID, fmt.Sprintf("modules=%d tasks=%d", len(modules), tasks))
	g.logger.Info("roadmap generated",
		"mode", mode,
		"project_id", project.ID,
		"modules", len(modules),
		"tasks", tasks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// fail 记录失败，项目行保持原状供用户重试
func (g *Generator) fail(mode string, user models.User, project *models.Project, err error) error {
	metrics.RecordGeneration(mode, outcomeOf(err))
	g.record(user.SubjectID, audit.ActionRoadmapFailed, project.ID, apperr.Message(err))
	g.logger.Warn("roadmap generation failed",
		"mode", mode,
		"project_id", project.ID,
		"kind", apperr.KindOf(err),
		"error", err,
	)
	return err
}

func (g *Generator) record(operator string, action audit.AuditAction, resourceID, details string) {
	if err := g.audit.LogAction(operator, action, resourceID, details); err != nil {
		g.logger.Warn("audit log failed", "action", action, "error", err)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}

func actionOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
