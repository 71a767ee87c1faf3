package roadmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/pkg/metrics"
)

// RoadmapStore 写入 roadmap 所需的存储操作
type RoadmapStore interface {
	CreateModule(ctx context.Context, module *models.Module) error
	CreateTask(ctx context.Context, task *models.Task) error
	ActivateProject(ctx context.Context, projectID string, raw json.RawMessage) error
}

// ProgressFunc 每开始写入一个模块时回调一次
type ProgressFunc func(moduleTitle string)

// Persistor 按文档顺序逐行写入模块与任务
// 写入不是原子的：中途失败时已写入的行保留，项目状态保持 planning
type Persistor struct {
	store  RoadmapStore
	logger *slog.Logger
}

// NewPersistor 创建写入器
func NewPersistor(store RoadmapStore, logger *slog.Logger) *Persistor {
	return &Persistor{store: store, logger: logger}
}

// Persist 写入全部模块与任务，最后将项目置为 active 并保存原始输出
// 返回的模块按写入顺序排列，Tasks 为已写入的任务
func (p *Persistor) Persist(ctx context.Context, projectID string, drafts []ModuleDraft, raw json.RawMessage, progress ProgressFunc) ([]models.Module, error) {
	created := make([]models.Module, 0, len(drafts))

	for i, draft := range drafts {
		if progress != nil {
			progress(draft.Title)
		}

		module := models.Module{
			ProjectID:     projectID,
			Title:         draft.Title,
			Description:   draft.Description,
			OrderIndex:    draft.OrderIndex,
			Position:      i,
			Status:        models.ModulePending,
			EstimatedDays: draft.EstimatedDays,
			StartDate:     draft.StartDate,
			EndDate:       draft.EndDate,
		}
		if err := p.store.CreateModule(ctx, &module); err != nil {
			return created, apperr.Persistence(fmt.Sprintf("failed to save module %q", draft.Title), err)
		}
		metrics.RecordPersistedRow("modules")

		module.Tasks = make([]models.Task, 0, len(draft.Tasks))
		for j, td := range draft.Tasks {
			task := models.Task{
				ModuleID:       module.ID,
				ProjectID:      projectID,
				Title:          td.Title,
				Description:    td.Description,
				OrderIndex:     td.OrderIndex,
				Position:       j,
				Status:         models.TaskPending,
				EstimatedHours: td.EstimatedHours,
				Deadline:       td.Deadline,
			}
			if err := p.store.CreateTask(ctx, &task); err != nil {
				created = append(created, module)
				return created, apperr.Persistence(fmt.Sprintf("failed to save task %q", td.Title), err)
			}
			metrics.RecordPersistedRow("tasks")
			module.Tasks = append(module.Tasks, task)
		}

		created = append(created, module)
		p.logger.Debug("module persisted", "project_id", projectID, "module_id", module.ID, "tasks", len(module.Tasks))
	}

	if err := p.store.ActivateProject(ctx, projectID, raw); err != nil {
		return created, apperr.Persistence("failed to activate project", err)
	}
	return created, nil
}
