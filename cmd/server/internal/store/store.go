// Package store 基于 GORM 的关系存储：projects / modules / tasks / profiles
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

// ErrNotFound 记录不存在或不属于调用者
var ErrNotFound = errors.New("record not found")

const (
	// DefaultDeadlineLimit 即将到期任务的默认条数
	DefaultDeadlineLimit = 10
	// MaxDeadlineLimit 即将到期任务的最大条数
	MaxDeadlineLimit = 50
)

// Options 数据库连接参数
type Options struct {
	Driver       string // postgres, sqlite
	DSN          string
	MaxOpenConns int
	Debug        bool
}

// Store 关系存储
type Store struct {
	db *gorm.DB
}

// Open 打开数据库连接
func Open(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	level := gormlogger.Silent
	if opts.Debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	maxOpen := opts.MaxOpenConns
	if opts.Driver == "sqlite" {
		// SQLite 单写者；内存库每个连接是独立的数据库
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	return &Store{db: db}, nil
}

// New 使用已有连接
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 自动建表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Project{}, &models.Module{}, &models.Task{}, &models.Profile{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ===== projects =====

// CreateProject 插入项目，ID 由 BeforeCreate 分配
func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// ActivateProject 将项目置为 active 并保存 LLM 原始输出
func (s *Store) ActivateProject(ctx context.Context, projectID string, raw json.RawMessage) error {
	result := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"status":           models.ProjectActive,
			"llm_raw_response": datatypes.JSON(raw),
		})
	if result.Error != nil {
		return fmt.Errorf("activate project: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProject 读取属于 userID 的项目
func (s *Store) GetProject(ctx context.Context, projectID, userID string) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", projectID, userID).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	return &project, nil
}

// ListProjects 列出用户项目，按创建时间倒序
func (s *Store) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	projects := []models.Project{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	return projects, nil
}

// DeleteProject 级联删除项目及其模块、任务
func (s *Store) DeleteProject(ctx context.Context, projectID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", projectID, userID).Delete(&models.Project{})
		if result.Error != nil {
			return fmt.Errorf("delete project: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Task{}).Error; err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Module{}).Error; err != nil {
			return fmt.Errorf("delete modules: %w", err)
		}
		return nil
	})
}

// ===== modules / tasks =====

// CreateModule 插入模块，Tasks 不落库
func (s *Store) CreateModule(ctx context.Context, module *models.Module) error {
	if err := s.db.WithContext(ctx).Create(module).Error; err != nil {
		return fmt.Errorf("insert module: %w", err)
	}
	return nil
}

// ListModules 按 order_index 排序，相同时保持写入顺序
func (s *Store) ListModules(ctx context.Context, projectID string) ([]models.Module, error) {
	modules := []models.Module{}
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("order_index ASC").Order("position ASC").
		Find(&modules).Error
	if err != nil {
		return nil, fmt.Errorf("select modules: %w", err)
	}
	return modules, nil
}

// CreateTask 插入任务
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ListTasks 列出项目内全部任务，按 order_index 排序，相同时保持写入顺序
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("order_index ASC").Order("position ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus 更新任务状态；completedAt 非空时一并写入，否则保持原值
func (s *Store) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status models.TaskStatus, completedAt *time.Time) (*models.Task, error) {
	updates := map[string]any{"status": status}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}

	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).
			Where("id = ? AND project_id = ?", taskID, projectID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", taskID).First(&task).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpcomingDeadlines 用户全部项目中未完成且有截止日期的任务，按截止日期升序
func (s *Store) UpcomingDeadlines(ctx context.Context, userID string, limit int) ([]models.DeadlineItem, error) {
	if limit <= 0 {
		limit = DefaultDeadlineLimit
	}
	if limit > MaxDeadlineLimit {
		limit = MaxDeadlineLimit
	}

	type row struct {
		ProjectID    string
		ProjectTitle string
		TaskID       string
		TaskTitle    string
		Deadline     models.Date
		Status       models.TaskStatus
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("tasks").
		Select("tasks.project_id AS project_id, projects.title AS project_title, tasks.id AS task_id, tasks.title AS task_title, tasks.deadline AS deadline, tasks.status AS status").
		Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("projects.user_id = ? AND tasks.status <> ? AND tasks.deadline IS NOT NULL", userID, models.TaskCompleted).
		Order("tasks.deadline ASC").Order("tasks.position ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select deadlines: %w", err)
	}

	items := make([]models.DeadlineItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, models.DeadlineItem(r))
	}
	return items, nil
}

// ===== profiles =====

// GetProfile 读取用户档案
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &profile, nil
}

// UpsertProfile 更新档案，不存在时创建
func (s *Store) UpsertProfile(ctx context.Context, userID string, fields map[string]any) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", userID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.Profile{ID: userID}
			if err := tx.Create(&profile).Error; err != nil {
				return fmt.Errorf("insert profile: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("select profile: %w", err)
		}
		if len(fields) > 0 {
			if err := tx.Model(&profile).Updates(fields).Error; err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
		}
		return tx.Where("id = ?", userID).First(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
