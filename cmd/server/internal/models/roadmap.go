package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectStatus 项目生命周期状态
type ProjectStatus string

const (
	ProjectPlanning ProjectStatus = "planning"
	ProjectActive   ProjectStatus = "active"
)

// ModuleStatus 模块状态，创建后不再流转
type ModuleStatus string

const ModulePending ModuleStatus = "pending"

// TaskStatus 任务状态，任意状态之间均可切换
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
)

// Valid 校验任务状态值
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked:
		return true
	}
	return false
}

// Project 项目
// 在调用 LLM 之前以 planning 状态创建，roadmap 全部写入后转为 active
type Project struct {
	ID                 string                      `gorm:"primaryKey;size:36" json:"id"`
	UserID             string                      `gorm:"size:36;index;not null" json:"user_id"`
	Title              string                      `gorm:"size:200;not null" json:"title"`
	Description        string                      `gorm:"type:text" json:"description"`
	TechStack          datatypes.JSONSlice[string] `json:"tech_stack"`
	PlanningMode       PlanningMode                `gorm:"size:16;not null" json:"planning_mode"`
	DeadlineDate       *Date                       `json:"deadline_date,omitempty"`
	WorkingHoursPerDay float64                     `json:"working_hours_per_day"`
	Status             ProjectStatus               `gorm:"size:16;not null;index" json:"status"`
	RawLLMResponse     datatypes.JSON              `gorm:"column:llm_raw_response" json:"-"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// BeforeCreate 由存储层分配 ID
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.TechStack == nil {
		p.TechStack = datatypes.JSONSlice[string]{}
	}
	return nil
}

// Module 项目阶段
// Position 为在 LLM 输出中的位置，order_index 相同时按其排序
type Module struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	ProjectID     string       `gorm:"size:36;index;not null" json:"project_id"`
	Title         string       `gorm:"size:255;not null" json:"title"`
	Description   string       `gorm:"type:text" json:"description"`
	OrderIndex    int          `json:"order_index"`
	Position      int          `json:"-"`
	Status        ModuleStatus `gorm:"size:16;not null" json:"status"`
	EstimatedDays *float64     `json:"estimated_days,omitempty"`
	StartDate     *Date        `json:"start_date,omitempty"`
	EndDate       *Date        `json:"end_date,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	Tasks         []Task       `gorm:"-" json:"tasks"`
}

// BeforeCreate 由存储层分配 ID
func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Task 模块下的任务，ProjectID 冗余存储以便按项目查询
type Task struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ModuleID       string     `gorm:"size:36;index;not null" json:"module_id"`
	ProjectID      string     `gorm:"size:36;index;not null" json:"project_id"`
	Title          string     `gorm:"size:255;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	OrderIndex     int        `json:"order_index"`
	Position       int        `json:"-"`
	Status         TaskStatus `gorm:"size:16;not null;index" json:"status"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	Deadline       *Date      `gorm:"index" json:"deadline,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BeforeCreate 由存储层分配 ID
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// ProjectWithRoadmap 项目详情（含模块与任务）
type ProjectWithRoadmap struct {
	Project
	Modules []Module `json:"modules"`
}

// DeadlineItem 即将到期的任务
type DeadlineItem struct {
	ProjectID    string     `json:"project_id"`
	ProjectTitle string     `json:"project_title"`
	TaskID       string     `json:"task_id"`
	TaskTitle    string     `json:"task_title"`
	Deadline     Date       `json:"deadline"`
	Status       TaskStatus `json:"status"`
}
