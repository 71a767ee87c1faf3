package models

import (
	"fmt"
	"strings"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
)

// PlanningMode 规划模式
type PlanningMode string

const (
	// PlanningDeadline 固定截止日期驱动排期
	PlanningDeadline PlanningMode = "deadline"
	// PlanningOpen 由工作量估算驱动排期
	PlanningOpen PlanningMode = "open"
)

// SkillLevel 开发者技能水平
type SkillLevel string

const (
	SkillJunior SkillLevel = "junior"
	SkillMedium SkillLevel = "medium"
	SkillSenior SkillLevel = "senior"
)

// Pace 开发节奏
type Pace string

const (
	PaceRelaxed    Pace = "relaxed"
	PaceMedium     Pace = "medium"
	PaceAggressive Pace = "aggressive"
)

const (
	// DefaultWorkingHours 未指定时的每日工作小时数
	DefaultWorkingHours = 6.0
	MinWorkingHours     = 1.0
	MaxWorkingHours     = 16.0

	minDescriptionLen = 10
	maxTitleLen       = 200
)

// CreateProjectRequest 创建项目并生成 roadmap 的请求
type CreateProjectRequest struct {
	Title              string       `json:"title" binding:"required,max=200"`
	Description        string       `json:"description" binding:"required,min=10"`
	TechStack          []string     `json:"tech_stack"`
	PlanningMode       PlanningMode `json:"planning_mode" binding:"required,oneof=deadline open"`
	DeadlineDate       *Date        `json:"deadline_date"`
	WorkingHoursPerDay *float64     `json:"working_hours_per_day" binding:"omitempty,gte=1,lte=16"`
}

// HoursPerDay 返回每日工作小时数（含默认值）
func (r *CreateProjectRequest) HoursPerDay() float64 {
	if r.WorkingHoursPerDay == nil {
		return DefaultWorkingHours
	}
	return *r.WorkingHoursPerDay
}

// Validate 校验请求，today 为当前日历日期
// 在创建项目与调用 LLM 之前执行；open 模式下忽略截止日期
func (r *CreateProjectRequest) Validate(today Date) error {
	if strings.TrimSpace(r.Title) == "" {
		return apperr.Validation("title is required.")
	}
	if len([]rune(r.Title)) > maxTitleLen {
		return apperr.Validation(fmt.Sprintf("title must be at most %d characters.", maxTitleLen))
	}
	if len([]rune(strings.TrimSpace(r.Description))) < minDescriptionLen {
		return apperr.Validation(fmt.Sprintf("description must be at least %d characters.", minDescriptionLen))
	}
	hours := r.HoursPerDay()
	if hours < MinWorkingHours || hours > MaxWorkingHours {
		return apperr.Validation(fmt.Sprintf("working_hours_per_day must be between %g and %g.", MinWorkingHours, MaxWorkingHours))
	}

	switch r.PlanningMode {
	case PlanningDeadline:
		if r.DeadlineDate == nil {
			return apperr.Validation("deadline_date is required when planning_mode is 'deadline'.")
		}
		if !r.DeadlineDate.After(today.Time) {
			return apperr.Validation("deadline_date must be in the future.")
		}
	case PlanningOpen:
		r.DeadlineDate = nil
	default:
		return apperr.Validation(fmt.Sprintf("planning_mode must be 'deadline' or 'open', got %q.", r.PlanningMode))
	}
	return nil
}

// RoadmapRequest 构造 prompt 所需的全部输入，不可变
type RoadmapRequest struct {
	Description        string
	TechStack          []string
	PlanningMode       PlanningMode
	DeadlineDate       *Date
	WorkingHoursPerDay float64
	SkillLevel         SkillLevel
	PreferredPace      Pace
}

// NewRoadmapRequest 由已校验的创建请求与用户档案组装，档案缺失时取默认值
func NewRoadmapRequest(req *CreateProjectRequest, profile *Profile) RoadmapRequest {
	rr := RoadmapRequest{
		Description:        req.Description,
		TechStack:          append([]string(nil), req.TechStack...),
		PlanningMode:       req.PlanningMode,
		WorkingHoursPerDay: req.HoursPerDay(),
		SkillLevel:         SkillMedium,
		PreferredPace:      PaceMedium,
	}
	if req.PlanningMode == PlanningDeadline {
		rr.DeadlineDate = req.DeadlineDate
	}
	if profile != nil {
		if profile.SkillLevel != nil && *profile.SkillLevel != "" {
			rr.SkillLevel = SkillLevel(*profile.SkillLevel)
		}
		if profile.PreferredPace != nil && *profile.PreferredPace != "" {
			rr.PreferredPace = Pace(*profile.PreferredPace)
		}
	}
	return rr
}

// UpdateTaskStatusRequest 更新任务状态的请求
type UpdateTaskStatusRequest struct {
	Status TaskStatus `json:"status" binding:"required,oneof=pending in_progress completed blocked"`
}
