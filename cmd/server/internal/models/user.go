package models

import "time"

// User 经鉴权边界验证后的调用者身份，只在认证中间件中构造一次
type User struct {
	SubjectID string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// Profile 用户档案（profiles 表），仅 skill_level/preferred_pace 参与 prompt 构造
type Profile struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	Email                string    `gorm:"-" json:"email"`
	FullName             *string   `gorm:"size:100" json:"full_name"`
	SkillLevel           *string   `gorm:"size:16" json:"skill_level"`
	AvailableHoursPerDay *float64  `json:"available_hours_per_day"`
	PreferredPace        *string   `gorm:"size:16" json:"preferred_pace"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ProfileUpdate 档案更新请求，只更新非空字段
type ProfileUpdate struct {
	FullName             *string  `json:"full_name" binding:"omitempty,max=100"`
	SkillLevel           *string  `json:"skill_level" binding:"omitempty,oneof=junior medium senior"`
	AvailableHoursPerDay *float64 `json:"available_hours_per_day" binding:"omitempty,gte=0.5,lte=24"`
	PreferredPace        *string  `json:"preferred_pace" binding:"omitempty,oneof=relaxed medium aggressive"`
}

// Fields 返回需要更新的列，空更新返回空 map
func (u ProfileUpdate) Fields() map[string]any {
	fields := map[string]any{}
	if u.FullName != nil {
		fields["full_name"] = *u.FullName
	}
	if u.SkillLevel != nil {
		fields["skill_level"] = *u.SkillLevel
	}
	if u.AvailableHoursPerDay != nil {
		fields["available_hours_per_day"] = *u.AvailableHoursPerDay
	}
	if u.PreferredPace != nil {
		fields["preferred_pace"] = *u.PreferredPace
	}
	return fields
}
