package model

import (
	"time"
)

// ProjectModel 学生项目模型
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	StudentId   int64  `json:"student_id" gorm:"not null;index"`
	Title       string `json:"title" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category"`

	// 筹款信息（单位: stroops，1 XLM = 10^7 stroops）
	TargetAmountStroops  int64 `json:"target_amount_stroops" gorm:"not null"`
	CurrentAmountStroops int64 `json:"current_amount_stroops" gorm:"default:0"` // 已确认捐赠总额，由对账引擎从源数据重算写入

	// 状态
	Status ProjectStatus `json:"status" gorm:"default:'draft'"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft  ProjectStatus = "draft"  // 草稿
	ProjectStatusActive ProjectStatus = "active" // 进行中
	ProjectStatusFunded ProjectStatus = "funded" // 已达标
	ProjectStatusClosed ProjectStatus = "closed" // 已关闭
)

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
