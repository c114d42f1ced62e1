package model

import (
	"time"
)

// CampaignModel 奖励活动模型
type CampaignModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string           `json:"name" gorm:"not null" binding:"required"`
	Criteria    CampaignCriteria `json:"criteria" gorm:"not null"`
	CriteriaRef string           `json:"criteria_ref"` // 自定义断言ID（criteria为custom时使用）

	// 奖池金额（单位: stroops），创建后不可变更
	PoolAmountStroops int64 `json:"pool_amount_stroops" gorm:"not null"`

	Status CampaignStatus `json:"status" gorm:"default:'active'"`
}

// CampaignCriteria 活动资格条件
type CampaignCriteria string

const (
	CriteriaVerifiedStudents CampaignCriteria = "verified_students"       // 已认证学生
	CriteriaActiveProjects   CampaignCriteria = "active_project_students" // 有进行中项目的学生
	CriteriaCustom           CampaignCriteria = "custom"                  // 自定义断言
)

// CampaignStatus 活动状态
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"    // 待执行
	CampaignStatusExecuting CampaignStatus = "executing" // 执行中
	CampaignStatusCompleted CampaignStatus = "completed" // 已完成
	CampaignStatusPaused    CampaignStatus = "paused"    // 已暂停
)

// TableName 自定义表名
func (CampaignModel) TableName() string {
	return "campaign"
}
