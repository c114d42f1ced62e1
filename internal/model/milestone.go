package model

import (
	"time"
)

// MilestoneModel 项目里程碑模型（托管释放单元）
type MilestoneModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId     int64  `json:"project_id" gorm:"not null;uniqueIndex:idx_milestone_project_position"`
	Position      int    `json:"position" gorm:"not null;uniqueIndex:idx_milestone_project_position"` // 项目内序号，从1开始严格按序释放
	Title         string `json:"title" gorm:"not null"`
	AmountStroops int64  `json:"amount_stroops" gorm:"not null"` // 本里程碑释放金额
	ProofRequired bool   `json:"proof_required" gorm:"default:false"`

	// 释放状态（一次性锁存，先转账后落库）
	Released   bool       `json:"released" gorm:"default:false"`
	ReleasedAt *time.Time `json:"released_at"`
	Recipient  string     `json:"recipient"`
	TxHash     string     `json:"tx_hash"`
}

// TableName 自定义表名
func (MilestoneModel) TableName() string {
	return "milestone"
}
