package model

import (
	"time"
)

// AnalyticsSummaryModel 平台每日统计汇总模型
type AnalyticsSummaryModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Day string `json:"day" gorm:"uniqueIndex;not null"` // 格式 2006-01-02

	// 捐赠统计
	ConfirmedDonations  int64 `json:"confirmed_donations"`
	PendingDonations    int64 `json:"pending_donations"`
	FailedDonations     int64 `json:"failed_donations"`
	TotalDonatedStroops int64 `json:"total_donated_stroops"`

	// 项目与学生统计
	ActiveProjects   int64 `json:"active_projects"`
	VerifiedStudents int64 `json:"verified_students"`

	// 托管与活动统计
	ReleasedMilestones    int64 `json:"released_milestones"`
	EscrowReleasedStroops int64 `json:"escrow_released_stroops"`
	DistributedStroops    int64 `json:"distributed_stroops"`
}

// TableName 自定义表名
func (AnalyticsSummaryModel) TableName() string {
	return "analytics_summary"
}
