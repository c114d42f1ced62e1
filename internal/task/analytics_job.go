package task

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsJob 平台统计汇总任务
// 按天聚合捐赠、项目、托管和活动数据，同一天内重复执行覆盖当日汇总行
type AnalyticsJob struct {
	db     *gorm.DB
	config *config.Config
}

// NewAnalyticsJob 创建统计汇总任务
func NewAnalyticsJob(db *gorm.DB, cfg *config.Config) *AnalyticsJob {
	return &AnalyticsJob{
		db:     db,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *AnalyticsJob) GetName() string {
	return "analytics_updater"
}

// GetSchedule 获取调度配置
func (j *AnalyticsJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.AnalyticsInterval) * time.Second)
}

// Execute 执行任务
func (j *AnalyticsJob) Execute() {
	logger.Info("Starting analytics aggregation task")

	summary := model.AnalyticsSummaryModel{Day: time.Now().Format("2006-01-02")}

	// 1. 捐赠统计（按状态分组）
	type donationAgg struct {
		Status string
		Count  int64
		Total  int64
	}
	var aggs []donationAgg
	if err := j.db.Model(&model.DonationIntentModel{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_stroops), 0) AS total").
		Group("status").
		Scan(&aggs).Error; err != nil {
		logger.Error("Failed to aggregate donations: %v", err)
		return
	}
	for _, agg := range aggs {
		switch model.DonationStatus(agg.Status) {
		case model.DonationStatusConfirmed:
			summary.ConfirmedDonations = agg.Count
			summary.TotalDonatedStroops = agg.Total
		case model.DonationStatusPending:
			summary.PendingDonations = agg.Count
		case model.DonationStatusFailed:
			summary.FailedDonations = agg.Count
		}
	}

	// 2. 项目与学生统计
	j.db.Model(&model.ProjectModel{}).
		Where("status = ?", model.ProjectStatusActive).
		Count(&summary.ActiveProjects)
	j.db.Model(&model.StudentModel{}).
		Where("verified = ?", true).
		Count(&summary.VerifiedStudents)

	// 3. 托管释放统计
	j.db.Model(&model.MilestoneModel{}).
		Where("released = ?", true).
		Count(&summary.ReleasedMilestones)
	j.db.Model(&model.MilestoneModel{}).
		Where("released = ?", true).
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&summary.EscrowReleasedStroops)

	// 4. 活动分发统计（仅已支付）
	j.db.Model(&model.CampaignDistributionModel{}).
		Where("tx_hash <> ?", "").
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&summary.DistributedStroops)

	// 5. 按天upsert
	if err := j.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"confirmed_donations", "pending_donations", "failed_donations",
			"total_donated_stroops", "active_projects", "verified_students",
			"released_milestones", "escrow_released_stroops", "distributed_stroops",
			"updated_at",
		}),
	}).Create(&summary).Error; err != nil {
		logger.Error("Failed to upsert analytics summary: %v", err)
		return
	}

	logger.Info("Analytics aggregation task completed for %s", summary.Day)
}
