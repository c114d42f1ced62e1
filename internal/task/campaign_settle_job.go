package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"gorm.io/gorm"
)

// CampaignSettleJob 活动结算任务
// 重驱执行中的活动: 结算应付未付的分发记录，全部结清后置为完成，
// 崩溃或部分转账失败的活动由此续跑
type CampaignSettleJob struct {
	db            *gorm.DB
	config        *config.Config
	campaignLogic *logic.CampaignLogic
}

// NewCampaignSettleJob 创建活动结算任务
func NewCampaignSettleJob(db *gorm.DB, cfg *config.Config, client ledger.Client, notifier notify.Notifier) *CampaignSettleJob {
	return &CampaignSettleJob{
		db:            db,
		config:        cfg,
		campaignLogic: logic.NewCampaignLogic(db, client, notifier),
	}
}

// GetName 获取任务名称
func (j *CampaignSettleJob) GetName() string {
	return "campaign_settle_updater"
}

// GetSchedule 获取调度配置
func (j *CampaignSettleJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.CampaignSettleInterval) * time.Second)
}

// Execute 执行任务
func (j *CampaignSettleJob) Execute() {
	logger.Info("Starting campaign settle task")

	interval := time.Duration(j.config.Task.CampaignSettleInterval) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	var campaigns []model.CampaignModel
	if err := j.db.Where("status = ?", model.CampaignStatusExecuting).
		Order("id ASC").
		Find(&campaigns).Error; err != nil {
		logger.Error("Failed to fetch executing campaigns: %v", err)
		return
	}

	settled := 0
	completed := 0
	for _, campaign := range campaigns {
		summary, err := j.campaignLogic.RetryPending(ctx, campaign.Id)
		if err != nil {
			logger.Error("Failed to settle campaign %d: %v", campaign.Id, err)
			continue
		}
		settled += summary.Settled
		if summary.Completed {
			completed++
		}
	}

	logger.Info("Campaign settle task completed. Settled %d distributions, completed %d campaigns",
		settled, completed)
}
