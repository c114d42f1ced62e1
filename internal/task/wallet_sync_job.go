package task

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/model"
	"gorm.io/gorm"
)

// 单轮同步的钱包数量上限
const walletSyncBatchSize = 100

// WalletSyncJob 钱包余额同步任务
// 从账本回填学生钱包的余额缓存，最久未同步的优先
type WalletSyncJob struct {
	db     *gorm.DB
	config *config.Config
	client ledger.Client
}

// NewWalletSyncJob 创建钱包余额同步任务
func NewWalletSyncJob(db *gorm.DB, cfg *config.Config, client ledger.Client) *WalletSyncJob {
	return &WalletSyncJob{
		db:     db,
		config: cfg,
		client: client,
	}
}

// GetName 获取任务名称
func (j *WalletSyncJob) GetName() string {
	return "wallet_sync_updater"
}

// GetSchedule 获取调度配置
func (j *WalletSyncJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.WalletSyncInterval) * time.Second)
}

// Execute 执行任务
func (j *WalletSyncJob) Execute() {
	logger.Info("Starting wallet sync task")

	interval := time.Duration(j.config.Task.WalletSyncInterval) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	var wallets []model.WalletModel
	if err := j.db.Order("last_synced_at ASC NULLS FIRST").
		Limit(walletSyncBatchSize).
		Find(&wallets).Error; err != nil {
		logger.Error("Failed to fetch wallets for sync: %v", err)
		return
	}

	synced := 0
	for _, wallet := range wallets {
		balance, err := j.client.FetchBalance(ctx, wallet.Address)
		if err != nil {
			// 未上链的账户余额视为0，其余错误跳过本轮
			if !errors.Is(err, ledger.ErrNotFound) {
				logger.Error("Failed to fetch balance for wallet %s: %v", wallet.Address, err)
				continue
			}
			balance = 0
		}

		now := time.Now()
		updates := map[string]interface{}{
			"balance_stroops": balance,
			"last_synced_at":  &now,
		}
		if err := j.db.Model(&wallet).Updates(updates).Error; err != nil {
			logger.Error("Failed to update wallet %d: %v", wallet.Id, err)
			continue
		}
		synced++
	}

	logger.Info("Wallet sync task completed. Synced %d wallets", synced)
}
