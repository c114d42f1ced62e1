package task

import (
	"github.com/go-co-op/gocron/v2"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/notify"
	"gorm.io/gorm"
)

// Job 周期任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	client    ledger.Client
	notifier  notify.Notifier
	config    *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, client ledger.Client, notifier notify.Notifier, cfg *config.Config) *Manager {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler: scheduler,
		db:        db,
		client:    client,
		notifier:  notifier,
		config:    cfg,
	}
}

// Start 创建任务管理器，注册所有任务并启动调度器
func Start(db *gorm.DB, client ledger.Client, notifier notify.Notifier, cfg *config.Config) *Manager {
	manager := NewManager(db, client, notifier, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	m.registerJob(NewDonationReconcileJob(m.db, m.config, m.client, m.notifier))
	m.registerJob(NewWalletSyncJob(m.db, m.config, m.client))
	m.registerJob(NewAnalyticsJob(m.db, m.config))
	m.registerJob(NewCampaignSettleJob(m.db, m.config, m.client, m.notifier))
}

// registerJob 注册单个任务
// 单飞模式: 上一轮尚未结束时跳过本轮，同一任务永不并发
func (m *Manager) registerJob(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
		return
	}
	logger.Info("Registered job: %s", job.GetName())
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
