package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// DonationReconcileJob 捐赠对账任务
// 将待确认捐赠意向与账本入账按memo精确匹配。游标在整页处理完成后才持久化，
// 崩溃后从上一次持久化的位置重扫，配合确认幂等实现至少一次扫描、恰好一次记账。
// 匹配冲突（重复占用、不一致）记录日志后跳过并照常推进游标；
// 其余持久化错误中止本轮且不推进游标，下一轮重新推导
type DonationReconcileJob struct {
	db            *gorm.DB
	config        *config.Config
	client        ledger.Client
	donationLogic *logic.DonationLogic
	cursorLogic   *logic.CursorLogic
}

// NewDonationReconcileJob 创建捐赠对账任务
func NewDonationReconcileJob(db *gorm.DB, cfg *config.Config, client ledger.Client, notifier notify.Notifier) *DonationReconcileJob {
	return &DonationReconcileJob{
		db:            db,
		config:        cfg,
		client:        client,
		donationLogic: logic.NewDonationLogic(db, notifier),
		cursorLogic:   logic.NewCursorLogic(db),
	}
}

// GetName 获取任务名称
func (j *DonationReconcileJob) GetName() string {
	return "donation_reconcile_updater"
}

// GetSchedule 获取调度配置
func (j *DonationReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.ReconcileInterval) * time.Second)
}

// Execute 执行任务
func (j *DonationReconcileJob) Execute() {
	logger.Info("Starting donation reconcile task")

	interval := time.Duration(j.config.Task.ReconcileInterval) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	accounts := j.watchAccounts()
	if len(accounts) == 0 {
		logger.Warn("No watch accounts configured, skipping ledger scan")
	} else {
		// 每个监听账户持有独立游标，临时协程池并发对账
		pool, err := ants.NewPool(len(accounts))
		if err != nil {
			logger.Error("Failed to create reconcile pool: %v", err)
			return
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for _, account := range accounts {
			account := account
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				j.reconcileAccount(ctx, account)
			}); err != nil {
				wg.Done()
				logger.Error("Failed to submit reconcile task for %s: %v", account, err)
			}
		}
		wg.Wait()
	}

	// 过期清扫: 超窗仍未匹配的意向置为失败终态，停止继续匹配
	window := time.Duration(j.config.Task.DonationExpiryHours) * time.Hour
	expired, err := j.donationLogic.ExpirePending(ctx, window, 500)
	if err != nil {
		logger.Error("Failed to expire stale donation intents: %v", err)
	} else if expired > 0 {
		logger.Info("Expired %d stale donation intents", expired)
	}

	logger.Info("Donation reconcile task completed")
}

// watchAccounts 获取监听入账的账户地址（排序保证遍历顺序稳定）
func (j *DonationReconcileJob) watchAccounts() []string {
	var accounts []string
	for _, account := range j.config.Stellar.Accounts {
		if account.Watch && account.Address != "" {
			accounts = append(accounts, account.Address)
		}
	}
	sort.Strings(accounts)
	return accounts
}

// reconcileAccount 对单个账户执行一轮对账
func (j *DonationReconcileJob) reconcileAccount(ctx context.Context, account string) {
	cursorName := "donation_reconcile:" + account

	cursor, err := j.cursorLogic.Get(cursorName)
	if err != nil {
		logger.Error("Failed to load cursor for %s: %v", account, err)
		return
	}

	// 1. 拉取待确认意向快照，按memo建立索引
	pending, err := j.donationLogic.ListPendingStellar()
	if err != nil {
		logger.Error("Failed to fetch pending intents: %v", err)
		return
	}
	byMemo := make(map[string]*model.DonationIntentModel, len(pending))
	for i := range pending {
		byMemo[pending[i].Memo] = &pending[i]
	}

	limit := j.config.Task.FetchLimit
	maxPages := j.config.Task.MaxPages
	confirmed := 0

	// 2. 自游标起分页扫描入账交易
	for page := 0; page < maxPages; page++ {
		txs, nextCursor, err := j.client.FetchTransactions(ctx, account, cursor, limit)
		if err != nil {
			// 瞬时失败: 不推进游标，下一轮从同一位置重试
			logger.Error("Failed to fetch transactions for %s (cursor %q): %v", account, cursor, err)
			return
		}
		if len(txs) == 0 {
			break
		}

		// 3. 逐笔匹配确认
		if ok := j.processPage(ctx, txs, byMemo, &confirmed); !ok {
			return
		}

		// 4. 整页处理完成后才推进并持久化游标
		if nextCursor != "" && nextCursor != cursor {
			if err := j.cursorLogic.Put(cursorName, nextCursor); err != nil {
				logger.Error("Failed to persist cursor for %s: %v", account, err)
				return
			}
			cursor = nextCursor
		}

		if len(txs) < limit {
			break
		}
	}

	if confirmed > 0 {
		logger.Info("Reconciled %d donations for account %s", confirmed, account)
	}
}

// processPage 处理一页交易，返回false表示发生持久化错误，本轮中止且游标不推进
func (j *DonationReconcileJob) processPage(ctx context.Context, txs []ledger.Transaction, byMemo map[string]*model.DonationIntentModel, confirmed *int) bool {
	for _, tx := range txs {
		if !tx.Successful || tx.Memo == "" {
			continue
		}

		intent, exists := byMemo[tx.Memo]
		if !exists {
			if !logic.IsDonationMemo(tx.Memo) {
				continue
			}
			// 意向可能在快照之后才创建，按memo兜底查询
			fresh, err := j.donationLogic.GetPendingByMemo(tx.Memo)
			if err != nil {
				logger.Error("Failed to look up intent by memo %s: %v", tx.Memo, err)
				return false
			}
			if fresh == nil {
				continue
			}
			intent = fresh
		}

		// 金额零容差精确匹配，不做模糊归属
		if tx.AmountStroops != intent.AmountStroops {
			logger.Warn("Memo %s matched intent %d but amount differs (tx=%d, intent=%d), skipping",
				tx.Memo, intent.Id, tx.AmountStroops, intent.AmountStroops)
			continue
		}

		_, err := j.donationLogic.MarkConfirmed(ctx, intent.Id, tx.Hash)
		switch {
		case err == nil:
			*confirmed++
			delete(byMemo, tx.Memo)
		case errors.Is(err, logic.ErrDuplicateClaim):
			// 一笔支付最多记入一个意向，冲突留待人工处理
			logger.Error("Transaction %s already claimed, intent %d left pending for review", tx.Hash, intent.Id)
		case errors.Is(err, logic.ErrInconsistentMatch):
			logger.Error("Inconsistent match for intent %d (tx %s), flagged for manual review", intent.Id, tx.Hash)
		default:
			logger.Error("Failed to confirm intent %d with tx %s: %v", intent.Id, tx.Hash, err)
			return false
		}
	}
	return true
}
