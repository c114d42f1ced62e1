package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// Recipient 活动接收人
type Recipient struct {
	StudentId int64
	Address   string
}

// RecipientPredicate 自定义资格断言，返回符合条件的接收人
type RecipientPredicate func(db *gorm.DB) ([]Recipient, error)

// CampaignLogic 活动分发业务逻辑
// 活动执行通过 active -> executing 的条件更新取得互斥，状态占用与全量应付
// 记录同事务提交；先落应付记录再转账，无交易哈希的记录代表应付未付，可被安全重试
type CampaignLogic struct {
	db         *gorm.DB
	client     ledger.Client
	notifier   notify.Notifier
	predicates map[string]RecipientPredicate
	maxWorkers int
}

// NewCampaignLogic 创建活动分发业务逻辑
func NewCampaignLogic(db *gorm.DB, client ledger.Client, notifier notify.Notifier) *CampaignLogic {
	return &CampaignLogic{
		db:         db,
		client:     client,
		notifier:   notifier,
		predicates: make(map[string]RecipientPredicate),
		maxWorkers: 4,
	}
}

// RegisterPredicate 注册自定义资格断言
func (cl *CampaignLogic) RegisterPredicate(ref string, fn RecipientPredicate) {
	cl.predicates[ref] = fn
}

// CreateCampaign 创建活动，奖池金额创建后不可变更
func (cl *CampaignLogic) CreateCampaign(campaign *model.CampaignModel) error {
	if campaign.Name == "" {
		return errors.New("活动名称不能为空")
	}
	if campaign.PoolAmountStroops <= 0 {
		return ErrInvalidAmount
	}
	switch campaign.Criteria {
	case model.CriteriaVerifiedStudents, model.CriteriaActiveProjects:
	case model.CriteriaCustom:
		if campaign.CriteriaRef == "" {
			return ErrInvalidCriteria
		}
	default:
		return ErrInvalidCriteria
	}

	campaign.Status = model.CampaignStatusActive
	if err := cl.db.Create(campaign).Error; err != nil {
		return fmt.Errorf("创建活动失败: %w", err)
	}

	logger.Info("Created campaign %d: criteria=%s, pool=%d",
		campaign.Id, campaign.Criteria, campaign.PoolAmountStroops)
	return nil
}

// GetCampaign 获取活动及其分发记录
func (cl *CampaignLogic) GetCampaign(campaignId int64) (*model.CampaignModel, []model.CampaignDistributionModel, error) {
	var campaign model.CampaignModel
	if err := cl.db.First(&campaign, campaignId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrCampaignNotFound
		}
		return nil, nil, fmt.Errorf("查询活动失败: %w", err)
	}

	var distributions []model.CampaignDistributionModel
	if err := cl.db.Where("campaign_id = ?", campaignId).
		Order("id ASC").
		Find(&distributions).Error; err != nil {
		return nil, nil, fmt.Errorf("查询分发记录失败: %w", err)
	}

	return &campaign, distributions, nil
}

// ExecutionSummary 活动执行结果
type ExecutionSummary struct {
	CampaignId       int64 `json:"campaign_id"`
	RecipientCount   int   `json:"recipient_count"`
	PerAmountStroops int64 `json:"per_amount_stroops"`
	RemainderStroops int64 `json:"remainder_stroops"`
	Settled          int   `json:"settled"`
	Pending          int   `json:"pending"`
	Completed        bool  `json:"completed"`
}

// Execute 执行活动分发
// 拆分规则: 奖池按接收人数向下取整等分，余数计入首位接收人（按学生ID升序），
// 分发总额恒等于奖池金额
// 状态占用与全量应付记录在同一事务内提交: 中断后活动要么仍为active且无记录
// （可重新执行），要么为executing且记录完整（由结算任务续跑），不存在中间态
func (cl *CampaignLogic) Execute(ctx context.Context, campaignId int64) (*ExecutionSummary, error) {
	var campaign model.CampaignModel
	if err := cl.db.First(&campaign, campaignId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("查询活动失败: %w", err)
	}

	tx := cl.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// 1. 原子占用: 仅当状态为active时置为executing
	claim := tx.Model(&model.CampaignModel{}).
		Where("id = ? AND status = ?", campaignId, model.CampaignStatusActive).
		Update("status", model.CampaignStatusExecuting)
	if claim.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("占用活动失败: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrNotActive
	}

	// 2. 评估资格条件，得到按学生ID升序去重的接收人列表
	// 失败时回滚连同状态占用一并撤销，活动保持active可修正后重试
	recipients, err := cl.evaluateCriteria(tx, campaign)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(recipients) == 0 {
		tx.Rollback()
		return nil, ErrNoEligibleRecipients
	}

	// 3. 等额拆分，向下取整到stroop，余数给首位接收人
	per := campaign.PoolAmountStroops / int64(len(recipients))
	remainder := campaign.PoolAmountStroops % int64(len(recipients))

	// 4. 应付记录与状态占用同事务落库，转账在事务提交后进行；
	// 已存在的记录保留原金额，绝不重算
	for i, recipient := range recipients {
		amount := per
		if i == 0 {
			amount += remainder
		}

		var existing model.CampaignDistributionModel
		err := tx.Where("campaign_id = ? AND recipient_id = ?", campaign.Id, recipient.StudentId).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tx.Rollback()
			return nil, fmt.Errorf("查询分发记录失败: %w", err)
		}

		distribution := &model.CampaignDistributionModel{
			CampaignId:       campaign.Id,
			RecipientId:      recipient.StudentId,
			RecipientAddress: recipient.Address,
			AmountStroops:    amount,
		}
		if err := tx.Create(distribution).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("创建分发记录失败: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交活动执行事务失败: %w", err)
	}

	// 5. 结算应付记录
	settled, err := cl.settlePending(ctx, campaign.Id)
	if err != nil {
		return nil, err
	}

	pending, completed, err := cl.finalize(ctx, &campaign)
	if err != nil {
		return nil, err
	}

	logger.Info("Executed campaign %d: recipients=%d, per=%d, remainder=%d, settled=%d, pending=%d",
		campaign.Id, len(recipients), per, remainder, settled, pending)

	return &ExecutionSummary{
		CampaignId:       campaign.Id,
		RecipientCount:   len(recipients),
		PerAmountStroops: per,
		RemainderStroops: remainder,
		Settled:          settled,
		Pending:          pending,
		Completed:        completed,
	}, nil
}

// RetryPending 重试执行中活动的应付未付记录，已支付记录不受影响
func (cl *CampaignLogic) RetryPending(ctx context.Context, campaignId int64) (*ExecutionSummary, error) {
	var campaign model.CampaignModel
	if err := cl.db.First(&campaign, campaignId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("查询活动失败: %w", err)
	}
	if campaign.Status != model.CampaignStatusExecuting {
		return nil, ErrNotExecuting
	}

	settled, err := cl.settlePending(ctx, campaign.Id)
	if err != nil {
		return nil, err
	}

	pending, completed, err := cl.finalize(ctx, &campaign)
	if err != nil {
		return nil, err
	}

	return &ExecutionSummary{
		CampaignId: campaign.Id,
		Settled:    settled,
		Pending:    pending,
		Completed:  completed,
	}, nil
}

// Pause 暂停活动，已提交的转账继续完成，未提交的不再发起
func (cl *CampaignLogic) Pause(campaignId int64) error {
	result := cl.db.Model(&model.CampaignModel{}).
		Where("id = ? AND status IN ?", campaignId,
			[]model.CampaignStatus{model.CampaignStatusActive, model.CampaignStatusExecuting}).
		Update("status", model.CampaignStatusPaused)
	if result.Error != nil {
		return fmt.Errorf("暂停活动失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var campaign model.CampaignModel
		if err := cl.db.First(&campaign, campaignId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return fmt.Errorf("查询活动失败: %w", err)
		}
		return errors.New("活动当前状态不可暂停")
	}

	logger.Info("Paused campaign %d", campaignId)
	return nil
}

// Resume 恢复已暂停活动
// 已有分发记录的回到executing由结算任务续跑，否则回到active
func (cl *CampaignLogic) Resume(campaignId int64) error {
	var count int64
	if err := cl.db.Model(&model.CampaignDistributionModel{}).
		Where("campaign_id = ?", campaignId).
		Count(&count).Error; err != nil {
		return fmt.Errorf("查询分发记录失败: %w", err)
	}

	target := model.CampaignStatusActive
	if count > 0 {
		target = model.CampaignStatusExecuting
	}

	result := cl.db.Model(&model.CampaignModel{}).
		Where("id = ? AND status = ?", campaignId, model.CampaignStatusPaused).
		Update("status", target)
	if result.Error != nil {
		return fmt.Errorf("恢复活动失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var campaign model.CampaignModel
		if err := cl.db.First(&campaign, campaignId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return fmt.Errorf("查询活动失败: %w", err)
		}
		return errors.New("活动不在暂停状态")
	}

	logger.Info("Resumed campaign %d to %s", campaignId, target)
	return nil
}

// settlePending 并发结算活动中尚无交易哈希的分发记录，返回本次新结算的笔数
// 单个接收人转账失败不阻塞其余接收人；活动被暂停后不再发起新转账
func (cl *CampaignLogic) settlePending(ctx context.Context, campaignId int64) (int, error) {
	var rows []model.CampaignDistributionModel
	if err := cl.db.Where("campaign_id = ? AND tx_hash = ?", campaignId, "").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("查询应付分发记录失败: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	workers := cl.maxWorkers
	if len(rows) < workers {
		workers = len(rows)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return 0, fmt.Errorf("failed to create settlement pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)

	for _, row := range rows {
		// 暂停检查
		var campaign model.CampaignModel
		if err := cl.db.Select("status").First(&campaign, campaignId).Error; err == nil &&
			campaign.Status == model.CampaignStatusPaused {
			logger.Info("Campaign %d paused, leaving remaining distributions pending", campaignId)
			break
		}

		row := row
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if cl.settleOne(ctx, &row) {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			logger.Error("Failed to submit settlement task for distribution %d: %v", row.Id, err)
		}
	}

	wg.Wait()
	return settled, nil
}

// settleOne 结算单条分发记录，返回是否成功
func (cl *CampaignLogic) settleOne(ctx context.Context, row *model.CampaignDistributionModel) bool {
	receipt, err := cl.client.SubmitPayment(ctx, ledger.PaymentRequest{
		From:          ledger.AccountRewards,
		To:            row.RecipientAddress,
		AmountStroops: row.AmountStroops,
		Memo:          fmt.Sprintf("camp:%d", row.CampaignId),
	})
	if err != nil {
		// 单点失败隔离: 记录保持应付未付，等待重试
		logger.Error("Failed to settle distribution %d (campaign %d, recipient %d): %v",
			row.Id, row.CampaignId, row.RecipientId, err)
		return false
	}

	result := cl.db.Model(&model.CampaignDistributionModel{}).
		Where("id = ? AND tx_hash = ?", row.Id, "").
		Update("tx_hash", receipt.Hash)
	if result.Error != nil {
		logger.Error("Distribution %d paid (tx %s) but hash not persisted: %v",
			row.Id, receipt.Hash, result.Error)
		return false
	}
	return result.RowsAffected > 0
}

// finalize 校验后将活动置为完成
// 完成条件: 无应付未付记录，且分发记录存在、总额恒等于奖池；
// 记录缺失或总额不符时保持executing并告警，绝不带着未分完的奖池完成
func (cl *CampaignLogic) finalize(ctx context.Context, campaign *model.CampaignModel) (int, bool, error) {
	var pending int64
	if err := cl.db.Model(&model.CampaignDistributionModel{}).
		Where("campaign_id = ? AND tx_hash = ?", campaign.Id, "").
		Count(&pending).Error; err != nil {
		return 0, false, fmt.Errorf("统计应付分发记录失败: %w", err)
	}
	if pending > 0 {
		return int(pending), false, nil
	}

	var tally struct {
		RowCount int64
		Total    int64
	}
	if err := cl.db.Model(&model.CampaignDistributionModel{}).
		Select("COUNT(*) AS row_count, COALESCE(SUM(amount_stroops), 0) AS total").
		Where("campaign_id = ?", campaign.Id).
		Scan(&tally).Error; err != nil {
		return 0, false, fmt.Errorf("统计分发总额失败: %w", err)
	}
	if tally.RowCount == 0 || tally.Total != campaign.PoolAmountStroops {
		logger.Error("Campaign %d settled %d rows totalling %d against pool %d, refusing to complete",
			campaign.Id, tally.RowCount, tally.Total, campaign.PoolAmountStroops)
		return 0, false, nil
	}

	result := cl.db.Model(&model.CampaignModel{}).
		Where("id = ? AND status = ?", campaign.Id, model.CampaignStatusExecuting).
		Update("status", model.CampaignStatusCompleted)
	if result.Error != nil {
		return 0, false, fmt.Errorf("更新活动状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}

	logger.Info("Campaign %d completed", campaign.Id)
	publishEvent(ctx, cl.notifier, notify.EventCampaignCompleted, map[string]interface{}{
		"campaign_id": campaign.Id,
	})
	return 0, true, nil
}

// evaluateCriteria 在给定事务内评估资格条件，返回按学生ID升序去重的接收人列表
func (cl *CampaignLogic) evaluateCriteria(tx *gorm.DB, campaign model.CampaignModel) ([]Recipient, error) {
	switch campaign.Criteria {
	case model.CriteriaVerifiedStudents:
		return cl.recipientsFromQuery(tx.
			Table("student").
			Select("student.id AS student_id, wallet.address AS address").
			Joins("JOIN wallet ON wallet.student_id = student.id").
			Where("student.verified = ?", true).
			Order("student.id ASC, wallet.address ASC"))
	case model.CriteriaActiveProjects:
		return cl.recipientsFromQuery(tx.
			Table("student").
			Select("DISTINCT student.id AS student_id, wallet.address AS address").
			Joins("JOIN wallet ON wallet.student_id = student.id").
			Joins("JOIN project ON project.student_id = student.id").
			Where("project.status = ?", model.ProjectStatusActive).
			Order("student.id ASC, wallet.address ASC"))
	case model.CriteriaCustom:
		fn, exists := cl.predicates[campaign.CriteriaRef]
		if !exists {
			return nil, ErrUnknownPredicate
		}
		recipients, err := fn(tx)
		if err != nil {
			return nil, fmt.Errorf("自定义资格断言执行失败: %w", err)
		}
		return dedupRecipients(recipients), nil
	default:
		return nil, ErrInvalidCriteria
	}
}

// recipientsFromQuery 执行资格查询并去重
func (cl *CampaignLogic) recipientsFromQuery(query *gorm.DB) ([]Recipient, error) {
	var recipients []Recipient
	if err := query.Scan(&recipients).Error; err != nil {
		return nil, fmt.Errorf("评估活动资格条件失败: %w", err)
	}
	return dedupRecipients(recipients), nil
}

// dedupRecipients 按学生ID去重并剔除无钱包地址的接收人，保持输入顺序
func dedupRecipients(in []Recipient) []Recipient {
	seen := make(map[int64]bool, len(in))
	out := make([]Recipient, 0, len(in))
	for _, recipient := range in {
		if recipient.Address == "" || seen[recipient.StudentId] {
			continue
		}
		seen[recipient.StudentId] = true
		out = append(out, recipient)
	}
	return out
}
