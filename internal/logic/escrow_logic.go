package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevrollin/fhs/internal/attest"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"gorm.io/gorm"
)

// EscrowLogic 托管与里程碑业务逻辑
// 里程碑释放是一次性锁存: 先转账后落库，转账失败时里程碑保持未释放，
// 不允许出现已释放未支付的状态
type EscrowLogic struct {
	db       *gorm.DB
	client   ledger.Client
	verifier attest.Verifier
	notifier notify.Notifier
}

// NewEscrowLogic 创建托管业务逻辑
func NewEscrowLogic(db *gorm.DB, client ledger.Client, verifier attest.Verifier, notifier notify.Notifier) *EscrowLogic {
	return &EscrowLogic{
		db:       db,
		client:   client,
		verifier: verifier,
		notifier: notifier,
	}
}

// RegisterMilestone 注册项目里程碑
func (e *EscrowLogic) RegisterMilestone(milestone *model.MilestoneModel) error {
	// 1. 验证里程碑数据
	if milestone.ProjectId == 0 {
		return errors.New("项目ID不能为空")
	}
	if milestone.Position <= 0 {
		return errors.New("里程碑序号必须大于0")
	}
	if milestone.AmountStroops <= 0 {
		return ErrInvalidAmount
	}
	if milestone.Title == "" {
		return errors.New("里程碑标题不能为空")
	}

	// 2. 检查项目是否存在
	var project model.ProjectModel
	if err := e.db.First(&project, milestone.ProjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("查询项目失败: %w", err)
	}

	// 3. 同一项目内序号不可重复
	var count int64
	if err := e.db.Model(&model.MilestoneModel{}).
		Where("project_id = ? AND position = ?", milestone.ProjectId, milestone.Position).
		Count(&count).Error; err != nil {
		return fmt.Errorf("检查里程碑序号失败: %w", err)
	}
	if count > 0 {
		return ErrDuplicatePosition
	}

	milestone.Released = false
	milestone.ReleasedAt = nil
	milestone.Recipient = ""
	milestone.TxHash = ""

	if err := e.db.Create(milestone).Error; err != nil {
		return fmt.Errorf("创建里程碑失败: %w", err)
	}

	logger.Info("Registered milestone %d for project %d: position=%d, amount=%d",
		milestone.Id, milestone.ProjectId, milestone.Position, milestone.AmountStroops)
	return nil
}

// GetProjectMilestones 获取项目里程碑（按序号升序）
func (e *EscrowLogic) GetProjectMilestones(projectId int64) ([]model.MilestoneModel, error) {
	var milestones []model.MilestoneModel
	if err := e.db.Where("project_id = ?", projectId).
		Order("position ASC").
		Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("获取项目里程碑失败: %w", err)
	}
	return milestones, nil
}

// RecordDeposit 记录托管入金（按交易哈希幂等，重复通知返回已有记录）
func (e *EscrowLogic) RecordDeposit(projectId int64, donorAddress string, amountStroops int64, txHash string) (*model.EscrowDepositModel, error) {
	if amountStroops <= 0 {
		return nil, ErrInvalidAmount
	}
	if txHash == "" {
		return nil, errors.New("交易哈希不能为空")
	}

	// 幂等检查
	var existing model.EscrowDepositModel
	err := e.db.Where("tx_hash = ?", txHash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询托管入金记录失败: %w", err)
	}

	var project model.ProjectModel
	if err := e.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}

	deposit := &model.EscrowDepositModel{
		ProjectId:     projectId,
		DonorAddress:  donorAddress,
		AmountStroops: amountStroops,
		TxHash:        txHash,
	}
	if err := e.db.Create(deposit).Error; err != nil {
		return nil, fmt.Errorf("创建托管入金记录失败: %w", err)
	}

	logger.Info("Recorded escrow deposit %d for project %d: amount=%d, tx=%s",
		deposit.Id, projectId, amountStroops, txHash)
	return deposit, nil
}

// EscrowStatus 项目托管状态
type EscrowStatus struct {
	ProjectId        int64 `json:"project_id"`
	DepositedStroops int64 `json:"deposited_stroops"`
	ReleasedStroops  int64 `json:"released_stroops"`
	BalanceStroops   int64 `json:"balance_stroops"`
}

// Status 获取项目托管状态，余额从源数据重算
func (e *EscrowLogic) Status(projectId int64) (*EscrowStatus, error) {
	var project model.ProjectModel
	if err := e.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}

	deposited, err := e.totalDeposited(projectId)
	if err != nil {
		return nil, err
	}
	released, err := e.totalReleased(projectId)
	if err != nil {
		return nil, err
	}

	return &EscrowStatus{
		ProjectId:        projectId,
		DepositedStroops: deposited,
		ReleasedStroops:  released,
		BalanceStroops:   deposited - released,
	}, nil
}

// ReleaseReceipt 里程碑释放回执
type ReleaseReceipt struct {
	MilestoneId int64     `json:"milestone_id"`
	TxHash      string    `json:"tx_hash"`
	Ledger      int64     `json:"ledger"`
	ReleasedAt  time.Time `json:"released_at"`
}

// ReleaseMilestone 释放里程碑托管资金
// 校验顺序: 已释放 -> 序号顺序 -> 托管余额 -> 认证签名 -> 转账 -> 落库
func (e *EscrowLogic) ReleaseMilestone(ctx context.Context, milestoneId int64, recipient string, signature []byte) (*ReleaseReceipt, error) {
	if recipient == "" {
		return nil, errors.New("收款地址不能为空")
	}

	var milestone model.MilestoneModel
	if err := e.db.First(&milestone, milestoneId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("查询里程碑失败: %w", err)
	}

	// 1. 一次性锁存检查
	if milestone.Released {
		return nil, ErrAlreadyReleased
	}

	// 2. 严格按序释放: 所有前置里程碑必须已释放，与余额无关
	var unreleased int64
	if err := e.db.Model(&model.MilestoneModel{}).
		Where("project_id = ? AND position < ? AND released = ?",
			milestone.ProjectId, milestone.Position, false).
		Count(&unreleased).Error; err != nil {
		return nil, fmt.Errorf("检查前置里程碑失败: %w", err)
	}
	if unreleased > 0 {
		return nil, ErrOutOfOrder
	}

	// 3. 余额门槛: 累计入金须覆盖到本里程碑为止的累计释放目标
	var cumulative int64
	if err := e.db.Model(&model.MilestoneModel{}).
		Where("project_id = ? AND position <= ?", milestone.ProjectId, milestone.Position).
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&cumulative).Error; err != nil {
		return nil, fmt.Errorf("计算累计释放目标失败: %w", err)
	}
	deposited, err := e.totalDeposited(milestone.ProjectId)
	if err != nil {
		return nil, err
	}
	if deposited < cumulative {
		return nil, ErrInsufficientEscrow
	}

	// 4. 认证签名校验，负载绑定项目、里程碑、金额和收款地址
	payload := attest.Payload(milestone.ProjectId, milestone.Id, milestone.AmountStroops, recipient)
	if !e.verifier.Verify(payload, signature) {
		return nil, ErrInvalidAttestation
	}

	// 5. 执行转账，失败时里程碑保持未释放，可在修复后重试
	receipt, err := e.client.SubmitPayment(ctx, ledger.PaymentRequest{
		From:          ledger.AccountEscrow,
		To:            recipient,
		AmountStroops: milestone.AmountStroops,
		Memo:          fmt.Sprintf("ms:%d", milestone.Id),
	})
	if err != nil {
		return nil, fmt.Errorf("里程碑转账失败: %w", err)
	}

	// 6. 锁存释放状态，条件更新防止重复释放竞态
	now := time.Now()
	updates := map[string]interface{}{
		"released":    true,
		"released_at": &now,
		"recipient":   recipient,
		"tx_hash":     receipt.Hash,
	}
	result := e.db.Model(&model.MilestoneModel{}).
		Where("id = ? AND released = ?", milestone.Id, false).
		Updates(updates)
	if result.Error != nil {
		// 资金已转出但状态未落库，记录留待人工核对
		logger.Error("Milestone %d paid (tx %s) but release flag not persisted: %v",
			milestone.Id, receipt.Hash, result.Error)
		return nil, fmt.Errorf("里程碑释放状态落库失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Error("Milestone %d paid (tx %s) but was already marked released", milestone.Id, receipt.Hash)
		return nil, ErrAlreadyReleased
	}

	logger.Info("Released milestone %d: amount=%d, recipient=%s, tx=%s",
		milestone.Id, milestone.AmountStroops, recipient, receipt.Hash)
	publishEvent(ctx, e.notifier, notify.EventMilestoneReleased, map[string]interface{}{
		"milestone_id": milestone.Id,
		"project_id":   milestone.ProjectId,
		"amount":       milestone.AmountStroops,
		"recipient":    recipient,
		"tx_hash":      receipt.Hash,
	})

	return &ReleaseReceipt{
		MilestoneId: milestone.Id,
		TxHash:      receipt.Hash,
		Ledger:      receipt.Ledger,
		ReleasedAt:  now,
	}, nil
}

// totalDeposited 项目托管入金总额
func (e *EscrowLogic) totalDeposited(projectId int64) (int64, error) {
	var total int64
	if err := e.db.Model(&model.EscrowDepositModel{}).
		Where("project_id = ?", projectId).
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("计算托管入金总额失败: %w", err)
	}
	return total, nil
}

// totalReleased 项目已释放总额
func (e *EscrowLogic) totalReleased(projectId int64) (int64, error) {
	var total int64
	if err := e.db.Model(&model.MilestoneModel{}).
		Where("project_id = ? AND released = ?", projectId, true).
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("计算已释放总额失败: %w", err)
	}
	return total, nil
}
