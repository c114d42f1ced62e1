package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"gorm.io/gorm"
)

// 账本匹配memo前缀，Stellar文本memo上限28字节
const (
	donationMemoPrefix = "donation:"
	platformMemoPrefix = "platform:"
)

// DonationLogic 捐赠账本业务逻辑
// 捐赠意向的写入方只有两个: 对账引擎（链上路径）与渠道回调（法币路径），
// 终态（confirmed/failed）一经写入不再变更
type DonationLogic struct {
	db       *gorm.DB
	notifier notify.Notifier
}

// NewDonationLogic 创建捐赠账本业务逻辑
func NewDonationLogic(db *gorm.DB, notifier notify.Notifier) *DonationLogic {
	return &DonationLogic{db: db, notifier: notifier}
}

// CreateIntentRequest 创建捐赠意向请求
type CreateIntentRequest struct {
	DonorId           *int64
	GuestName         string
	GuestEmail        string
	ProjectId         *int64
	PlatformDonation  bool
	AmountStroops     int64
	PaymentMethod     string
	ProviderPaymentId string
}

// CreateIntent 创建捐赠意向（发生在任何资金流动之前）
func (d *DonationLogic) CreateIntent(req CreateIntentRequest) (*model.DonationIntentModel, error) {
	// 1. 验证捐赠数据
	if req.AmountStroops <= 0 {
		return nil, ErrInvalidAmount
	}
	if (req.ProjectId != nil) == req.PlatformDonation {
		return nil, ErrInvalidTarget
	}
	if req.PaymentMethod == "" {
		return nil, ErrInvalidMethod
	}
	if req.PaymentMethod == model.PaymentMethodStellar && req.ProviderPaymentId != "" {
		return nil, ErrInvalidMethod
	}
	if req.PaymentMethod != model.PaymentMethodStellar && req.ProviderPaymentId == "" {
		return nil, ErrMissingPaymentId
	}

	// 2. 项目捐赠要求项目存在且在进行中
	if req.ProjectId != nil {
		var project model.ProjectModel
		if err := d.db.First(&project, *req.ProjectId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrProjectNotFound
			}
			return nil, fmt.Errorf("查询项目失败: %w", err)
		}
		if project.Status != model.ProjectStatusActive {
			return nil, ErrProjectNotAccepting
		}
	}

	// 3. 创建pending意向，memo唯一性由数据库唯一索引兜底
	intent := &model.DonationIntentModel{
		DonorId:          req.DonorId,
		GuestName:        req.GuestName,
		GuestEmail:       req.GuestEmail,
		ProjectId:        req.ProjectId,
		PlatformDonation: req.PlatformDonation,
		AmountStroops:    req.AmountStroops,
		Asset:            "XLM",
		PaymentMethod:    req.PaymentMethod,
		Memo:             generateMemo(req.PlatformDonation),
		Status:           model.DonationStatusPending,
	}
	if req.ProviderPaymentId != "" {
		intent.ProviderPaymentId = &req.ProviderPaymentId
	}

	if err := d.db.Create(intent).Error; err != nil {
		return nil, fmt.Errorf("创建捐赠意向失败: %w", err)
	}

	logger.Info("Created donation intent %d: memo=%s, amount=%d, method=%s",
		intent.Id, intent.Memo, intent.AmountStroops, intent.PaymentMethod)
	return intent, nil
}

// generateMemo 生成账本匹配memo（前缀 + UUID前16位十六进制，共25字节）
func generateMemo(platform bool) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	if platform {
		return platformMemoPrefix + id
	}
	return donationMemoPrefix + id
}

// IsDonationMemo 判断memo是否为平台生成的捐赠匹配memo
func IsDonationMemo(memo string) bool {
	return strings.HasPrefix(memo, donationMemoPrefix) || strings.HasPrefix(memo, platformMemoPrefix)
}

// MarkConfirmed 确认捐赠意向（幂等）
// 同一交易哈希重复确认是空操作；不同交易哈希确认已确认记录、或确认已失败记录，
// 视为不一致冲突；交易哈希已被其他意向占用视为重复占用冲突
func (d *DonationLogic) MarkConfirmed(ctx context.Context, intentId int64, txHash string) (*model.DonationIntentModel, error) {
	if txHash == "" {
		return nil, errors.New("交易哈希不能为空")
	}

	tx := d.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var intent model.DonationIntentModel
	if err := tx.First(&intent, intentId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("查询捐赠意向失败: %w", err)
	}

	switch intent.Status {
	case model.DonationStatusConfirmed:
		tx.Rollback()
		if intent.TxHash != nil && *intent.TxHash == txHash {
			// 幂等: 同一哈希重复确认直接返回
			return &intent, nil
		}
		return nil, ErrInconsistentMatch
	case model.DonationStatusFailed:
		// 终态已封存，迟到的支付留待人工处理
		tx.Rollback()
		return nil, ErrInconsistentMatch
	}

	// 一笔账本支付最多记入一个捐赠意向
	var claimed int64
	if err := tx.Model(&model.DonationIntentModel{}).
		Where("tx_hash = ? AND id <> ?", txHash, intent.Id).
		Count(&claimed).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("检查交易哈希占用失败: %w", err)
	}
	if claimed > 0 {
		tx.Rollback()
		return nil, ErrDuplicateClaim
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       model.DonationStatusConfirmed,
		"tx_hash":      txHash,
		"confirmed_at": &now,
	}
	if err := tx.Model(&intent).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("更新捐赠意向失败: %w", err)
	}

	// 项目筹款进度从已确认捐赠重算，缓存列只赋值不累加，重复处理不会漂移
	if intent.ProjectId != nil {
		if err := recomputeProjectFunding(tx, *intent.ProjectId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交捐赠确认事务失败: %w", err)
	}

	intent.Status = model.DonationStatusConfirmed
	intent.TxHash = &txHash
	intent.ConfirmedAt = &now

	logger.Info("Confirmed donation intent %d with tx %s", intent.Id, txHash)
	publishEvent(ctx, d.notifier, notify.EventDonationConfirmed, map[string]interface{}{
		"intent_id":  intent.Id,
		"project_id": intent.ProjectId,
		"amount":     intent.AmountStroops,
		"tx_hash":    txHash,
	})

	return &intent, nil
}

// MarkFailed 将捐赠意向置为失败（幂等），已确认的意向不可回退
func (d *DonationLogic) MarkFailed(ctx context.Context, intentId int64, reason string) (*model.DonationIntentModel, error) {
	var intent model.DonationIntentModel
	if err := d.db.First(&intent, intentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("查询捐赠意向失败: %w", err)
	}

	switch intent.Status {
	case model.DonationStatusFailed:
		// 幂等: 已失败直接返回
		return &intent, nil
	case model.DonationStatusConfirmed:
		return nil, ErrAlreadyConfirmed
	}

	updates := map[string]interface{}{
		"status":      model.DonationStatusFailed,
		"fail_reason": reason,
	}
	if err := d.db.Model(&intent).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新捐赠意向失败: %w", err)
	}

	intent.Status = model.DonationStatusFailed
	intent.FailReason = reason

	logger.Info("Marked donation intent %d as failed: %s", intent.Id, reason)
	publishEvent(ctx, d.notifier, notify.EventDonationFailed, map[string]interface{}{
		"intent_id": intent.Id,
		"reason":    reason,
	})

	return &intent, nil
}

// ConfirmByProviderPayment 按渠道支付ID确认法币捐赠（幂等，Webhook确认路径）
func (d *DonationLogic) ConfirmByProviderPayment(ctx context.Context, providerName, paymentId string, fiatAmountMinor int64, currency string) (*model.DonationIntentModel, error) {
	if paymentId == "" {
		return nil, errors.New("渠道支付ID不能为空")
	}

	tx := d.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var intent model.DonationIntentModel
	if err := tx.Where("provider_payment_id = ? AND payment_method = ?", paymentId, providerName).
		First(&intent).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("查询捐赠意向失败: %w", err)
	}

	switch intent.Status {
	case model.DonationStatusConfirmed:
		// 幂等: 渠道重复回调为空操作
		tx.Rollback()
		return &intent, nil
	case model.DonationStatusFailed:
		tx.Rollback()
		return nil, ErrInconsistentMatch
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":            model.DonationStatusConfirmed,
		"confirmed_at":      &now,
		"fiat_amount_minor": fiatAmountMinor,
		"fiat_currency":     currency,
	}
	if err := tx.Model(&intent).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("更新捐赠意向失败: %w", err)
	}

	if intent.ProjectId != nil {
		if err := recomputeProjectFunding(tx, *intent.ProjectId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交捐赠确认事务失败: %w", err)
	}

	intent.Status = model.DonationStatusConfirmed
	intent.ConfirmedAt = &now
	intent.FiatAmountMinor = fiatAmountMinor
	intent.FiatCurrency = currency

	logger.Info("Confirmed donation intent %d via provider %s (payment %s)", intent.Id, providerName, paymentId)
	publishEvent(ctx, d.notifier, notify.EventDonationConfirmed, map[string]interface{}{
		"intent_id":  intent.Id,
		"project_id": intent.ProjectId,
		"amount":     intent.AmountStroops,
		"provider":   providerName,
		"payment_id": paymentId,
	})

	return &intent, nil
}

// FailByProviderPayment 按渠道支付ID将法币捐赠置为失败（幂等）
func (d *DonationLogic) FailByProviderPayment(ctx context.Context, providerName, paymentId, reason string) (*model.DonationIntentModel, error) {
	var intent model.DonationIntentModel
	if err := d.db.Where("provider_payment_id = ? AND payment_method = ?", paymentId, providerName).
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("查询捐赠意向失败: %w", err)
	}
	return d.MarkFailed(ctx, intent.Id, reason)
}

// ExpirePending 将超过过期窗口仍未确认的捐赠意向置为失败终态，停止继续匹配
func (d *DonationLogic) ExpirePending(ctx context.Context, window time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-window)

	var stale []model.DonationIntentModel
	if err := d.db.Where("status = ? AND created_at < ?", model.DonationStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("查询过期捐赠意向失败: %w", err)
	}

	expired := 0
	for _, intent := range stale {
		if _, err := d.MarkFailed(ctx, intent.Id, "expired: no matching payment within window"); err != nil {
			logger.Error("Failed to expire donation intent %d: %v", intent.Id, err)
			continue
		}
		expired++
	}

	return expired, nil
}

// GetIntent 获取捐赠意向
func (d *DonationLogic) GetIntent(id int64) (*model.DonationIntentModel, error) {
	var intent model.DonationIntentModel
	if err := d.db.First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("获取捐赠意向失败: %w", err)
	}
	return &intent, nil
}

// GetPendingByMemo 按memo查找待确认意向
// 对账兜底查询，覆盖意向在本轮扫描的意向快照之后才创建的情况
func (d *DonationLogic) GetPendingByMemo(memo string) (*model.DonationIntentModel, error) {
	var intent model.DonationIntentModel
	if err := d.db.Where("memo = ? AND status = ?", memo, model.DonationStatusPending).
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("按memo查询捐赠意向失败: %w", err)
	}
	return &intent, nil
}

// ListPendingStellar 获取链上支付方式的待确认捐赠意向
func (d *DonationLogic) ListPendingStellar() ([]model.DonationIntentModel, error) {
	var intents []model.DonationIntentModel
	if err := d.db.Where("status = ? AND payment_method = ?",
		model.DonationStatusPending, model.PaymentMethodStellar).
		Order("created_at ASC").
		Find(&intents).Error; err != nil {
		return nil, fmt.Errorf("获取待确认捐赠意向失败: %w", err)
	}
	return intents, nil
}

// ListProjectDonations 获取项目捐赠记录（分页）
func (d *DonationLogic) ListProjectDonations(projectId int64, page, pageSize int) ([]model.DonationIntentModel, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	var total int64
	if err := d.db.Model(&model.DonationIntentModel{}).
		Where("project_id = ?", projectId).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取捐赠记录总数失败: %w", err)
	}

	var records []model.DonationIntentModel
	offset := (page - 1) * pageSize
	if err := d.db.Where("project_id = ?", projectId).
		Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("获取捐赠记录失败: %w", err)
	}

	return records, total, nil
}

// recomputeProjectFunding 从已确认捐赠重算项目筹款总额，达标时标记项目为已达标
func recomputeProjectFunding(tx *gorm.DB, projectId int64) error {
	var total int64
	if err := tx.Model(&model.DonationIntentModel{}).
		Where("project_id = ? AND status = ?", projectId, model.DonationStatusConfirmed).
		Select("COALESCE(SUM(amount_stroops), 0)").
		Scan(&total).Error; err != nil {
		return fmt.Errorf("重算项目筹款总额失败: %w", err)
	}

	if err := tx.Model(&model.ProjectModel{}).
		Where("id = ?", projectId).
		Update("current_amount_stroops", total).Error; err != nil {
		return fmt.Errorf("更新项目筹款总额失败: %w", err)
	}

	if err := tx.Model(&model.ProjectModel{}).
		Where("id = ? AND status = ? AND target_amount_stroops > 0 AND target_amount_stroops <= ?",
			projectId, model.ProjectStatusActive, total).
		Update("status", model.ProjectStatusFunded).Error; err != nil {
		return fmt.Errorf("更新项目达标状态失败: %w", err)
	}

	return nil
}

// publishEvent 发布状态流转事件，通知失败仅记录日志，不影响主流程
func publishEvent(ctx context.Context, notifier notify.Notifier, eventType string, payload map[string]interface{}) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, notify.NewEvent(eventType, payload)); err != nil {
		logger.Warn("Failed to publish %s event: %v", eventType, err)
	}
}
