package model

import (
	"time"
)

// DonationIntentModel 捐赠意向模型
// 状态机: pending -> confirmed / failed，终态一经写入不再变更
type DonationIntentModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 捐赠人信息（游客捐赠时只有姓名和邮箱）
	DonorId    *int64 `json:"donor_id" gorm:"index"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`

	// 捐赠目标（项目捐赠与平台捐赠二选一）
	ProjectId        *int64 `json:"project_id" gorm:"index"`
	PlatformDonation bool   `json:"platform_donation" gorm:"default:false"`

	// 金额与支付方式（单位: stroops）
	AmountStroops int64  `json:"amount_stroops" gorm:"not null"`
	Asset         string `json:"asset" gorm:"default:'XLM'"`
	PaymentMethod string `json:"payment_method" gorm:"not null"`

	// 匹配信息
	Memo              string  `json:"memo" gorm:"uniqueIndex;not null"` // 全局唯一的账本匹配memo
	TxHash            *string `json:"tx_hash" gorm:"uniqueIndex"`
	ProviderPaymentId *string `json:"provider_payment_id" gorm:"uniqueIndex"` // 法币渠道支付ID

	// 法币结算信息（渠道回调确认时回填）
	FiatAmountMinor int64  `json:"fiat_amount_minor"`
	FiatCurrency    string `json:"fiat_currency"`

	// 状态
	Status      DonationStatus `json:"status" gorm:"default:'pending'"`
	FailReason  string         `json:"fail_reason" gorm:"type:text"`
	ConfirmedAt *time.Time     `json:"confirmed_at"`
}

// DonationStatus 捐赠状态
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"   // 待确认
	DonationStatusConfirmed DonationStatus = "confirmed" // 已确认
	DonationStatusFailed    DonationStatus = "failed"    // 已失败
)

// PaymentMethodStellar 链上支付方式，法币支付使用渠道名称（stripe、mpesa等）
const PaymentMethodStellar = "stellar"

// TableName 自定义表名
func (DonationIntentModel) TableName() string {
	return "donation_intent"
}
