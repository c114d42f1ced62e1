package model

import (
	"time"
)

// EscrowDepositModel 托管入金记录模型
// 按交易哈希幂等，同一笔入账通知重复到达只记录一次
type EscrowDepositModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId     int64  `json:"project_id" gorm:"not null;index"`
	DonorAddress  string `json:"donor_address"`
	AmountStroops int64  `json:"amount_stroops" gorm:"not null"`
	TxHash        string `json:"tx_hash" gorm:"uniqueIndex;not null"`
}

// TableName 自定义表名
func (EscrowDepositModel) TableName() string {
	return "escrow_deposit"
}
