package model

import (
	"time"
)

// WalletModel 学生收款钱包模型
type WalletModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentId int64  `json:"student_id" gorm:"not null;index"`
	Address   string `json:"address" gorm:"uniqueIndex;not null"`

	// 余额缓存（单位: stroops），由钱包同步任务从账本回填
	BalanceStroops int64      `json:"balance_stroops" gorm:"default:0"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
}

// TableName 自定义表名
func (WalletModel) TableName() string {
	return "wallet"
}
