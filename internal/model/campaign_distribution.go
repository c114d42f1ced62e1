package model

import (
	"time"
)

// CampaignDistributionModel 活动分发记录模型
// (campaign_id, recipient_id) 唯一，同一接收人在同一活动中最多收到一笔
// tx_hash为空表示已记账未支付，可被结算任务安全重试
type CampaignDistributionModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CampaignId       int64  `json:"campaign_id" gorm:"not null;uniqueIndex:idx_distribution_campaign_recipient"`
	RecipientId      int64  `json:"recipient_id" gorm:"not null;uniqueIndex:idx_distribution_campaign_recipient"` // 学生ID
	RecipientAddress string `json:"recipient_address" gorm:"not null"`
	AmountStroops    int64  `json:"amount_stroops" gorm:"not null"` // 落库后不再重算
	TxHash           string `json:"tx_hash"`
}

// TableName 自定义表名
func (CampaignDistributionModel) TableName() string {
	return "campaign_distribution"
}
