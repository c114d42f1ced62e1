package handler

import (
	"time"

	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/stellar/go/amount"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// 捐赠相关请求/响应模型

// CreateDonationRequest 创建捐赠意向请求
type CreateDonationRequest struct {
	DonorId           *int64 `json:"donorId"`
	GuestName         string `json:"guestName"`
	GuestEmail        string `json:"guestEmail"`
	ProjectId         *int64 `json:"projectId"`
	Platform          bool   `json:"platform"`
	Amount            string `json:"amount" binding:"required"`
	PaymentMethod     string `json:"paymentMethod" binding:"required"`
	ProviderPaymentId string `json:"providerPaymentId"`
}

// DonationResponse 捐赠意向响应模型
type DonationResponse struct {
	ID            int64      `json:"id"`
	DonorId       *int64     `json:"donorId,omitempty"`
	GuestName     string     `json:"guestName,omitempty"`
	ProjectId     *int64     `json:"projectId,omitempty"`
	Platform      bool       `json:"platform"`
	Amount        string     `json:"amount"`
	Asset         string     `json:"asset"`
	PaymentMethod string     `json:"paymentMethod"`
	Memo          string     `json:"memo"`
	TxHash        string     `json:"txHash,omitempty"`
	Status        string     `json:"status"`
	FailReason    string     `json:"failReason,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// GetProjectDonationsResponse 获取项目捐赠列表响应
type GetProjectDonationsResponse struct {
	Donations  []DonationResponse `json:"donations"`
	Pagination Pagination         `json:"pagination"`
}

// 里程碑与托管相关请求/响应模型

// RegisterMilestoneRequest 登记里程碑请求
type RegisterMilestoneRequest struct {
	Position      int    `json:"position" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	ProofRequired bool   `json:"proofRequired"`
}

// MilestoneResponse 里程碑响应模型
type MilestoneResponse struct {
	ID         int64      `json:"id"`
	ProjectId  int64      `json:"projectId"`
	Position   int        `json:"position"`
	Title      string     `json:"title"`
	Amount     string     `json:"amount"`
	Released   bool       `json:"released"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	Recipient  string     `json:"recipient,omitempty"`
	TxHash     string     `json:"txHash,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// GetProjectMilestonesResponse 获取项目里程碑列表响应
type GetProjectMilestonesResponse struct {
	Milestones []MilestoneResponse `json:"milestones"`
}

// RecordDepositRequest 登记托管入金请求
type RecordDepositRequest struct {
	DonorAddress string `json:"donorAddress"`
	Amount       string `json:"amount" binding:"required"`
	TxHash       string `json:"txHash" binding:"required"`
}

// DepositResponse 托管入金响应模型
type DepositResponse struct {
	ID           int64     `json:"id"`
	ProjectId    int64     `json:"projectId"`
	DonorAddress string    `json:"donorAddress,omitempty"`
	Amount       string    `json:"amount"`
	TxHash       string    `json:"txHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EscrowStatusResponse 托管账目响应模型
type EscrowStatusResponse struct {
	ProjectId int64  `json:"projectId"`
	Deposited string `json:"deposited"`
	Released  string `json:"released"`
	Balance   string `json:"balance"`
}

// ReleaseMilestoneRequest 释放里程碑请求
type ReleaseMilestoneRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// ReleaseReceiptResponse 释放回执响应模型
type ReleaseReceiptResponse struct {
	MilestoneId int64     `json:"milestoneId"`
	TxHash      string    `json:"txHash"`
	Ledger      int64     `json:"ledger"`
	ReleasedAt  time.Time `json:"releasedAt"`
}

// 资助活动相关请求/响应模型

// CreateCampaignRequest 创建资助活动请求
type CreateCampaignRequest struct {
	Name        string `json:"name" binding:"required"`
	Criteria    string `json:"criteria" binding:"required"`
	CriteriaRef string `json:"criteriaRef"`
	PoolAmount  string `json:"poolAmount" binding:"required"`
}

// CampaignResponse 资助活动响应模型
type CampaignResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Criteria    string    `json:"criteria"`
	CriteriaRef string    `json:"criteriaRef,omitempty"`
	PoolAmount  string    `json:"poolAmount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DistributionResponse 分配明细响应模型
type DistributionResponse struct {
	ID               int64  `json:"id"`
	RecipientId      int64  `json:"recipientId"`
	RecipientAddress string `json:"recipientAddress"`
	Amount           string `json:"amount"`
	TxHash           string `json:"txHash,omitempty"`
	Settled          bool   `json:"settled"`
}

// GetCampaignResponse 获取资助活动详情响应
type GetCampaignResponse struct {
	Campaign      CampaignResponse       `json:"campaign"`
	Distributions []DistributionResponse `json:"distributions"`
}

// ExecutionResponse 活动执行结果响应模型
type ExecutionResponse struct {
	CampaignId     int64  `json:"campaignId"`
	RecipientCount int    `json:"recipientCount"`
	PerAmount      string `json:"perAmount"`
	Remainder      string `json:"remainder"`
	Settled        int    `json:"settled"`
	Pending        int    `json:"pending"`
	Completed      bool   `json:"completed"`
}

// 转换函数

// ToDonationResponse 将捐赠意向数据库模型转换为响应模型
func ToDonationResponse(intent *model.DonationIntentModel) DonationResponse {
	resp := DonationResponse{
		ID:            intent.Id,
		DonorId:       intent.DonorId,
		GuestName:     intent.GuestName,
		ProjectId:     intent.ProjectId,
		Platform:      intent.PlatformDonation,
		Amount:        amount.StringFromInt64(intent.AmountStroops),
		Asset:         intent.Asset,
		PaymentMethod: intent.PaymentMethod,
		Memo:          intent.Memo,
		Status:        string(intent.Status),
		FailReason:    intent.FailReason,
		ConfirmedAt:   intent.ConfirmedAt,
		CreatedAt:     intent.CreatedAt,
	}
	if intent.TxHash != nil {
		resp.TxHash = *intent.TxHash
	}
	return resp
}

// ToDonationResponseList 将捐赠意向数据库模型列表转换为响应模型列表
func ToDonationResponseList(intents []model.DonationIntentModel) []DonationResponse {
	result := make([]DonationResponse, len(intents))
	for i, intent := range intents {
		result[i] = ToDonationResponse(&intent)
	}
	return result
}

// ToMilestoneResponse 将里程碑数据库模型转换为响应模型
func ToMilestoneResponse(milestone *model.MilestoneModel) MilestoneResponse {
	return MilestoneResponse{
		ID:         milestone.Id,
		ProjectId:  milestone.ProjectId,
		Position:   milestone.Position,
		Title:      milestone.Title,
		Amount:     amount.StringFromInt64(milestone.AmountStroops),
		Released:   milestone.Released,
		ReleasedAt: milestone.ReleasedAt,
		Recipient:  milestone.Recipient,
		TxHash:     milestone.TxHash,
		CreatedAt:  milestone.CreatedAt,
	}
}

// ToMilestoneResponseList 将里程碑数据库模型列表转换为响应模型列表
func ToMilestoneResponseList(milestones []model.MilestoneModel) []MilestoneResponse {
	result := make([]MilestoneResponse, len(milestones))
	for i, milestone := range milestones {
		result[i] = ToMilestoneResponse(&milestone)
	}
	return result
}

// ToDepositResponse 将托管入金数据库模型转换为响应模型
func ToDepositResponse(deposit *model.EscrowDepositModel) DepositResponse {
	return DepositResponse{
		ID:           deposit.Id,
		ProjectId:    deposit.ProjectId,
		DonorAddress: deposit.DonorAddress,
		Amount:       amount.StringFromInt64(deposit.AmountStroops),
		TxHash:       deposit.TxHash,
		CreatedAt:    deposit.CreatedAt,
	}
}

// ToEscrowStatusResponse 将托管账目转换为响应模型
func ToEscrowStatusResponse(status *logic.EscrowStatus) EscrowStatusResponse {
	return EscrowStatusResponse{
		ProjectId: status.ProjectId,
		Deposited: amount.StringFromInt64(status.DepositedStroops),
		Released:  amount.StringFromInt64(status.ReleasedStroops),
		Balance:   amount.StringFromInt64(status.BalanceStroops),
	}
}

// ToReleaseReceiptResponse 将释放回执转换为响应模型
func ToReleaseReceiptResponse(receipt *logic.ReleaseReceipt) ReleaseReceiptResponse {
	return ReleaseReceiptResponse{
		MilestoneId: receipt.MilestoneId,
		TxHash:      receipt.TxHash,
		Ledger:      receipt.Ledger,
		ReleasedAt:  receipt.ReleasedAt,
	}
}

// ToCampaignResponse 将资助活动数据库模型转换为响应模型
func ToCampaignResponse(campaign *model.CampaignModel) CampaignResponse {
	return CampaignResponse{
		ID:          campaign.Id,
		Name:        campaign.Name,
		Criteria:    string(campaign.Criteria),
		CriteriaRef: campaign.CriteriaRef,
		PoolAmount:  amount.StringFromInt64(campaign.PoolAmountStroops),
		Status:      string(campaign.Status),
		CreatedAt:   campaign.CreatedAt,
		UpdatedAt:   campaign.UpdatedAt,
	}
}

// ToDistributionResponseList 将分配明细数据库模型列表转换为响应模型列表
func ToDistributionResponseList(distributions []model.CampaignDistributionModel) []DistributionResponse {
	result := make([]DistributionResponse, len(distributions))
	for i, dist := range distributions {
		result[i] = DistributionResponse{
			ID:               dist.Id,
			RecipientId:      dist.RecipientId,
			RecipientAddress: dist.RecipientAddress,
			Amount:           amount.StringFromInt64(dist.AmountStroops),
			TxHash:           dist.TxHash,
			Settled:          dist.TxHash != "",
		}
	}
	return result
}

// ToExecutionResponse 将活动执行结果转换为响应模型
func ToExecutionResponse(summary *logic.ExecutionSummary) ExecutionResponse {
	return ExecutionResponse{
		CampaignId:     summary.CampaignId,
		RecipientCount: summary.RecipientCount,
		PerAmount:      amount.StringFromInt64(summary.PerAmountStroops),
		Remainder:      amount.StringFromInt64(summary.RemainderStroops),
		Settled:        summary.Settled,
		Pending:        summary.Pending,
		Completed:      summary.Completed,
	}
}
