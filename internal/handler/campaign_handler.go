package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stellar/go/amount"
	"gorm.io/gorm"
)

// CampaignHandler 资助活动处理器
type CampaignHandler struct {
	campaignLogic *logic.CampaignLogic
}

// NewCampaignHandler 创建资助活动处理器
func NewCampaignHandler(db *gorm.DB, client ledger.Client, notifier notify.Notifier) *CampaignHandler {
	return &CampaignHandler{
		campaignLogic: logic.NewCampaignLogic(db, client, notifier),
	}
}

// CreateCampaign 创建资助活动
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "无效的请求参数: "+err.Error())
		return
	}

	stroops, err := amount.ParseInt64(req.PoolAmount)
	if err != nil {
		BadRequestResponse(c, "无效的金额格式: "+req.PoolAmount)
		return
	}

	campaign := &model.CampaignModel{
		Name:              req.Name,
		Criteria:          model.CampaignCriteria(req.Criteria),
		CriteriaRef:       req.CriteriaRef,
		PoolAmountStroops: stroops,
	}
	if err := h.campaignLogic.CreateCampaign(campaign); err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "资助活动创建成功", ToCampaignResponse(campaign))
}

// GetCampaign 获取资助活动详情
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的活动ID")
		return
	}

	campaign, distributions, err := h.campaignLogic.GetCampaign(id)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取资助活动成功", GetCampaignResponse{
		Campaign:      ToCampaignResponse(campaign),
		Distributions: ToDistributionResponseList(distributions),
	})
}

// ExecuteCampaign 执行资助活动分配
func (h *CampaignHandler) ExecuteCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的活动ID")
		return
	}

	summary, err := h.campaignLogic.Execute(c.Request.Context(), id)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "资助活动执行完成", ToExecutionResponse(summary))
}

// RetryCampaign 重试未结算的分配
func (h *CampaignHandler) RetryCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的活动ID")
		return
	}

	summary, err := h.campaignLogic.RetryPending(c.Request.Context(), id)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "资助活动重试完成", ToExecutionResponse(summary))
}

// PauseCampaign 暂停资助活动
func (h *CampaignHandler) PauseCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的活动ID")
		return
	}

	if err := h.campaignLogic.Pause(id); err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "资助活动已暂停", nil)
}

// ResumeCampaign 恢复资助活动
func (h *CampaignHandler) ResumeCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的活动ID")
		return
	}

	if err := h.campaignLogic.Resume(id); err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "资助活动已恢复", nil)
}
