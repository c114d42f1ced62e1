package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stellar/go/amount"
	"gorm.io/gorm"
)

// DonationHandler 捐赠处理器
type DonationHandler struct {
	donationLogic *logic.DonationLogic
}

// NewDonationHandler 创建捐赠处理器
func NewDonationHandler(db *gorm.DB, notifier notify.Notifier) *DonationHandler {
	return &DonationHandler{
		donationLogic: logic.NewDonationLogic(db, notifier),
	}
}

// CreateDonation 创建捐赠意向
func (h *DonationHandler) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "无效的请求参数: "+err.Error())
		return
	}

	stroops, err := amount.ParseInt64(req.Amount)
	if err != nil {
		BadRequestResponse(c, "无效的金额格式: "+req.Amount)
		return
	}

	// 调用logic层创建捐赠意向
	intent, err := h.donationLogic.CreateIntent(logic.CreateIntentRequest{
		DonorId:           req.DonorId,
		GuestName:         req.GuestName,
		GuestEmail:        req.GuestEmail,
		ProjectId:         req.ProjectId,
		PlatformDonation:  req.Platform,
		AmountStroops:     stroops,
		PaymentMethod:     req.PaymentMethod,
		ProviderPaymentId: req.ProviderPaymentId,
	})
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "捐赠意向创建成功", ToDonationResponse(intent))
}

// GetDonation 获取捐赠意向详情
func (h *DonationHandler) GetDonation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的捐赠ID")
		return
	}

	intent, err := h.donationLogic.GetIntent(id)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取捐赠意向成功", ToDonationResponse(intent))
}

// GetProjectDonations 获取项目捐赠列表
func (h *DonationHandler) GetProjectDonations(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的项目ID")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	intents, total, err := h.donationLogic.ListProjectDonations(projectId, page, pageSize)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取项目捐赠列表成功", GetProjectDonationsResponse{
		Donations: ToDonationResponseList(intents),
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}
