package handler

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/attest"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stellar/go/amount"
	"gorm.io/gorm"
)

// MilestoneHandler 里程碑与托管处理器
type MilestoneHandler struct {
	escrowLogic *logic.EscrowLogic
}

// NewMilestoneHandler 创建里程碑处理器
func NewMilestoneHandler(db *gorm.DB, client ledger.Client, verifier attest.Verifier, notifier notify.Notifier) *MilestoneHandler {
	return &MilestoneHandler{
		escrowLogic: logic.NewEscrowLogic(db, client, verifier, notifier),
	}
}

// RegisterMilestone 登记项目里程碑
func (h *MilestoneHandler) RegisterMilestone(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的项目ID")
		return
	}

	var req RegisterMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "无效的请求参数: "+err.Error())
		return
	}

	stroops, err := amount.ParseInt64(req.Amount)
	if err != nil {
		BadRequestResponse(c, "无效的金额格式: "+req.Amount)
		return
	}

	milestone := &model.MilestoneModel{
		ProjectId:     projectId,
		Position:      req.Position,
		Title:         req.Title,
		AmountStroops: stroops,
		ProofRequired: req.ProofRequired,
	}
	if err := h.escrowLogic.RegisterMilestone(milestone); err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "里程碑登记成功", ToMilestoneResponse(milestone))
}

// GetProjectMilestones 获取项目里程碑列表
func (h *MilestoneHandler) GetProjectMilestones(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的项目ID")
		return
	}

	milestones, err := h.escrowLogic.GetProjectMilestones(projectId)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取里程碑列表成功", GetProjectMilestonesResponse{
		Milestones: ToMilestoneResponseList(milestones),
	})
}

// RecordDeposit 登记托管入金
func (h *MilestoneHandler) RecordDeposit(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的项目ID")
		return
	}

	var req RecordDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "无效的请求参数: "+err.Error())
		return
	}

	stroops, err := amount.ParseInt64(req.Amount)
	if err != nil {
		BadRequestResponse(c, "无效的金额格式: "+req.Amount)
		return
	}

	deposit, err := h.escrowLogic.RecordDeposit(projectId, req.DonorAddress, stroops, req.TxHash)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "托管入金登记成功", ToDepositResponse(deposit))
}

// GetEscrowStatus 获取项目托管账目
func (h *MilestoneHandler) GetEscrowStatus(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的项目ID")
		return
	}

	status, err := h.escrowLogic.Status(projectId)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取托管账目成功", ToEscrowStatusResponse(status))
}

// ReleaseMilestone 释放里程碑资金
func (h *MilestoneHandler) ReleaseMilestone(c *gin.Context) {
	milestoneId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequestResponse(c, "无效的里程碑ID")
		return
	}

	var req ReleaseMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "无效的请求参数: "+err.Error())
		return
	}

	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		BadRequestResponse(c, "无效的签名编码")
		return
	}

	receipt, err := h.escrowLogic.ReleaseMilestone(c.Request.Context(), milestoneId, req.Recipient, signature)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "里程碑释放成功", ToReleaseReceiptResponse(receipt))
}
