package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/kevrollin/fhs/internal/logic"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/kevrollin/fhs/internal/provider"
	"gorm.io/gorm"
)

// 法币回调签名所在的请求头
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler 法币支付回调处理器
type WebhookHandler struct {
	donationLogic *logic.DonationLogic
	registry      *provider.Registry
}

// NewWebhookHandler 创建法币支付回调处理器
func NewWebhookHandler(db *gorm.DB, registry *provider.Registry, notifier notify.Notifier) *WebhookHandler {
	return &WebhookHandler{
		donationLogic: logic.NewDonationLogic(db, notifier),
		registry:      registry,
	}
}

// HandlePaymentWebhook 处理支付提供方回调
// 验签失败一律拒绝，重复投递依赖logic层幂等处理
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	name := c.Param("provider")
	prov, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Code:    "UNKNOWN_PROVIDER",
			Message: "未知的支付提供方: " + name,
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequestResponse(c, "读取请求体失败")
		return
	}

	if !prov.VerifySignature(body, c.GetHeader(signatureHeader)) {
		logger.Warn("Webhook signature verification failed: provider=%s", name)
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Code:    "INVALID_SIGNATURE",
			Message: "签名验证失败",
		})
		return
	}

	event, err := prov.ParseEvent(body)
	if err != nil {
		BadRequestResponse(c, "无效的回调内容: "+err.Error())
		return
	}

	switch event.Status {
	case provider.StatusSucceeded:
		intent, err := h.donationLogic.ConfirmByProviderPayment(c.Request.Context(), name, event.PaymentId, event.AmountMinor, event.Currency)
		if err != nil {
			ErrorResponse(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, "支付确认成功", ToDonationResponse(intent))
	case provider.StatusFailed:
		intent, err := h.donationLogic.FailByProviderPayment(c.Request.Context(), name, event.PaymentId, event.Reason)
		if err != nil {
			ErrorResponse(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, "支付失败已记录", ToDonationResponse(intent))
	default:
		BadRequestResponse(c, "不支持的支付状态: "+event.Status)
	}
}
