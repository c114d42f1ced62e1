package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logic"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
// 携带稳定错误码，调用方据此区分参数错误、冲突与内部错误
func ErrorResponse(c *gin.Context, err error) {
	status, code := classifyError(err)
	c.JSON(status, Response{
		Success: false,
		Code:    code,
		Message: err.Error(),
	})
}

// BadRequestResponse 参数错误响应
func BadRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

// classifyError 业务错误 -> (HTTP状态码, 稳定错误码)
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, logic.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, logic.ErrInvalidTarget):
		return http.StatusBadRequest, "INVALID_TARGET"
	case errors.Is(err, logic.ErrInvalidMethod):
		return http.StatusBadRequest, "INVALID_METHOD"
	case errors.Is(err, logic.ErrMissingPaymentId):
		return http.StatusBadRequest, "MISSING_PAYMENT_ID"
	case errors.Is(err, logic.ErrInvalidCriteria):
		return http.StatusBadRequest, "INVALID_CRITERIA"
	case errors.Is(err, logic.ErrUnknownPredicate):
		return http.StatusBadRequest, "UNKNOWN_PREDICATE"
	case errors.Is(err, logic.ErrIntentNotFound),
		errors.Is(err, logic.ErrProjectNotFound),
		errors.Is(err, logic.ErrMilestoneNotFound),
		errors.Is(err, logic.ErrCampaignNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, logic.ErrProjectNotAccepting):
		return http.StatusConflict, "PROJECT_NOT_ACCEPTING"
	case errors.Is(err, logic.ErrInconsistentMatch):
		return http.StatusConflict, "INCONSISTENT_MATCH"
	case errors.Is(err, logic.ErrDuplicateClaim):
		return http.StatusConflict, "DUPLICATE_CLAIM"
	case errors.Is(err, logic.ErrAlreadyConfirmed):
		return http.StatusConflict, "ALREADY_CONFIRMED"
	case errors.Is(err, logic.ErrAlreadyReleased):
		return http.StatusConflict, "ALREADY_RELEASED"
	case errors.Is(err, logic.ErrOutOfOrder):
		return http.StatusConflict, "OUT_OF_ORDER"
	case errors.Is(err, logic.ErrInsufficientEscrow):
		return http.StatusConflict, "INSUFFICIENT_ESCROW"
	case errors.Is(err, logic.ErrDuplicatePosition):
		return http.StatusConflict, "DUPLICATE_POSITION"
	case errors.Is(err, logic.ErrNotActive):
		return http.StatusConflict, "NOT_ACTIVE"
	case errors.Is(err, logic.ErrNotExecuting):
		return http.StatusConflict, "NOT_EXECUTING"
	case errors.Is(err, logic.ErrNoEligibleRecipients):
		return http.StatusConflict, "NO_ELIGIBLE_RECIPIENTS"
	case errors.Is(err, logic.ErrInvalidAttestation):
		return http.StatusForbidden, "INVALID_ATTESTATION"
	}

	var submission *ledger.SubmissionError
	if errors.As(err, &submission) {
		return http.StatusBadGateway, "SUBMISSION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
