package handlers

import (
	"net/http"
	"strconv"

	"wager-settlement/internal/auth"
	"wager-settlement/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a settlement code to the HTTP status callers see
func statusFor(code services.ErrorCode) int {
	switch code {
	case services.CodeInvalidAmount, services.CodeInvalidSide, services.CodeInvalidWager,
		services.CodeInvalidDestination, services.CodeInvalidDraft:
		return http.StatusBadRequest
	case services.CodeNotAuthorized:
		return http.StatusForbidden
	case services.CodeWagerNotFound, services.CodeAccountNotFound:
		return http.StatusNotFound
	case services.CodeWagerNotActive, services.CodeWagerExpired, services.CodeWagerNotEnded,
		services.CodeAlreadyResolved:
		return http.StatusConflict
	case services.CodeNoFundingSource, services.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case services.CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case services.CodeTransferFailed:
		return http.StatusBadGateway
	case services.CodeTransferPending:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"}; uncoded errors are logged and hidden
func respondError(c *gin.Context, log *zap.Logger, err error) {
	code, ok := services.CodeOf(err)
	if !ok {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(statusFor(code), gin.H{"error": err.Error(), "code": code})
}

func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return userID, true
}

// pagination reads limit/offset query params with the same bounds the services apply
func pagination(c *gin.Context) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
