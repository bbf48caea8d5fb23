package handlers

import (
	"net/http"
	"time"

	"wager-settlement/internal/models"
	"wager-settlement/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService  *services.AccountService
	transferService *services.TransferService
	decimals        int32
	log             *zap.Logger
}

func NewAccountHandler(accountService *services.AccountService, transferService *services.TransferService, decimals int32, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService:  accountService,
		transferService: transferService,
		decimals:        decimals,
		log:             log,
	}
}

type accountResponse struct {
	Address         string          `json:"address"`
	TokenBalance    decimal.Decimal `json:"token_balance"`
	NativeBalance   int64           `json:"native_balance"`
	BalanceSyncedAt *time.Time      `json:"balance_synced_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (h *AccountHandler) toResponse(account *models.Account) accountResponse {
	return accountResponse{
		Address:         account.Address,
		TokenBalance:    services.FromBaseUnits(account.TokenBalance, h.decimals),
		NativeBalance:   account.NativeBalance,
		BalanceSyncedAt: account.BalanceSyncedAt,
		CreatedAt:       account.CreatedAt,
	}
}

// CreateAccount creates the caller's custodial account, or returns the existing one
// POST /api/accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	account, created, err := h.accountService.CreateAccount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, h.toResponse(account))
}

// GetMyAccount returns the caller's account with its cached balances
// GET /api/accounts/me
func (h *AccountHandler) GetMyAccount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(account))
}

// RefreshMyAccount reads the balances from the ledger now
// POST /api/accounts/me/refresh
func (h *AccountHandler) RefreshMyAccount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	account, err := h.accountService.Refresh(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(account))
}

// ListMyTransfers returns the caller's transfers, newest first
// GET /api/accounts/me/transfers
func (h *AccountHandler) ListMyTransfers(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	transfers, err := h.transferService.ListTransfers(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfers": transfers,
		"limit":     limit,
		"offset":    offset,
	})
}
