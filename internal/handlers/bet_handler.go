package handlers

import (
	"errors"
	"net/http"

	"wager-settlement/internal/models"
	"wager-settlement/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BetHandler struct {
	transferService *services.TransferService
	betLedger       *services.BetLedger
	decimals        int32
	log             *zap.Logger
}

func NewBetHandler(transferService *services.TransferService, betLedger *services.BetLedger, decimals int32, log *zap.Logger) *BetHandler {
	return &BetHandler{
		transferService: transferService,
		betLedger:       betLedger,
		decimals:        decimals,
		log:             log,
	}
}

type placeBetRequest struct {
	Side   models.Side     `json:"side" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// PlaceBet stakes tokens from the caller's custodial account on one side
// POST /api/wagers/:id/bets
func (h *BetHandler) PlaceBet(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	wagerID, ok := parseWagerID(c)
	if !ok {
		return
	}

	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := services.ToBaseUnits(req.Amount, h.decimals)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	result, err := h.transferService.PlaceBet(c.Request.Context(), services.PlaceBetInput{
		WagerID:  wagerID,
		BettorID: userID,
		Side:     req.Side,
		Amount:   amount,
	})
	if errors.Is(err, services.ErrTransferProcessing) {
		c.JSON(http.StatusAccepted, gin.H{
			"status":      result.Status,
			"bet_id":      result.BetID,
			"transfer_id": result.TransferID,
			"message":     "transfer is processing, check your transfers shortly",
		})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":      result.Status,
		"bet_id":      result.BetID,
		"transfer_id": result.TransferID,
		"reference":   result.Reference,
		"new_balance": services.FromBaseUnits(result.NewBalance, h.decimals),
	})
}

// ListBets lists the ledger entries of a wager
// GET /api/wagers/:id/bets
func (h *BetHandler) ListBets(c *gin.Context) {
	wagerID, ok := parseWagerID(c)
	if !ok {
		return
	}

	bets, err := h.betLedger.ListBets(c.Request.Context(), wagerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bets": bets})
}
