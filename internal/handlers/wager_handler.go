package handlers

import (
	"net/http"
	"time"

	"wager-settlement/internal/models"
	"wager-settlement/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WagerHandler struct {
	wagerService *services.WagerService
	log          *zap.Logger
}

func NewWagerHandler(wagerService *services.WagerService, log *zap.Logger) *WagerHandler {
	return &WagerHandler{
		wagerService: wagerService,
		log:          log,
	}
}

type createWagerRequest struct {
	Category    models.Category   `json:"category" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description" binding:"required"`
	ImageURL    *string           `json:"image_url"`
	Side1       string            `json:"side_1" binding:"required"`
	Side2       string            `json:"side_2" binding:"required"`
	EndTime     time.Time         `json:"end_time" binding:"required"`
	Visibility  models.Visibility `json:"visibility"`
}

// CreateWager creates a wager owned by the caller
// POST /api/wagers
func (h *WagerHandler) CreateWager(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req createWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wager, err := h.wagerService.CreateWager(c.Request.Context(), services.CreateWagerInput{
		CreatorID:   userID,
		Category:    req.Category,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Side1:       req.Side1,
		Side2:       req.Side2,
		EndTime:     req.EndTime,
		Visibility:  req.Visibility,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, wager)
}

// ListWagers lists public wagers still open for bets
// GET /api/wagers?category=
func (h *WagerHandler) ListWagers(c *gin.Context) {
	limit, offset := pagination(c)
	category := models.Category(c.Query("category"))

	wagers, err := h.wagerService.ListPublicActive(c.Request.Context(), category, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wagers": wagers,
		"limit":  limit,
		"offset": offset,
	})
}

// ListMyWagers lists the caller's wagers
// GET /api/wagers/mine
func (h *WagerHandler) ListMyWagers(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	wagers, err := h.wagerService.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wagers": wagers})
}

// ListPendingResolution lists the caller's ended wagers still waiting for a winner
// GET /api/wagers/pending-resolution
func (h *WagerHandler) ListPendingResolution(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	wagers, err := h.wagerService.ListWagersNeedingResolution(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	mine := make([]*models.Wager, 0, len(wagers))
	for _, w := range wagers {
		if w.CreatorID == userID {
			mine = append(mine, w)
		}
	}

	c.JSON(http.StatusOK, gin.H{"wagers": mine})
}

// GetWager returns a wager with its per-side pool
// GET /api/wagers/:id
func (h *WagerHandler) GetWager(c *gin.Context) {
	wagerID, ok := parseWagerID(c)
	if !ok {
		return
	}

	wager, err := h.wagerService.GetWager(c.Request.Context(), wagerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	pool, err := h.wagerService.PoolSummary(c.Request.Context(), wagerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wager": wager,
		"pool":  pool,
	})
}

// AssignWinner records the winning side; creator only, after the end time
// POST /api/wagers/:id/winner
func (h *WagerHandler) AssignWinner(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	wagerID, ok := parseWagerID(c)
	if !ok {
		return
	}

	var req struct {
		Side models.Side `json:"side" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wager, err := h.wagerService.AssignWinner(c.Request.Context(), wagerID, userID, req.Side)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, wager)
}

// CancelWager withdraws an unresolved wager; creator only
// POST /api/wagers/:id/cancel
func (h *WagerHandler) CancelWager(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	wagerID, ok := parseWagerID(c)
	if !ok {
		return
	}

	wager, err := h.wagerService.CancelWager(c.Request.Context(), wagerID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, wager)
}

func parseWagerID(c *gin.Context) (uuid.UUID, bool) {
	wagerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wager id"})
		return uuid.Nil, false
	}
	return wagerID, true
}
