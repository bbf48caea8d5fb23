package handlers

import (
	"net/http"

	"wager-settlement/internal/models"
	"wager-settlement/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DraftHandler struct {
	draftService *services.DraftService
	log          *zap.Logger
}

func NewDraftHandler(draftService *services.DraftService, log *zap.Logger) *DraftHandler {
	return &DraftHandler{
		draftService: draftService,
		log:          log,
	}
}

// StartDraft begins a step-by-step wager draft
// POST /api/drafts
func (h *DraftHandler) StartDraft(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req struct {
		Visibility models.Visibility `json:"visibility"`
	}
	// an empty body means a public wager
	_ = c.ShouldBindJSON(&req)

	draft, err := h.draftService.Start(c.Request.Context(), userID, req.Visibility)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"draft":      draft,
		"categories": models.WagerCategories,
	})
}

// SubmitInput answers the current draft step
// POST /api/drafts/input
func (h *DraftHandler) SubmitInput(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req struct {
		Input string `json:"input"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.draftService.Input(c.Request.Context(), userID, req.Input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

// GetDraft returns the draft in progress
// GET /api/drafts
func (h *DraftHandler) GetDraft(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	draft, err := h.draftService.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

// ConfirmDraft creates the wager from a reviewed draft
// POST /api/drafts/confirm
func (h *DraftHandler) ConfirmDraft(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	wager, err := h.draftService.Confirm(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, wager)
}

// CancelDraft discards the draft in progress
// DELETE /api/drafts
func (h *DraftHandler) CancelDraft(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.draftService.Cancel(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
