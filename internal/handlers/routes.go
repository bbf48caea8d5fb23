package handlers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler the API serves
type Handlers struct {
	Health   *HealthHandler
	Accounts *AccountHandler
	Wagers   *WagerHandler
	Bets     *BetHandler
	Drafts   *DraftHandler
}

// RegisterRoutes mounts the public and authenticated routes on router
func RegisterRoutes(router *gin.Engine, h Handlers, authMiddleware gin.HandlerFunc) {
	router.GET("/health", h.Health.Health)

	// Public wager routes
	router.GET("/api/wagers", h.Wagers.ListWagers)

	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		api.POST("/accounts", h.Accounts.CreateAccount)
		api.GET("/accounts/me", h.Accounts.GetMyAccount)
		api.POST("/accounts/me/refresh", h.Accounts.RefreshMyAccount)
		api.GET("/accounts/me/transfers", h.Accounts.ListMyTransfers)

		// static segments must come before :id routes
		api.POST("/wagers", h.Wagers.CreateWager)
		api.GET("/wagers/mine", h.Wagers.ListMyWagers)
		api.GET("/wagers/pending-resolution", h.Wagers.ListPendingResolution)
		api.GET("/wagers/:id", h.Wagers.GetWager)
		api.POST("/wagers/:id/winner", h.Wagers.AssignWinner)
		api.POST("/wagers/:id/cancel", h.Wagers.CancelWager)
		api.GET("/wagers/:id/bets", h.Bets.ListBets)
		api.POST("/wagers/:id/bets", h.Bets.PlaceBet)

		api.POST("/drafts", h.Drafts.StartDraft)
		api.GET("/drafts", h.Drafts.GetDraft)
		api.POST("/drafts/input", h.Drafts.SubmitInput)
		api.POST("/drafts/confirm", h.Drafts.ConfirmDraft)
		api.DELETE("/drafts", h.Drafts.CancelDraft)
	}
}
