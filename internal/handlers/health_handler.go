package handlers

import (
	"context"
	"net/http"
	"time"

	"wager-settlement/internal/blockchain"

	"github.com/gin-gonic/gin"
)

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Diagnoser reports ledger connectivity
type Diagnoser interface {
	RunDiagnostics(ctx context.Context) *blockchain.DiagnosticResult
}

type HealthHandler struct {
	db     Pinger
	ledger Diagnoser
}

func NewHealthHandler(db Pinger, ledger Diagnoser) *HealthHandler {
	return &HealthHandler{db: db, ledger: ledger}
}

// Health reports database and ledger reachability
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}

	if h.ledger != nil && c.Query("deep") == "1" {
		diag := h.ledger.RunDiagnostics(ctx)
		body["solana"] = diag
		if !diag.Healthy() {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}

	c.JSON(status, body)
}
