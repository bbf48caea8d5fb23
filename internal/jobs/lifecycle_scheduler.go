package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wager-settlement/internal/messaging"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/services"

	"go.uber.org/zap"
)

const DefaultSchedulerInterval = 5 * time.Minute

// WagerSweeper is the part of the wager service the scheduler drives
type WagerSweeper interface {
	SweepExpired(ctx context.Context) ([]*models.Wager, error)
	ListWagersNeedingResolution(ctx context.Context) ([]*models.Wager, error)
}

// LifecycleScheduler ends expired wagers and asks each creator of an ended,
// unresolved wager to pick the winner. Requests repeat on every pass until
// the wager is resolved or cancelled.
type LifecycleScheduler struct {
	wagers   WagerSweeper
	notifier messaging.Notifier
	decimals int32
	interval time.Duration
	log      *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewLifecycleScheduler(wagers WagerSweeper, notifier messaging.Notifier, decimals int32, interval time.Duration, log *zap.Logger) *LifecycleScheduler {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	return &LifecycleScheduler{
		wagers:   wagers,
		notifier: notifier,
		decimals: decimals,
		interval: interval,
		log:      log.Named("lifecycle_scheduler"),
		stopChan: make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs a pass immediately and then on every tick until ctx is done or Stop is called
func (ls *LifecycleScheduler) Start(ctx context.Context) {
	ls.log.Info("starting wager lifecycle job", zap.Duration("interval", ls.interval))

	ls.RunOnce(ctx)

	ticker := time.NewTicker(ls.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ls.RunOnce(ctx)
		case <-ctx.Done():
			ls.log.Info("stopping wager lifecycle job")
			return
		case <-ls.stopChan:
			ls.log.Info("stopping wager lifecycle job")
			return
		}
	}
}

func (ls *LifecycleScheduler) Stop() {
	ls.stopOnce.Do(func() { close(ls.stopChan) })
}

// RunOnce performs one sweep and notification pass and returns how many requests were sent
func (ls *LifecycleScheduler) RunOnce(ctx context.Context) int {
	if _, err := ls.wagers.SweepExpired(ctx); err != nil {
		ls.log.Error("failed to sweep expired wagers", zap.Error(err))
	}

	wagers, err := ls.wagers.ListWagersNeedingResolution(ctx)
	if err != nil {
		ls.log.Error("failed to list wagers needing resolution", zap.Error(err))
		return 0
	}

	sent := 0
	for _, wager := range wagers {
		req := messaging.DecisionRequest{
			WagerID:     wager.ID,
			RecipientID: wager.CreatorID,
			Prompt:      ls.prompt(wager),
			Options:     messaging.NewDecisionOptions(wager),
			RequestedAt: ls.now(),
		}
		if err := ls.notifier.RequestDecision(ctx, req); err != nil {
			metrics.DecisionRequests.WithLabelValues("error").Inc()
			ls.log.Warn("failed to request winner decision",
				zap.String("wager_id", wager.ID.String()),
				zap.Int64("creator_id", wager.CreatorID),
				zap.Error(err),
			)
			continue
		}
		metrics.DecisionRequests.WithLabelValues("sent").Inc()
		sent++
	}

	if sent > 0 {
		ls.log.Info("requested winner decisions", zap.Int("count", sent))
	}
	return sent
}

func (ls *LifecycleScheduler) prompt(wager *models.Wager) string {
	pool := services.FromBaseUnits(wager.TotalPoolAmount, ls.decimals)
	return fmt.Sprintf(
		"Winner Determination Required\n\nWager: %s\nCategory: %s\nEnded: %s\nTotal pool: %s\n\nWhich side won?",
		wager.Name,
		wager.Category,
		wager.EndTime.UTC().Format(time.RFC1123),
		pool.String(),
	)
}
