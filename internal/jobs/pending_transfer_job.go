package jobs

import (
	"context"
	"time"

	"wager-settlement/internal/services"

	"go.uber.org/zap"
)

const DefaultPendingSweepInterval = time.Minute

// PendingSweeper resolves transfers stuck in pending
type PendingSweeper interface {
	Sweep(ctx context.Context, now time.Time) (services.SweepReport, error)
}

// PendingTransferJob periodically reconciles pending transfers against the ledger
type PendingTransferJob struct {
	sweeper  PendingSweeper
	interval time.Duration
	log      *zap.Logger
}

func NewPendingTransferJob(sweeper PendingSweeper, interval time.Duration, log *zap.Logger) *PendingTransferJob {
	if interval <= 0 {
		interval = DefaultPendingSweepInterval
	}
	return &PendingTransferJob{
		sweeper:  sweeper,
		interval: interval,
		log:      log.Named("pending_transfer_job"),
	}
}

// Start sweeps immediately, then on every tick until ctx is done
func (j *PendingTransferJob) Start(ctx context.Context) {
	j.log.Info("starting pending transfer job", zap.Duration("interval", j.interval))

	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			j.log.Info("stopping pending transfer job")
			return
		}
	}
}

func (j *PendingTransferJob) sweep(ctx context.Context) {
	if _, err := j.sweeper.Sweep(ctx, time.Now().UTC()); err != nil {
		j.log.Error("pending transfer sweep failed", zap.Error(err))
	}
}
