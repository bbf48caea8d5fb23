package services

import (
	"context"
	"fmt"
	"time"

	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/messaging"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"go.uber.org/zap"
)

const (
	DefaultPendingGrace  = 2 * time.Minute
	DefaultPendingExpiry = 10 * time.Minute

	pendingSweepBatch = 100

	reasonNeverSubmitted = "never submitted"
	reasonExpired        = "expired without confirmation"
)

// SignatureChecker looks up what the cluster knows about a submitted signature
type SignatureChecker interface {
	SignatureState(ctx context.Context, signature string) (blockchain.SignatureState, error)
}

// SweepReport counts what one pending sweep did
type SweepReport struct {
	Examined     int
	Completed    int
	Failed       int
	StillPending int
}

// TransferReconciler resolves transfers left pending after a confirmation
// timeout or a crash between broadcast and bookkeeping.
type TransferReconciler struct {
	repo      *repository.Repository
	checker   SignatureChecker
	bets      *BetLedger
	refresher BalanceRefresher
	events    messaging.Publisher
	log       *zap.Logger
	grace     time.Duration
	expiry    time.Duration
}

func NewTransferReconciler(
	repo *repository.Repository,
	checker SignatureChecker,
	bets *BetLedger,
	refresher BalanceRefresher,
	events messaging.Publisher,
	grace, expiry time.Duration,
	log *zap.Logger,
) *TransferReconciler {
	if grace <= 0 {
		grace = DefaultPendingGrace
	}
	if expiry < grace {
		expiry = DefaultPendingExpiry
	}
	return &TransferReconciler{
		repo:      repo,
		checker:   checker,
		bets:      bets,
		refresher: refresher,
		events:    events,
		log:       log,
		grace:     grace,
		expiry:    expiry,
	}
}

// Sweep examines pending transfers older than the grace period
func (tr *TransferReconciler) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	transfers, err := tr.repo.ListStalePendingTransfers(ctx, now.Add(-tr.grace), pendingSweepBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list pending transfers: %w", err)
	}

	for _, transfer := range transfers {
		report.Examined++

		status, err := tr.resolve(ctx, transfer, now)
		if err != nil {
			tr.log.Warn("failed to resolve pending transfer",
				zap.String("transfer_id", transfer.ID.String()),
				zap.Error(err),
			)
			report.StillPending++
			continue
		}

		switch status {
		case models.TransferStatusCompleted:
			report.Completed++
		case models.TransferStatusFailed:
			report.Failed++
		default:
			report.StillPending++
		}
	}

	if report.Completed+report.Failed > 0 {
		tr.log.Info("pending transfer sweep",
			zap.Int("examined", report.Examined),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("still_pending", report.StillPending),
		)
	}
	return report, nil
}

func (tr *TransferReconciler) resolve(ctx context.Context, transfer *models.Transfer, now time.Time) (models.TransferStatus, error) {
	if transfer.SubmittedSignature == nil || *transfer.SubmittedSignature == "" {
		return tr.markFailed(ctx, transfer, reasonNeverSubmitted, now)
	}
	signature := *transfer.SubmittedSignature

	state, err := tr.checker.SignatureState(ctx, signature)
	if err != nil {
		return models.TransferStatusPending, err
	}

	switch state {
	case blockchain.SignatureConfirmed:
		return tr.markCompleted(ctx, transfer, signature, now)
	case blockchain.SignatureFailed:
		return tr.markFailed(ctx, transfer, blockchain.ErrTransactionFailed.Error(), now)
	default:
		if now.Sub(transfer.CreatedAt) >= tr.expiry {
			return tr.markFailed(ctx, transfer, reasonExpired, now)
		}
		return models.TransferStatusPending, nil
	}
}

func (tr *TransferReconciler) markCompleted(ctx context.Context, transfer *models.Transfer, signature string, now time.Time) (models.TransferStatus, error) {
	ok, err := tr.repo.CompleteTransfer(ctx, transfer.ID, signature, now)
	if err != nil {
		return models.TransferStatusPending, err
	}
	if !ok {
		return tr.currentStatus(ctx, transfer)
	}
	metrics.PendingResolved.WithLabelValues(string(models.TransferStatusCompleted)).Inc()

	if err := tr.bets.RefreshPoolCache(ctx, transfer.WagerID); err != nil {
		tr.log.Error("failed to refresh pool total", zap.String("wager_id", transfer.WagerID.String()), zap.Error(err))
	}
	if account, err := tr.repo.GetAccountByAddress(ctx, transfer.Source); err == nil {
		if tr.refresher != nil {
			tr.refresher.RequestRefresh(account.ID)
		}
	} else {
		tr.log.Warn("no account for transfer source", zap.String("source", transfer.Source), zap.Error(err))
	}

	publish(ctx, tr.events, tr.log, messaging.Event{
		Type:       messaging.EventTransferCompleted,
		WagerID:    transfer.WagerID,
		BettorID:   transfer.BettorID,
		TransferID: &transfer.ID,
		Side:       transfer.Side,
		Amount:     transfer.Amount,
		Reference:  signature,
		OccurredAt: now,
	})
	return models.TransferStatusCompleted, nil
}

func (tr *TransferReconciler) markFailed(ctx context.Context, transfer *models.Transfer, reason string, now time.Time) (models.TransferStatus, error) {
	ok, err := tr.repo.FailTransfer(ctx, transfer.ID, reason, now)
	if err != nil {
		return models.TransferStatusPending, err
	}
	if !ok {
		return tr.currentStatus(ctx, transfer)
	}
	metrics.PendingResolved.WithLabelValues(string(models.TransferStatusFailed)).Inc()

	publish(ctx, tr.events, tr.log, messaging.Event{
		Type:       messaging.EventTransferFailed,
		WagerID:    transfer.WagerID,
		BettorID:   transfer.BettorID,
		TransferID: &transfer.ID,
		Side:       transfer.Side,
		Amount:     transfer.Amount,
		Reason:     reason,
		OccurredAt: now,
	})
	return models.TransferStatusFailed, nil
}

// currentStatus reports a transfer someone else resolved between our read and write
func (tr *TransferReconciler) currentStatus(ctx context.Context, transfer *models.Transfer) (models.TransferStatus, error) {
	current, err := tr.repo.GetTransferByID(ctx, transfer.ID)
	if err != nil {
		return models.TransferStatusPending, err
	}
	return current.Status, nil
}
