package services

import (
	"context"
	"testing"
	"time"

	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransferReconciler_Sweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wager := h.createWager(t, 1, 24*time.Hour)
	bettor := h.fundedAccount(t, 2, 10_000)

	tr := NewTransferReconciler(h.repo, h.ledger, h.bets, h.refresher, h.events, 2*time.Minute, 10*time.Minute, zap.NewNop())

	pending := func(createdAt time.Time, signature string) *models.Transfer {
		bet := &models.Bet{WagerID: wager.ID, BettorID: 2, Side: models.Side1, Amount: 100, CreatedAt: createdAt}
		transfer := &models.Transfer{
			WagerID: wager.ID, BettorID: 2, Side: models.Side1, Amount: 100,
			Source: bettor.Address, Destination: wager.Side1Address,
			CreatedAt: createdAt, UpdatedAt: createdAt,
		}
		require.NoError(t, h.repo.CreateBetWithTransfer(ctx, bet, transfer))
		if signature != "" {
			require.NoError(t, h.repo.SetSubmittedSignature(ctx, transfer.ID, signature))
		}
		return transfer
	}

	now := h.clock.Now()
	neverSubmitted := pending(now.Add(-5*time.Minute), "")
	confirmed := pending(now.Add(-5*time.Minute), "sig-confirmed")
	failedOnChain := pending(now.Add(-5*time.Minute), "sig-failed")
	unknownYoung := pending(now.Add(-5*time.Minute), "sig-unknown-young")
	unknownOld := pending(now.Add(-11*time.Minute), "sig-unknown-old")
	inGrace := pending(now.Add(-30*time.Second), "sig-in-grace")

	h.ledger.setState("sig-confirmed", blockchain.SignatureConfirmed)
	h.ledger.setState("sig-failed", blockchain.SignatureFailed)
	h.ledger.setState("sig-in-grace", blockchain.SignatureConfirmed)

	report, err := tr.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Examined: 5, Completed: 1, Failed: 3, StillPending: 1}, report)

	status := func(transfer *models.Transfer) (models.TransferStatus, string) {
		stored, err := h.repo.GetTransferByID(ctx, transfer.ID)
		require.NoError(t, err)
		return stored.Status, derefString(stored.FailureReason)
	}

	s, reason := status(neverSubmitted)
	assert.Equal(t, models.TransferStatusFailed, s)
	assert.Equal(t, reasonNeverSubmitted, reason)

	s, _ = status(confirmed)
	assert.Equal(t, models.TransferStatusCompleted, s)

	s, _ = status(failedOnChain)
	assert.Equal(t, models.TransferStatusFailed, s)

	s, _ = status(unknownYoung)
	assert.Equal(t, models.TransferStatusPending, s)

	s, reason = status(unknownOld)
	assert.Equal(t, models.TransferStatusFailed, s)
	assert.Equal(t, reasonExpired, reason)

	s, _ = status(inGrace)
	assert.Equal(t, models.TransferStatusPending, s)

	// only the confirmed stake counts toward the pool
	stored, err := h.wagers.GetWager(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.TotalPoolAmount)
	assert.Equal(t, []uint{bettor.ID}, h.refresher.requested())

	// resolved records are not revisited
	report, err = tr.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Examined)
}

func TestTransferReconciler_PicksUpPlaceBetTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wager := h.createWager(t, 1, 24*time.Hour)
	h.fundedAccount(t, 2, 150)

	h.ledger.setSubmitErr(blockchain.ErrConfirmationTimeout)
	result, err := h.transfers.PlaceBet(ctx, PlaceBetInput{WagerID: wager.ID, BettorID: 2, Side: models.Side2, Amount: 100})
	require.ErrorIs(t, err, ErrTransferProcessing)

	// the transaction landed after the caller gave up
	h.ledger.setState("sig-1", blockchain.SignatureConfirmed)

	tr := NewTransferReconciler(h.repo, h.ledger, h.bets, h.refresher, h.events, 0, 0, zap.NewNop())
	report, err := tr.Sweep(ctx, h.clock.Now().Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)

	transfer, err := h.repo.GetTransferByID(ctx, result.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, transfer.Status)

	total, err := h.bets.TotalBySide(ctx, wager.ID, models.Side2)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}
