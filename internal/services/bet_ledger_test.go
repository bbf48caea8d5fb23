package services

import (
	"context"
	"testing"
	"time"

	"wager-settlement/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBet_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wager := h.createWager(t, 1, time.Hour)

	_, err := h.bets.RecordBet(ctx, wager.ID, 2, models.Side1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.bets.RecordBet(ctx, wager.ID, 2, models.Side1, MaxStake(9)+1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.bets.RecordBet(ctx, wager.ID, 2, "both", 10)
	assert.ErrorIs(t, err, ErrInvalidSide)

	count, err := h.repo.CountBetsByWager(ctx, wager.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordBet_WallClockBeatsStoredStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wager := h.createWager(t, 1, time.Minute)

	// the sweep has not run yet, the row still says active
	h.clock.Advance(2 * time.Minute)
	_, err := h.bets.RecordBet(ctx, wager.ID, 2, models.Side1, 10)
	assert.ErrorIs(t, err, ErrWagerExpired)

	_, err = h.wagers.SweepExpired(ctx)
	require.NoError(t, err)
	_, err = h.bets.RecordBet(ctx, wager.ID, 2, models.Side1, 10)
	assert.ErrorIs(t, err, ErrWagerNotActive)
}

func TestTotals_CountOnlySettledStakes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wager := h.createWager(t, 1, time.Hour)

	_, err := h.bets.RecordBet(ctx, wager.ID, 2, models.Side1, 40)
	require.NoError(t, err)
	_, err = h.bets.RecordBet(ctx, wager.ID, 3, models.Side2, 25)
	require.NoError(t, err)

	addTransfer := func(side models.Side, amount int64, status models.TransferStatus) {
		now := h.clock.Now()
		bet := &models.Bet{WagerID: wager.ID, BettorID: 4, Side: side, Amount: amount, CreatedAt: now}
		transfer := &models.Transfer{
			WagerID: wager.ID, BettorID: 4, Side: side, Amount: amount,
			Source: "src", Destination: wager.CustodyAddress(side),
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, h.repo.CreateBetWithTransfer(ctx, bet, transfer))
		switch status {
		case models.TransferStatusCompleted:
			_, err := h.repo.CompleteTransfer(ctx, transfer.ID, "ref", now)
			require.NoError(t, err)
		case models.TransferStatusFailed:
			_, err := h.repo.FailTransfer(ctx, transfer.ID, "boom", now)
			require.NoError(t, err)
		}
	}
	addTransfer(models.Side1, 100, models.TransferStatusCompleted)
	addTransfer(models.Side1, 1000, models.TransferStatusPending)
	addTransfer(models.Side2, 500, models.TransferStatusFailed)

	side1, err := h.bets.TotalBySide(ctx, wager.ID, models.Side1)
	require.NoError(t, err)
	side2, err := h.bets.TotalBySide(ctx, wager.ID, models.Side2)
	require.NoError(t, err)
	total, err := h.bets.TotalPool(ctx, wager.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(140), side1)
	assert.Equal(t, int64(25), side2)
	assert.Equal(t, side1+side2, total)

	require.NoError(t, h.bets.RefreshPoolCache(ctx, wager.ID))
	stored, err := h.wagers.GetWager(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, total, stored.TotalPoolAmount)

	bets, err := h.bets.ListBets(ctx, wager.ID)
	require.NoError(t, err)
	assert.Len(t, bets, 5)

	summary, err := h.wagers.PoolSummary(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(165), summary.TotalPool)
	assert.Equal(t, int64(5), summary.BetCount)
	assert.Equal(t, int64(1), summary.PendingTransfers)
}
