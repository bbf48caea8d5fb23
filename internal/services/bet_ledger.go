package services

import (
	"context"
	"fmt"
	"time"

	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"github.com/google/uuid"
)

// BetLedger is the append-only record of stakes. Totals only count bets whose
// transfer completed, plus bets recorded without a transfer.
type BetLedger struct {
	repo      *repository.Repository
	wagers    *WagerService
	maxAmount int64
	now       func() time.Time
}

func NewBetLedger(repo *repository.Repository, wagers *WagerService, maxAmount int64) *BetLedger {
	return &BetLedger{
		repo:      repo,
		wagers:    wagers,
		maxAmount: maxAmount,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// validateStake checks the parts of a bet that need no I/O
func (bl *BetLedger) validateStake(side models.Side, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if bl.maxAmount > 0 && amount > bl.maxAmount {
		return withReason(ErrInvalidAmount, "amount exceeds the per-bet limit")
	}
	if !side.Valid() {
		return ErrInvalidSide
	}
	return nil
}

// openWager loads a wager and checks it still takes bets at now. The wall
// clock wins over a stored status the sweep has not caught up with yet.
func (bl *BetLedger) openWager(ctx context.Context, wagerID uuid.UUID, now time.Time) (*models.Wager, error) {
	wager, err := bl.wagers.GetWager(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.Status != models.WagerStatusActive {
		return nil, withReason(ErrWagerNotActive, fmt.Sprintf("status is %s", wager.Status))
	}
	if wager.ExpiredAt(now) {
		return nil, ErrWagerExpired
	}
	return wager, nil
}

// RecordBet appends a bet with no transfer attached
func (bl *BetLedger) RecordBet(ctx context.Context, wagerID uuid.UUID, bettorID int64, side models.Side, amount int64) (uuid.UUID, error) {
	if err := bl.validateStake(side, amount); err != nil {
		return uuid.Nil, err
	}

	now := bl.now()
	if _, err := bl.openWager(ctx, wagerID, now); err != nil {
		return uuid.Nil, err
	}

	bet := &models.Bet{
		WagerID:   wagerID,
		BettorID:  bettorID,
		Side:      side,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := bl.repo.CreateBet(ctx, bet); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record bet: %w", err)
	}
	if err := bl.RefreshPoolCache(ctx, wagerID); err != nil {
		return bet.ID, err
	}
	return bet.ID, nil
}

func (bl *BetLedger) TotalBySide(ctx context.Context, wagerID uuid.UUID, side models.Side) (int64, error) {
	if !side.Valid() {
		return 0, ErrInvalidSide
	}
	return bl.repo.SumSettledBets(ctx, wagerID, &side)
}

func (bl *BetLedger) TotalPool(ctx context.Context, wagerID uuid.UUID) (int64, error) {
	return bl.repo.SumSettledBets(ctx, wagerID, nil)
}

func (bl *BetLedger) ListBets(ctx context.Context, wagerID uuid.UUID) ([]*models.Bet, error) {
	return bl.repo.ListBetsByWager(ctx, wagerID)
}

// RefreshPoolCache rewrites the wager's cached pool total from the ledger
func (bl *BetLedger) RefreshPoolCache(ctx context.Context, wagerID uuid.UUID) error {
	if err := bl.repo.RefreshWagerPool(ctx, wagerID); err != nil {
		return fmt.Errorf("failed to refresh pool total: %w", err)
	}
	return nil
}
