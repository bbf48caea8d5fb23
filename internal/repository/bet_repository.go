package repository

import (
	"context"

	"wager-settlement/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateBet appends a bet that has no on-chain transfer attached
func (r *Repository) CreateBet(ctx context.Context, bet *models.Bet) error {
	return r.db.WithContext(ctx).Create(bet).Error
}

// CreateBetWithTransfer writes a bet and its pending transfer in one transaction
func (r *Repository) CreateBetWithTransfer(ctx context.Context, bet *models.Bet, transfer *models.Transfer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bet).Error; err != nil {
			return err
		}
		transfer.BetID = bet.ID
		transfer.Status = models.TransferStatusPending
		return tx.Create(transfer).Error
	})
}

// ListBetsByWager returns the ledger entries of a wager in placement order
func (r *Repository) ListBetsByWager(ctx context.Context, wagerID uuid.UUID) ([]*models.Bet, error) {
	var bets []*models.Bet
	err := r.db.WithContext(ctx).
		Where("wager_id = ?", wagerID).
		Order("created_at ASC").
		Find(&bets).Error
	return bets, err
}

// CountBetsByWager counts every ledger entry of a wager regardless of transfer outcome
func (r *Repository) CountBetsByWager(ctx context.Context, wagerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Bet{}).Where("wager_id = ?", wagerID).Count(&count).Error
	return count, err
}

// SumSettledBets sums the bets of a wager that count toward the pool: those
// whose transfer completed and those recorded without a transfer. A nil side
// sums both sides.
func (r *Repository) SumSettledBets(ctx context.Context, wagerID uuid.UUID, side *models.Side) (int64, error) {
	var total int64
	err := r.settledBets(r.db.WithContext(ctx), wagerID, side).
		Select("CAST(COALESCE(SUM(bets.amount), 0) AS BIGINT)").
		Scan(&total).Error
	return total, err
}

func (r *Repository) settledBets(db *gorm.DB, wagerID uuid.UUID, side *models.Side) *gorm.DB {
	q := db.Table("bets").
		Joins("LEFT JOIN transfers ON transfers.bet_id = bets.id").
		Where("bets.wager_id = ?", wagerID).
		Where("(transfers.id IS NULL OR transfers.status = ?)", models.TransferStatusCompleted)
	if side != nil {
		q = q.Where("bets.side = ?", *side)
	}
	return q
}
