package repository

import (
	"context"
	"fmt"
	"time"

	"wager-settlement/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateWager creates a new wager
func (r *Repository) CreateWager(ctx context.Context, wager *models.Wager) error {
	return r.db.WithContext(ctx).Create(wager).Error
}

// GetWagerByID retrieves a wager by ID
func (r *Repository) GetWagerByID(ctx context.Context, wagerID uuid.UUID) (*models.Wager, error) {
	var wager models.Wager
	err := r.db.WithContext(ctx).Where("id = ?", wagerID).First(&wager).Error
	if err != nil {
		return nil, err
	}
	return &wager, nil
}

// ListPublicActiveWagers returns public wagers still accepting bets, soonest
// ending first. An empty category matches every category.
func (r *Repository) ListPublicActiveWagers(ctx context.Context, now time.Time, category models.Category, limit, offset int) ([]*models.Wager, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND visibility = ? AND end_time > ?",
			models.WagerStatusActive, models.VisibilityPublic, now)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var wagers []*models.Wager
	err := query.
		Order("end_time ASC").
		Limit(limit).
		Offset(offset).
		Find(&wagers).Error
	return wagers, err
}

// ListWagersByCreator returns every wager created by a user, newest first
func (r *Repository) ListWagersByCreator(ctx context.Context, creatorID int64) ([]*models.Wager, error) {
	var wagers []*models.Wager
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&wagers).Error
	return wagers, err
}

// EndExpiredWagers moves active wagers whose end time has passed to ended and
// returns only the rows this call transitioned. Concurrent callers skip rows
// another sweep has locked.
func (r *Repository) EndExpiredWagers(ctx context.Context, now time.Time) ([]*models.Wager, error) {
	var transitioned []*models.Wager

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []*models.Wager
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND end_time <= ?", models.WagerStatusActive, now).
			Order("end_time ASC").
			Find(&candidates).Error
		if err != nil || len(candidates) == 0 {
			return err
		}

		ids := make([]uuid.UUID, 0, len(candidates))
		for _, w := range candidates {
			ids = append(ids, w.ID)
		}

		res := tx.Model(&models.Wager{}).
			Where("id IN ? AND status = ?", ids, models.WagerStatusActive).
			Update("status", models.WagerStatusEnded)
		if res.Error != nil {
			return res.Error
		}
		// candidates are row-locked by this transaction, so every one of them was updated here
		if res.RowsAffected != int64(len(candidates)) {
			return fmt.Errorf("expired wager sweep updated %d of %d locked rows", res.RowsAffected, len(candidates))
		}

		for _, w := range candidates {
			w.Status = models.WagerStatusEnded
		}
		transitioned = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transitioned, nil
}

// ListEndedUnresolvedWagers returns ended wagers without a winner, oldest end time first
func (r *Repository) ListEndedUnresolvedWagers(ctx context.Context) ([]*models.Wager, error) {
	var wagers []*models.Wager
	err := r.db.WithContext(ctx).
		Where("status = ? AND winning_side IS NULL", models.WagerStatusEnded).
		Order("end_time ASC").
		Find(&wagers).Error
	return wagers, err
}

// SetWinningSide writes the winner only if the wager is ended and unresolved.
// It reports whether this call performed the write.
func (r *Repository) SetWinningSide(ctx context.Context, wagerID uuid.UUID, side models.Side, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("id = ? AND status = ? AND winning_side IS NULL", wagerID, models.WagerStatusEnded).
		Updates(map[string]interface{}{
			"winning_side": side,
			"resolved_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelWager marks an unresolved active or ended wager as cancelled
func (r *Repository) CancelWager(ctx context.Context, wagerID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("id = ? AND status IN ? AND winning_side IS NULL", wagerID,
			[]models.WagerStatus{models.WagerStatusActive, models.WagerStatusEnded}).
		Update("status", models.WagerStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RefreshWagerPool overwrites the cached pool column with the recomputed settled total
func (r *Repository) RefreshWagerPool(ctx context.Context, wagerID uuid.UUID) error {
	total := r.settledBets(r.db.Session(&gorm.Session{NewDB: true}), wagerID, nil).
		Select("CAST(COALESCE(SUM(bets.amount), 0) AS BIGINT)")

	return r.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("id = ?", wagerID).
		Update("total_pool_amount", total).Error
}
