package repository

import (
	"context"
	"time"

	"wager-settlement/internal/models"

	"github.com/google/uuid"
)

// GetTransferByID retrieves a transfer by ID
func (r *Repository) GetTransferByID(ctx context.Context, transferID uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).Where("id = ?", transferID).First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// SetSubmittedSignature records the signature of a signed transaction before it is broadcast
func (r *Repository) SetSubmittedSignature(ctx context.Context, transferID uuid.UUID, signature string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, models.TransferStatusPending).
		Update("submitted_signature", signature).Error
}

// CompleteTransfer moves a pending transfer to completed. It reports whether
// this call made the transition.
func (r *Repository) CompleteTransfer(ctx context.Context, transferID uuid.UUID, reference string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, models.TransferStatusPending).
		Updates(map[string]interface{}{
			"status":     models.TransferStatusCompleted,
			"reference":  reference,
			"settled_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FailTransfer moves a pending transfer to failed
func (r *Repository) FailTransfer(ctx context.Context, transferID uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, models.TransferStatusPending).
		Updates(map[string]interface{}{
			"status":         models.TransferStatusFailed,
			"failure_reason": reason,
			"settled_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListStalePendingTransfers returns pending transfers created before the cutoff, oldest first
func (r *Repository) ListStalePendingTransfers(ctx context.Context, before time.Time, limit int) ([]*models.Transfer, error) {
	var transfers []*models.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TransferStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

// ListTransfersByBettor returns a user's transfer history, newest first
func (r *Repository) ListTransfersByBettor(ctx context.Context, bettorID int64, limit, offset int) ([]*models.Transfer, error) {
	var transfers []*models.Transfer
	err := r.db.WithContext(ctx).
		Where("bettor_id = ?", bettorID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&transfers).Error
	return transfers, err
}

// CountTransfersByStatus counts the transfers of a wager in a given state
func (r *Repository) CountTransfersByStatus(ctx context.Context, wagerID uuid.UUID, status models.TransferStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("wager_id = ? AND status = ?", wagerID, status).
		Count(&count).Error
	return count, err
}
