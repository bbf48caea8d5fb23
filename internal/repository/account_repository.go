package repository

import (
	"context"
	"time"

	"wager-settlement/internal/models"

	"gorm.io/gorm"
)

// CreateAccount creates a custodial account
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetAccountByUserID retrieves the account owned by a user
func (r *Repository) GetAccountByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByID retrieves an account by primary key
func (r *Repository) GetAccountByID(ctx context.Context, accountID uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByAddress retrieves an account by its on-chain address
func (r *Repository) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns every known account
func (r *Repository) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.WithContext(ctx).Order("id ASC").Find(&accounts).Error
	return accounts, err
}

// OverwriteBalances replaces both cached balances with an authoritative observation.
// Observations older than the last authoritative write are discarded.
func (r *Repository) OverwriteBalances(ctx context.Context, accountID uint, native, token int64, observedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND (balance_synced_at IS NULL OR balance_synced_at <= ?)", accountID, observedAt).
		Updates(map[string]interface{}{
			"native_balance":    native,
			"token_balance":     token,
			"balance_synced_at": observedAt,
			"balance_version":   gorm.Expr("balance_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyOptimisticDebit lowers the cached token balance after a confirmed
// outgoing transfer. It is skipped when an authoritative observation taken at
// or after the confirmation already landed, since that value includes the debit.
func (r *Repository) ApplyOptimisticDebit(ctx context.Context, accountID uint, amount int64, confirmedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND (balance_synced_at IS NULL OR balance_synced_at < ?)", accountID, confirmedAt).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("CASE WHEN token_balance >= ? THEN token_balance - ? ELSE 0 END", amount, amount),
			"optimistic_at": confirmedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
