package models

import "time"

// Account is a user's custodial wallet. Cached balances are advisory;
// BalanceSyncedAt/BalanceVersion tag the last authoritative write.
type Account struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Address         string     `gorm:"uniqueIndex;size:44;not null" json:"address"`
	Credential      string     `gorm:"type:text;not null" json:"-"`
	TokenBalance    int64      `gorm:"not null;default:0" json:"token_balance"`
	NativeBalance   int64      `gorm:"not null;default:0" json:"native_balance"`
	BalanceSyncedAt *time.Time `json:"balance_synced_at,omitempty"`
	BalanceVersion  int64      `gorm:"not null;default:0" json:"balance_version"`
	OptimisticAt    *time.Time `json:"optimistic_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
