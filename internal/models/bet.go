package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bet is an immutable ledger entry: one stake on one side of one wager.
// Amount is in token base units.
type Bet struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WagerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"wager_id"`
	BettorID  int64     `gorm:"not null;index" json:"bettor_id"`
	Side      Side      `gorm:"size:10;not null;index" json:"side"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (Bet) TableName() string {
	return "bets"
}

func (b *Bet) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// Transfer tracks the on-chain settlement of a bet. It leaves pending exactly once.
type Transfer struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BetID              uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"bet_id"`
	WagerID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"wager_id"`
	BettorID           int64          `gorm:"not null;index" json:"bettor_id"`
	Side               Side           `gorm:"size:10;not null" json:"side"`
	Source             string         `gorm:"size:44;not null" json:"source"`
	Destination        string         `gorm:"size:44;not null" json:"destination"`
	Amount             int64          `gorm:"not null" json:"amount"`
	SubmittedSignature *string        `gorm:"size:100;index" json:"submitted_signature,omitempty"`
	Reference          *string        `gorm:"size:100" json:"reference,omitempty"`
	Status             TransferStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	FailureReason      *string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	SettledAt          *time.Time     `json:"settled_at,omitempty"`
}

func (Transfer) TableName() string {
	return "transfers"
}

func (t *Transfer) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
