package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WagerStatus string

const (
	WagerStatusActive    WagerStatus = "active"
	WagerStatusEnded     WagerStatus = "ended"
	WagerStatusCancelled WagerStatus = "cancelled"
)

type Side string

const (
	Side1 Side = "side_1"
	Side2 Side = "side_2"
)

// Valid reports whether s is one of the two wager sides
func (s Side) Valid() bool {
	return s == Side1 || s == Side2
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Category string

const (
	CategoryCrypto     Category = "Crypto"
	CategoryEuFootball Category = "EuFootball"
	CategoryFinance    Category = "Finance"
	CategoryGolf       Category = "Golf"
	CategoryIPL        Category = "IPL"
	CategoryMLB        Category = "MLB"
	CategoryNBA        Category = "NBA"
	CategoryNHL        Category = "NHL"
	CategoryPolitics   Category = "Politics"
	CategoryUFC        Category = "UFC"
)

// WagerCategories is the closed set of categories a wager may belong to
var WagerCategories = []Category{
	CategoryCrypto,
	CategoryEuFootball,
	CategoryFinance,
	CategoryGolf,
	CategoryIPL,
	CategoryMLB,
	CategoryNBA,
	CategoryNHL,
	CategoryPolitics,
	CategoryUFC,
}

func (c Category) Valid() bool {
	for _, known := range WagerCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Wager is a two-sided proposition with one custody address per side
type Wager struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID       int64       `gorm:"not null;index" json:"creator_id"`
	Category        Category    `gorm:"size:50;not null;index" json:"category"`
	Name            string      `gorm:"size:100;not null" json:"name"`
	Description     string      `gorm:"type:text;not null" json:"description"`
	ImageURL        *string     `gorm:"size:500" json:"image_url,omitempty"`
	Side1Label      string      `gorm:"column:side1_label;size:50;not null" json:"side_1"`
	Side2Label      string      `gorm:"column:side2_label;size:50;not null" json:"side_2"`
	Side1Address    string      `gorm:"column:side1_address;size:44;not null;uniqueIndex" json:"side_1_address"`
	Side2Address    string      `gorm:"column:side2_address;size:44;not null;uniqueIndex" json:"side_2_address"`
	Side1Credential string      `gorm:"column:side1_credential;type:text;not null" json:"-"`
	Side2Credential string      `gorm:"column:side2_credential;type:text;not null" json:"-"`
	EndTime         time.Time   `gorm:"not null;index" json:"end_time"`
	Visibility      Visibility  `gorm:"size:20;not null;default:public" json:"visibility"`
	Status          WagerStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	WinningSide     *Side       `gorm:"size:10" json:"winning_side,omitempty"`
	TotalPoolAmount int64       `gorm:"not null;default:0" json:"total_pool_amount"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Wager) TableName() string {
	return "wagers"
}

func (w *Wager) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// SideLabel returns the display label of a side
func (w *Wager) SideLabel(side Side) string {
	if side == Side2 {
		return w.Side2Label
	}
	return w.Side1Label
}

// CustodyAddress returns the address that receives stakes for a side
func (w *Wager) CustodyAddress(side Side) string {
	if side == Side2 {
		return w.Side2Address
	}
	return w.Side1Address
}

// ExpiredAt reports whether the wall-clock end time has passed at now,
// independent of the stored status.
func (w *Wager) ExpiredAt(now time.Time) bool {
	return !now.Before(w.EndTime)
}
