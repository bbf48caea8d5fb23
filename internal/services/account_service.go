package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountTracker watches accounts created after startup and refreshes balances on demand
type AccountTracker interface {
	Track(account *models.Account)
	Refresh(ctx context.Context, accountID uint) error
}

// AccountService is the directory of custodial accounts, one per user
type AccountService struct {
	repo    *repository.Repository
	keys    KeyGenerator
	tracker AccountTracker
	log     *zap.Logger
}

func NewAccountService(repo *repository.Repository, keys KeyGenerator, tracker AccountTracker, log *zap.Logger) *AccountService {
	return &AccountService{
		repo:    repo,
		keys:    keys,
		tracker: tracker,
		log:     log,
	}
}

// CreateAccount returns the user's account, creating it with a fresh keypair
// on first call. The bool reports whether this call created it.
func (as *AccountService) CreateAccount(ctx context.Context, userID int64) (*models.Account, bool, error) {
	if userID == 0 {
		return nil, false, errors.New("user id is required")
	}

	existing, err := as.repo.GetAccountByUserID(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}

	address, sealed, err := as.keys.Generate()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate keypair: %w", err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		UserID:     userID,
		Address:    address,
		Credential: sealed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := as.repo.CreateAccount(ctx, account); err != nil {
		// a concurrent request for the same user won the unique index
		if existing, lookupErr := as.repo.GetAccountByUserID(ctx, userID); lookupErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	as.log.Info("account created", zap.Int64("user_id", userID), zap.String("address", address))
	if as.tracker != nil {
		as.tracker.Track(account)
	}
	return account, true, nil
}

func (as *AccountService) GetByUser(ctx context.Context, userID int64) (*models.Account, error) {
	account, err := as.repo.GetAccountByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// Refresh forces an authoritative balance read for the user's account and returns the result
func (as *AccountService) Refresh(ctx context.Context, userID int64) (*models.Account, error) {
	account, err := as.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if as.tracker == nil {
		return account, nil
	}
	if err := as.tracker.Refresh(ctx, account.ID); err != nil {
		return nil, wrapCause(ErrLedgerUnavailable, err)
	}
	return as.repo.GetAccountByID(ctx, account.ID)
}
