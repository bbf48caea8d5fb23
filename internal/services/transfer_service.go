package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/messaging"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTransferTimeout = 45 * time.Second

// Ledger is the slice of the chain client bet placement needs
type Ledger interface {
	TokenHolding(ctx context.Context, owner string) (blockchain.TokenHolding, error)
	PrepareTokenTransfer(ctx context.Context, signer solana.PrivateKey, destinationOwner string, amount uint64) (*blockchain.PreparedTransfer, error)
	SubmitAndConfirm(ctx context.Context, transfer *blockchain.PreparedTransfer) error
}

// CredentialOpener unseals a stored custody credential
type CredentialOpener interface {
	Open(sealed string) (solana.PrivateKey, error)
}

// BalanceRefresher schedules an authoritative balance read for an account
type BalanceRefresher interface {
	RequestRefresh(accountID uint)
}

type PlaceBetInput struct {
	WagerID  uuid.UUID
	BettorID int64
	Side     models.Side
	Amount   int64
}

// PlaceBetResult identifies the bet and its transfer. Reference and NewBalance
// are set once the transfer completed.
type PlaceBetResult struct {
	BetID      uuid.UUID             `json:"bet_id"`
	TransferID uuid.UUID             `json:"transfer_id"`
	Status     models.TransferStatus `json:"status"`
	Reference  string                `json:"reference,omitempty"`
	NewBalance int64                 `json:"new_balance"`
}

// TransferService places bets: it records the stake, moves the tokens from
// the bettor's custodial account to the side's custody address and keeps
// the cached balance and pool in step.
type TransferService struct {
	repo      *repository.Repository
	bets      *BetLedger
	ledger    Ledger
	keys      CredentialOpener
	refresher BalanceRefresher
	events    messaging.Publisher
	log       *zap.Logger
	locks     *bettorLocks
	timeout   time.Duration
	now       func() time.Time
}

func NewTransferService(
	repo *repository.Repository,
	bets *BetLedger,
	ledger Ledger,
	keys CredentialOpener,
	refresher BalanceRefresher,
	events messaging.Publisher,
	timeout time.Duration,
	log *zap.Logger,
) *TransferService {
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	return &TransferService{
		repo:      repo,
		bets:      bets,
		ledger:    ledger,
		keys:      keys,
		refresher: refresher,
		events:    events,
		log:       log,
		locks:     newBettorLocks(),
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBet runs one bet attempt end to end. Attempts by the same bettor are
// serialized. When the confirmation deadline passes the transfer stays
// pending and the result comes back with ErrTransferProcessing.
func (ts *TransferService) PlaceBet(ctx context.Context, in PlaceBetInput) (*PlaceBetResult, error) {
	result, err := ts.placeBet(ctx, in)

	outcome := "ok"
	if code, ok := CodeOf(err); ok {
		outcome = string(code)
	} else if err != nil {
		outcome = "error"
	}
	metrics.BetsPlaced.WithLabelValues(outcome).Inc()

	return result, err
}

func (ts *TransferService) placeBet(ctx context.Context, in PlaceBetInput) (*PlaceBetResult, error) {
	if err := ts.bets.validateStake(in.Side, in.Amount); err != nil {
		return nil, err
	}

	unlock := ts.locks.Lock(in.BettorID)
	defer unlock()

	wager, err := ts.bets.openWager(ctx, in.WagerID, ts.now())
	if err != nil {
		return nil, err
	}
	destination := wager.CustodyAddress(in.Side)
	if !blockchain.ValidateWalletAddress(destination) {
		return nil, withReason(ErrInvalidDestination, "custody address does not parse")
	}

	account, err := ts.repo.GetAccountByUserID(ctx, in.BettorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bettor account: %w", err)
	}
	if account.Address == destination {
		return nil, withReason(ErrInvalidDestination, "cannot transfer to the source account")
	}
	if account.BalanceSyncedAt != nil && account.TokenBalance < in.Amount {
		return nil, ErrInsufficientFunds
	}

	holding, err := ts.ledger.TokenHolding(ctx, account.Address)
	if err != nil {
		return nil, wrapCause(ErrLedgerUnavailable, err)
	}
	if !holding.Exists {
		return nil, ErrNoFundingSource
	}
	if holding.Amount < uint64(in.Amount) {
		return nil, ErrInsufficientFunds
	}

	now := ts.now()
	bet := &models.Bet{
		WagerID:   wager.ID,
		BettorID:  in.BettorID,
		Side:      in.Side,
		Amount:    in.Amount,
		CreatedAt: now,
	}
	transfer := &models.Transfer{
		WagerID:     wager.ID,
		BettorID:    in.BettorID,
		Side:        in.Side,
		Source:      account.Address,
		Destination: destination,
		Amount:      in.Amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ts.repo.CreateBetWithTransfer(ctx, bet, transfer); err != nil {
		return nil, fmt.Errorf("failed to record bet: %w", err)
	}

	result := &PlaceBetResult{
		BetID:      bet.ID,
		TransferID: transfer.ID,
		Status:     models.TransferStatusPending,
		NewBalance: account.TokenBalance,
	}
	log := ts.log.With(
		zap.String("wager_id", wager.ID.String()),
		zap.String("transfer_id", transfer.ID.String()),
		zap.Int64("bettor_id", in.BettorID),
		zap.Int64("amount", in.Amount),
	)

	// From here on the pending record exists; bookkeeping must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	signer, err := ts.keys.Open(account.Credential)
	if err != nil {
		log.Error("failed to open custody credential", zap.Error(err))
		return nil, ts.fail(ctx, transfer, "custody credential unavailable")
	}

	prepared, err := ts.ledger.PrepareTokenTransfer(ctx, signer, destination, uint64(in.Amount))
	if err != nil {
		log.Warn("failed to prepare transfer", zap.Error(err))
		return nil, ts.fail(ctx, transfer, fmt.Sprintf("prepare: %v", err))
	}
	if err := ts.repo.SetSubmittedSignature(ctx, transfer.ID, prepared.Signature); err != nil {
		log.Error("failed to store signature before submit", zap.Error(err))
		return nil, ts.fail(ctx, transfer, "could not persist signature")
	}

	submitCtx, cancel := context.WithTimeout(ctx, ts.timeout)
	started := time.Now()
	err = ts.ledger.SubmitAndConfirm(submitCtx, prepared)
	cancel()
	metrics.TransferDuration.Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, blockchain.ErrConfirmationTimeout):
		log.Warn("confirmation not observed before deadline, leaving transfer pending",
			zap.String("signature", prepared.Signature))
		return result, ErrTransferProcessing
	default:
		log.Warn("transfer failed", zap.String("signature", prepared.Signature), zap.Error(err))
		return nil, ts.fail(ctx, transfer, err.Error())
	}

	confirmedAt := ts.now()
	completed, err := ts.repo.CompleteTransfer(ctx, transfer.ID, prepared.Signature, confirmedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to complete transfer: %w", err)
	}
	if !completed {
		// the pending sweep got there first
		current, err := ts.repo.GetTransferByID(ctx, transfer.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload transfer: %w", err)
		}
		if current.Status != models.TransferStatusCompleted {
			return nil, TransferFailed(derefString(current.FailureReason))
		}
	} else {
		if _, err := ts.repo.ApplyOptimisticDebit(ctx, account.ID, in.Amount, confirmedAt); err != nil {
			log.Error("failed to apply optimistic debit", zap.Error(err))
		}
		if err := ts.bets.RefreshPoolCache(ctx, wager.ID); err != nil {
			log.Error("failed to refresh pool total", zap.Error(err))
		}
		publish(ctx, ts.events, ts.log, messaging.Event{
			Type:       messaging.EventBetPlaced,
			WagerID:    wager.ID,
			BettorID:   in.BettorID,
			TransferID: &transfer.ID,
			Side:       in.Side,
			Amount:     in.Amount,
			Reference:  prepared.Signature,
			OccurredAt: confirmedAt,
		})
	}
	if ts.refresher != nil {
		ts.refresher.RequestRefresh(account.ID)
	}

	result.Status = models.TransferStatusCompleted
	result.Reference = prepared.Signature
	if refreshed, err := ts.repo.GetAccountByID(ctx, account.ID); err == nil {
		result.NewBalance = refreshed.TokenBalance
	} else {
		log.Warn("failed to reload account after transfer", zap.Error(err))
	}

	log.Info("bet placed",
		zap.String("signature", prepared.Signature),
		zap.Bool("created_destination", prepared.CreatesDestination),
	)
	return result, nil
}

// fail marks the transfer failed and returns the error handed back to the caller
func (ts *TransferService) fail(ctx context.Context, transfer *models.Transfer, reason string) error {
	if _, err := ts.repo.FailTransfer(ctx, transfer.ID, reason, ts.now()); err != nil {
		ts.log.Error("failed to mark transfer failed",
			zap.String("transfer_id", transfer.ID.String()),
			zap.Error(err),
		)
	}
	publish(ctx, ts.events, ts.log, messaging.Event{
		Type:       messaging.EventTransferFailed,
		WagerID:    transfer.WagerID,
		BettorID:   transfer.BettorID,
		TransferID: &transfer.ID,
		Side:       transfer.Side,
		Amount:     transfer.Amount,
		Reason:     reason,
		OccurredAt: ts.now(),
	})
	return TransferFailed(reason)
}

// ListTransfers returns a bettor's transfers, newest first
func (ts *TransferService) ListTransfers(ctx context.Context, bettorID int64, limit, offset int) ([]*models.Transfer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return ts.repo.ListTransfersByBettor(ctx, bettorID, limit, offset)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
