package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	initialRefreshConcurrency = 8
	refreshQueueSize          = 256
)

// BalanceSource reads authoritative balances from the ledger
type BalanceSource interface {
	NativeBalance(ctx context.Context, owner string) (uint64, error)
	TokenHolding(ctx context.Context, owner string) (blockchain.TokenHolding, error)
	TokenAccountAddress(owner string) (string, error)
}

// BalanceReconciler keeps cached account balances in step with the ledger.
// Every account's owner address and token account are watched; a change
// queues a refresh, and a refresh overwrites the cache only if nothing newer
// has been written since it started reading.
type BalanceReconciler struct {
	repo     *repository.Repository
	source   BalanceSource
	watchers *blockchain.WatchGroup
	log      *zap.Logger
	now      func() time.Time

	refreshes chan uint

	mu     sync.Mutex
	runCtx context.Context
}

func NewBalanceReconciler(repo *repository.Repository, source BalanceSource, watcher blockchain.AccountWatcher, log *zap.Logger) *BalanceReconciler {
	return &BalanceReconciler{
		repo:      repo,
		source:    source,
		watchers:  blockchain.NewWatchGroup(watcher),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		refreshes: make(chan uint, refreshQueueSize),
	}
}

// Start watches and refreshes every known account, then processes queued
// refreshes until ctx is done. Accounts tracked while Start is loading are
// watched as well.
func (br *BalanceReconciler) Start(ctx context.Context) error {
	br.mu.Lock()
	br.runCtx = ctx
	br.mu.Unlock()

	accounts, err := br.repo.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	// watch first so changes landing during the initial refresh still queue one
	for _, account := range accounts {
		br.watch(ctx, account)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initialRefreshConcurrency)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			if err := br.Refresh(gctx, account.ID); err != nil {
				br.log.Warn("initial balance refresh failed",
					zap.Uint("account_id", account.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	br.log.Info("balance reconciler started",
		zap.Int("accounts", len(accounts)),
		zap.Int("watched_addresses", br.watchers.Len()),
	)

	for {
		select {
		case <-ctx.Done():
			br.log.Info("balance reconciler stopped")
			return nil
		case accountID := <-br.refreshes:
			if err := br.Refresh(ctx, accountID); err != nil {
				br.log.Warn("balance refresh failed", zap.Uint("account_id", accountID), zap.Error(err))
			}
		}
	}
}

// Track starts watching a newly created account and queues its first refresh.
// Before Start runs it only queues; Start picks the account up from the database.
func (br *BalanceReconciler) Track(account *models.Account) {
	br.mu.Lock()
	runCtx := br.runCtx
	br.mu.Unlock()

	if runCtx != nil {
		br.watch(runCtx, account)
	}
	br.RequestRefresh(account.ID)
}

// RequestRefresh queues an authoritative refresh without blocking
func (br *BalanceReconciler) RequestRefresh(accountID uint) {
	select {
	case br.refreshes <- accountID:
	default:
		br.log.Warn("balance refresh queue full, dropping request", zap.Uint("account_id", accountID))
	}
}

func (br *BalanceReconciler) watch(ctx context.Context, account *models.Account) {
	addresses := []string{account.Address}
	if tokenAccount, err := br.source.TokenAccountAddress(account.Address); err == nil {
		addresses = append(addresses, tokenAccount)
	} else {
		br.log.Warn("failed to derive token account", zap.String("owner", account.Address), zap.Error(err))
	}

	accountID := account.ID
	for _, address := range addresses {
		err := br.watchers.Watch(ctx, address, func(string) {
			br.RequestRefresh(accountID)
		})
		if err != nil {
			br.log.Warn("failed to watch address", zap.String("address", address), zap.Error(err))
		}
	}
	metrics.WatchedAddresses.Set(float64(br.watchers.Len()))
}

// Refresh reads both balances from the ledger and overwrites the cache. A
// missing token account counts as zero.
func (br *BalanceReconciler) Refresh(ctx context.Context, accountID uint) error {
	account, err := br.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		metrics.BalanceRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load account: %w", err)
	}

	observedAt := br.now()

	native, err := br.source.NativeBalance(ctx, account.Address)
	if err != nil {
		metrics.BalanceRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	holding, err := br.source.TokenHolding(ctx, account.Address)
	if err != nil {
		metrics.BalanceRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read token balance: %w", err)
	}

	applied, err := br.repo.OverwriteBalances(ctx, account.ID, clampInt64(native), clampInt64(holding.Amount), observedAt)
	if err != nil {
		metrics.BalanceRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to store balances: %w", err)
	}
	if !applied {
		metrics.BalanceRefreshes.WithLabelValues("stale").Inc()
		br.log.Debug("discarded stale balance observation",
			zap.Uint("account_id", account.ID),
			zap.Time("observed_at", observedAt),
		)
		return nil
	}

	metrics.BalanceRefreshes.WithLabelValues("applied").Inc()
	return nil
}
