package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(h *harness, watcher *fakeWatcher) *BalanceReconciler {
	r := NewBalanceReconciler(h.repo, h.ledger, watcher, zap.NewNop())
	r.now = h.clock.Now
	return r
}

func TestBalanceReconciler_RefreshOverwritesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := newTestReconciler(h, &fakeWatcher{})

	account, _, err := h.accounts.CreateAccount(ctx, 5)
	require.NoError(t, err)

	// no token account yet counts as zero
	h.ledger.native[account.Address] = 2_000_000
	require.NoError(t, r.Refresh(ctx, account.ID))

	stored, err := h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TokenBalance)
	assert.Equal(t, int64(2_000_000), stored.NativeBalance)
	require.NotNil(t, stored.BalanceSyncedAt)
	assert.Equal(t, int64(1), stored.BalanceVersion)

	h.ledger.setHolding(account.Address, 700)
	require.NoError(t, r.Refresh(ctx, account.ID))

	stored, err = h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), stored.TokenBalance)
	assert.Equal(t, int64(2), stored.BalanceVersion)
}

func TestBalanceReconciler_StaleObservationIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := newTestReconciler(h, &fakeWatcher{})

	account, _, err := h.accounts.CreateAccount(ctx, 5)
	require.NoError(t, err)

	staleAt := h.clock.Now()
	r.now = func() time.Time { return staleAt }

	ok, err := h.repo.OverwriteBalances(ctx, account.ID, 0, 300, h.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	h.ledger.setHolding(account.Address, 999)
	require.NoError(t, r.Refresh(ctx, account.ID))

	stored, err := h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), stored.TokenBalance)
	assert.Equal(t, int64(1), stored.BalanceVersion)
}

func TestBalanceReconciler_AuthoritativeReadReplacesOptimisticDebit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := newTestReconciler(h, &fakeWatcher{})
	account := h.fundedAccount(t, 5, 500)

	ok, err := h.repo.ApplyOptimisticDebit(ctx, account.ID, 200, h.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	// an incoming deposit the cache never saw
	h.ledger.setHolding(account.Address, 450)
	require.NoError(t, r.Refresh(ctx, account.ID))

	stored, err := h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(450), stored.TokenBalance)
}

func TestBalanceReconciler_LedgerErrorLeavesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := newTestReconciler(h, &fakeWatcher{})
	account := h.fundedAccount(t, 5, 500)

	h.ledger.holdingErr = assert.AnError
	assert.Error(t, r.Refresh(ctx, account.ID))

	stored, err := h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.TokenBalance)
}

func TestBalanceReconciler_StartWatchesAndRefreshesOnChange(t *testing.T) {
	h := newHarness(t)
	watcher := &fakeWatcher{}
	r := newTestReconciler(h, watcher)

	existing := h.fundedAccount(t, 5, 500)
	h.ledger.setHolding(existing.Address, 510)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool { return len(watcher.watched()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{existing.Address, "ata-" + existing.Address}, watcher.watched())

	stored, err := h.repo.GetAccountByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(510), stored.TokenBalance)

	// a new account created after startup is tracked too
	h.accounts.tracker = r
	created, _, err := h.accounts.CreateAccount(context.Background(), 6)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(watcher.watched()) == 4 }, 2*time.Second, 10*time.Millisecond)

	// a change notification leads to a refresh
	h.ledger.setHolding(created.Address, 42)
	watcher.mu.Lock()
	onChange := watcher.handlers["ata-"+created.Address]
	watcher.mu.Unlock()
	onChange("ata-" + created.Address)

	require.Eventually(t, func() bool {
		account, err := h.repo.GetAccountByID(context.Background(), created.ID)
		return err == nil && account.TokenBalance == 42
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// gatedSource holds native balance reads until released
type gatedSource struct {
	*fakeLedger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSource) NativeBalance(ctx context.Context, owner string) (uint64, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return s.fakeLedger.NativeBalance(ctx, owner)
}

func TestBalanceReconciler_TracksAccountsCreatedDuringStartup(t *testing.T) {
	h := newHarness(t)
	watcher := &fakeWatcher{}
	source := &gatedSource{fakeLedger: h.ledger, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewBalanceReconciler(h.repo, source, watcher, zap.NewNop())
	r.now = h.clock.Now

	existing := h.fundedAccount(t, 5, 500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	// the initial refresh is in flight and existing addresses are already watched
	select {
	case <-source.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initial refresh never started")
	}
	assert.ElementsMatch(t, []string{existing.Address, "ata-" + existing.Address}, watcher.watched())

	h.accounts.tracker = r
	created, _, err := h.accounts.CreateAccount(context.Background(), 6)
	require.NoError(t, err)
	assert.Contains(t, watcher.watched(), created.Address)
	assert.Contains(t, watcher.watched(), "ata-"+created.Address)

	close(source.release)
	cancel()
	require.NoError(t, <-done)
}
