package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/database/databasetest"
	"wager-settlement/internal/messaging"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testClock advances one millisecond per reading so successive timestamps are strictly ordered
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLedger struct {
	mu sync.Mutex

	holdings   map[string]blockchain.TokenHolding
	native     map[string]uint64
	states     map[string]blockchain.SignatureState
	holdingErr error
	prepareErr error
	submitErr  error
	submitted  []*blockchain.PreparedTransfer
	seq        int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		holdings: make(map[string]blockchain.TokenHolding),
		native:   make(map[string]uint64),
		states:   make(map[string]blockchain.SignatureState),
	}
}

func (l *fakeLedger) setHolding(owner string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[owner] = blockchain.TokenHolding{Address: "ata-" + owner, Exists: true, Amount: amount}
}

func (l *fakeLedger) setSubmitErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErr = err
}

func (l *fakeLedger) setState(signature string, state blockchain.SignatureState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[signature] = state
}

func (l *fakeLedger) NativeBalance(_ context.Context, owner string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holdingErr != nil {
		return 0, l.holdingErr
	}
	return l.native[owner], nil
}

func (l *fakeLedger) TokenAccountAddress(owner string) (string, error) {
	return "ata-" + owner, nil
}

func (l *fakeLedger) TokenHolding(_ context.Context, owner string) (blockchain.TokenHolding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holdingErr != nil {
		return blockchain.TokenHolding{}, l.holdingErr
	}
	holding, ok := l.holdings[owner]
	if !ok {
		return blockchain.TokenHolding{Address: "ata-" + owner}, nil
	}
	return holding, nil
}

func (l *fakeLedger) PrepareTokenTransfer(_ context.Context, signer solana.PrivateKey, destination string, amount uint64) (*blockchain.PreparedTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.prepareErr != nil {
		return nil, l.prepareErr
	}
	l.seq++
	return &blockchain.PreparedTransfer{
		Signature:          fmt.Sprintf("sig-%d", l.seq),
		Source:             signer.PublicKey().String(),
		Destination:        destination,
		Amount:             amount,
		CreatesDestination: !l.holdings[destination].Exists,
	}, nil
}

func (l *fakeLedger) SubmitAndConfirm(_ context.Context, transfer *blockchain.PreparedTransfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted = append(l.submitted, transfer)
	if l.submitErr != nil {
		return l.submitErr
	}

	source := l.holdings[transfer.Source]
	source.Amount -= transfer.Amount
	l.holdings[transfer.Source] = source

	dest := l.holdings[transfer.Destination]
	dest.Exists = true
	dest.Amount += transfer.Amount
	l.holdings[transfer.Destination] = dest

	l.states[transfer.Signature] = blockchain.SignatureConfirmed
	return nil
}

func (l *fakeLedger) SignatureState(_ context.Context, signature string) (blockchain.SignatureState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[signature], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []messaging.Event
}

func (p *fakePublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []messaging.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]messaging.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeRefresher struct {
	mu       sync.Mutex
	requests []uint
}

func (r *fakeRefresher) RequestRefresh(accountID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, accountID)
}

func (r *fakeRefresher) requested() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.requests...)
}

type fakeWatcher struct {
	mu        sync.Mutex
	addresses []string
	handlers  map[string]blockchain.ChangeHandler
}

func (w *fakeWatcher) Watch(_ context.Context, address string, onChange blockchain.ChangeHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = make(map[string]blockchain.ChangeHandler)
	}
	w.addresses = append(w.addresses, address)
	w.handlers[address] = onChange
	return nil
}

func (w *fakeWatcher) watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.addresses...)
}

type harness struct {
	repo      *repository.Repository
	clock     *testClock
	keys      *blockchain.Keyring
	ledger    *fakeLedger
	events    *fakePublisher
	refresher *fakeRefresher
	wagers    *WagerService
	bets      *BetLedger
	transfers *TransferService
	accounts  *AccountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := zap.NewNop()
	repo := repository.NewRepository(databasetest.Open(t))
	keys, err := blockchain.NewKeyring("test-credential-secret")
	require.NoError(t, err)

	h := &harness{
		repo:      repo,
		clock:     newTestClock(),
		keys:      keys,
		ledger:    newFakeLedger(),
		events:    &fakePublisher{},
		refresher: &fakeRefresher{},
	}

	h.wagers = NewWagerService(repo, keys, h.events, log)
	h.wagers.now = h.clock.Now

	h.bets = NewBetLedger(repo, h.wagers, MaxStake(9))
	h.bets.now = h.clock.Now

	h.transfers = NewTransferService(repo, h.bets, h.ledger, keys, h.refresher, h.events, time.Second, log)
	h.transfers.now = h.clock.Now

	h.accounts = NewAccountService(repo, keys, nil, log)
	return h
}

func (h *harness) createWager(t *testing.T, creatorID int64, endIn time.Duration) *models.Wager {
	t.Helper()

	wager, err := h.wagers.CreateWager(context.Background(), CreateWagerInput{
		CreatorID:   creatorID,
		Category:    models.CategoryCrypto,
		Name:        "Cats vs Dogs",
		Description: "Which pet wins the internet this week?",
		Side1:       "Cats",
		Side2:       "Dogs",
		EndTime:     h.clock.Now().Add(endIn),
	})
	require.NoError(t, err)
	return wager
}

// fundedAccount creates a custodial account holding tokens on the ledger with a synced cache
func (h *harness) fundedAccount(t *testing.T, userID int64, tokens uint64) *models.Account {
	t.Helper()
	ctx := context.Background()

	account, _, err := h.accounts.CreateAccount(ctx, userID)
	require.NoError(t, err)

	h.ledger.setHolding(account.Address, tokens)
	ok, err := h.repo.OverwriteBalances(ctx, account.ID, 0, int64(tokens), h.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	account, err = h.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	return account
}

// endWager moves the clock past the wager's end and runs the expiry sweep
func (h *harness) endWager(t *testing.T, wager *models.Wager) {
	t.Helper()
	h.clock.Advance(wager.EndTime.Sub(h.clock.Now()) + time.Second)
	_, err := h.wagers.SweepExpired(context.Background())
	require.NoError(t, err)
}
