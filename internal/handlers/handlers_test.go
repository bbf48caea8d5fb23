package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wager-settlement/internal/auth"
	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/database/databasetest"
	"wager-settlement/internal/messaging"
	"wager-settlement/internal/repository"
	"wager-settlement/internal/services"
	"wager-settlement/internal/session"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDecimals = 9

type stubLedger struct {
	mu       sync.Mutex
	holdings map[string]uint64
	seq      int
}

func (l *stubLedger) NativeBalance(context.Context, string) (uint64, error) { return 0, nil }

func (l *stubLedger) TokenAccountAddress(owner string) (string, error) { return owner, nil }

func (l *stubLedger) TokenHolding(_ context.Context, owner string) (blockchain.TokenHolding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, ok := l.holdings[owner]
	return blockchain.TokenHolding{Address: owner, Exists: ok, Amount: amount}, nil
}

func (l *stubLedger) PrepareTokenTransfer(_ context.Context, signer solana.PrivateKey, destination string, amount uint64) (*blockchain.PreparedTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return &blockchain.PreparedTransfer{
		Signature:   fmt.Sprintf("sig-%d", l.seq),
		Source:      signer.PublicKey().String(),
		Destination: destination,
		Amount:      amount,
	}, nil
}

func (l *stubLedger) SubmitAndConfirm(_ context.Context, transfer *blockchain.PreparedTransfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[transfer.Source] -= transfer.Amount
	return nil
}

type apiFixture struct {
	router *gin.Engine
	ledger *stubLedger
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("handler-test-secret")

	log := zap.NewNop()
	repo := repository.NewRepository(databasetest.Open(t))
	keys, err := blockchain.NewKeyring("handler-test-credentials")
	require.NoError(t, err)
	ledger := &stubLedger{holdings: make(map[string]uint64)}
	events := messaging.NewLogPublisher(log)

	reconciler := services.NewBalanceReconciler(repo, ledger, blockchain.NewPollingWatcher(nil, time.Hour, 0, log), log)
	wagers := services.NewWagerService(repo, keys, events, log)
	bets := services.NewBetLedger(repo, wagers, services.MaxStake(testDecimals))
	transfers := services.NewTransferService(repo, bets, ledger, keys, reconciler, events, time.Second, log)
	accounts := services.NewAccountService(repo, keys, reconciler, log)
	drafts := services.NewDraftService(session.NewMemoryStore(), wagers, time.Hour, log)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Health:   NewHealthHandler(repo, nil),
		Accounts: NewAccountHandler(accounts, transfers, testDecimals, log),
		Wagers:   NewWagerHandler(wagers, log),
		Bets:     NewBetHandler(transfers, bets, testDecimals, log),
		Drafts:   NewDraftHandler(drafts, log),
	}, auth.AuthMiddleware(log))

	return &apiFixture{router: router, ledger: ledger}
}

func (f *apiFixture) do(t *testing.T, method, path string, userID int64, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := auth.GenerateToken(userID, "", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestAPI_WagerAndBetFlow(t *testing.T) {
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPost, "/api/accounts", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, account := f.do(t, http.MethodPost, "/api/accounts", 2, nil)
	require.Equal(t, http.StatusCreated, code)
	address := account["address"].(string)
	f.ledger.mu.Lock()
	f.ledger.holdings[address] = 150_000_000_000
	f.ledger.mu.Unlock()

	code, _ = f.do(t, http.MethodPost, "/api/accounts", 2, nil)
	assert.Equal(t, http.StatusOK, code)

	code, account = f.do(t, http.MethodPost, "/api/accounts/me/refresh", 2, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "150", account["token_balance"])

	code, wager := f.do(t, http.MethodPost, "/api/wagers", 1, map[string]interface{}{
		"category":    "Crypto",
		"name":        "Cats vs Dogs",
		"description": "Which pet wins the internet this week?",
		"side_1":      "Cats",
		"side_2":      "Dogs",
		"end_time":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code, wager)
	wagerID := wager["id"].(string)
	assert.NotContains(t, wager, "side1_credential")

	code, body := f.do(t, http.MethodPost, "/api/wagers/"+wagerID+"/bets", 2, map[string]interface{}{
		"side":   "side_1",
		"amount": "100",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "sig-1", body["reference"])
	assert.Equal(t, "50", body["new_balance"])

	code, body = f.do(t, http.MethodPost, "/api/wagers/"+wagerID+"/bets", 2, map[string]interface{}{
		"side":   "side_2",
		"amount": "0.0000000001",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_AMOUNT", body["code"])

	code, body = f.do(t, http.MethodPost, "/api/wagers/"+wagerID+"/bets", 2, map[string]interface{}{
		"side":   "side_2",
		"amount": "1000",
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	code, body = f.do(t, http.MethodGet, "/api/wagers/"+wagerID, 1, nil)
	require.Equal(t, http.StatusOK, code)
	pool := body["pool"].(map[string]interface{})
	assert.EqualValues(t, 100_000_000_000, pool["side_1_total"])

	code, body = f.do(t, http.MethodPost, "/api/wagers/"+wagerID+"/winner", 2, map[string]interface{}{"side": "side_1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_AUTHORIZED", body["code"])

	code, body = f.do(t, http.MethodPost, "/api/wagers/"+wagerID+"/winner", 1, map[string]interface{}{"side": "side_1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "WAGER_NOT_ENDED", body["code"])

	code, body = f.do(t, http.MethodGet, "/api/accounts/me/transfers", 2, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["transfers"], 1)

	code, _ = f.do(t, http.MethodGet, "/api/wagers/not-a-uuid", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodGet, "/api/wagers", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["wagers"], 1)

	code, body = f.do(t, http.MethodGet, "/api/wagers?category=Crypto", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["wagers"], 1)

	code, body = f.do(t, http.MethodGet, "/api/wagers?category=Golf", 0, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["wagers"])

	code, body = f.do(t, http.MethodGet, "/api/wagers?category=Curling", 0, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_WAGER", body["code"])
}

func TestAPI_DraftFlow(t *testing.T) {
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/drafts", 5, nil)
	require.Equal(t, http.StatusCreated, code)

	endTime := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	for _, input := range []string{"MLB", "World Series", "Who lifts the trophy this October?", "Yankees", "Dodgers", "/no", endTime} {
		code, body := f.do(t, http.MethodPost, "/api/drafts/input", 5, map[string]string{"input": input})
		require.Equal(t, http.StatusOK, code, body)
	}

	code, body := f.do(t, http.MethodGet, "/api/drafts", 5, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "review", body["draft"].(map[string]interface{})["step"])

	code, body = f.do(t, http.MethodPost, "/api/drafts/confirm", 5, nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Yankees", body["side_1"])

	code, body = f.do(t, http.MethodGet, "/api/drafts", 5, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_DRAFT", body["code"])

	code, body = f.do(t, http.MethodGet, "/api/wagers/mine", 5, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["wagers"], 1)
}

func TestStatusFor(t *testing.T) {
	tests := map[services.ErrorCode]int{
		services.CodeInvalidAmount:     http.StatusBadRequest,
		services.CodeNotAuthorized:     http.StatusForbidden,
		services.CodeWagerNotFound:     http.StatusNotFound,
		services.CodeWagerExpired:      http.StatusConflict,
		services.CodeInsufficientFunds: http.StatusPaymentRequired,
		services.CodeLedgerUnavailable: http.StatusServiceUnavailable,
		services.CodeTransferFailed:    http.StatusBadGateway,
		services.CodeTransferPending:   http.StatusAccepted,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), string(code))
	}
}
