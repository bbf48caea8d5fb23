package services

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(decimal.RequireFromString("1.5"), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), units)

	_, err = ToBaseUnits(decimal.RequireFromString("0.0000000001"), 9)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToBaseUnits(decimal.RequireFromString("100000000000"), 9)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, "1.5", FromBaseUnits(1_500_000_000, 9).String())
}

func TestMaxStake(t *testing.T) {
	assert.Equal(t, int64(1_000_000_000_000_000_000), MaxStake(9))
	assert.Equal(t, int64(1_000_000_000), MaxStake(0))
	assert.Equal(t, int64(math.MaxInt64), MaxStake(18))
}

func TestSettlementError_Matching(t *testing.T) {
	err := fmt.Errorf("placing bet: %w", TransferFailed("blockhash expired"))

	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "blockhash expired")

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeTransferFailed, code)

	_, ok = CodeOf(assert.AnError)
	assert.False(t, ok)

	wrapped := wrapCause(ErrLedgerUnavailable, assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.ErrorIs(t, wrapped, ErrLedgerUnavailable)
}

func TestBettorLocks_ReleaseEntries(t *testing.T) {
	locks := newBettorLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())

	unlockA := locks.Lock(1)
	unlockB := locks.Lock(2)
	assert.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
