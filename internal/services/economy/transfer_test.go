package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
)

func TestTransfer_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	env.seedAccount(t, 2, 0)

	txn, err := env.svc.Transfer(context.Background(), 1, 2, 60, "bet settlement")
	require.NoError(t, err)

	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, ledger.KindTransfer, txn.Kind)
	assert.Equal(t, int64(60), txn.Amount)

	assert.Equal(t, int64(40), env.balanceOf(t, 1))
	assert.Equal(t, int64(60), env.balanceOf(t, 2))
	assert.Equal(t, 1, env.ledgerCount(t, "TRANSFER"))

	assert.Contains(t, env.invalidator.cleared(), "balance-1")
	assert.Contains(t, env.invalidator.cleared(), "balance-2")

	entries := env.auditor.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer", entries[0].Action)
	assert.Equal(t, uint64(1), entries[0].Actor)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 30)
	env.seedAccount(t, 2, 10)

	_, err := env.svc.Transfer(context.Background(), 1, 2, 60, "")
	require.ErrorIs(t, err, accounts.ErrInsufficientBalance)

	// Nothing moved, nothing was written.
	assert.Equal(t, int64(30), env.balanceOf(t, 1))
	assert.Equal(t, int64(10), env.balanceOf(t, 2))
	assert.Equal(t, 0, env.ledgerCount(t, "TRANSFER"))
	assert.Empty(t, env.invalidator.cleared())
}

func TestTransfer_InvalidArguments(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)

	tests := []struct {
		name   string
		from   uint64
		to     uint64
		amount int64
	}{
		{"zero_amount", 1, 2, 0},
		{"negative_amount", 1, 2, -5},
		{"self_transfer", 1, 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Transfer(context.Background(), tt.from, tt.to, tt.amount, "")
			assert.ErrorIs(t, err, ErrInvalidTransfer)
		})
	}

	assert.Equal(t, int64(100), env.balanceOf(t, 1))
}

func TestTransfer_ImplicitReceiverAccount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)

	// Receiver 77 has never been seen; the transfer creates its row.
	_, err := env.svc.Transfer(context.Background(), 1, 77, 25, "")
	require.NoError(t, err)

	assert.Equal(t, int64(25), env.balanceOf(t, 77))
}

func TestTransfer_RollingDailyLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{DailyTransferLimit: 100})
	env.seedAccount(t, 1, 1000)
	env.seedAccount(t, 2, 0)

	_, err := env.svc.Transfer(context.Background(), 1, 2, 60, "")
	require.NoError(t, err)

	// 60 + 50 > 100 within the same window.
	_, err = env.svc.Transfer(context.Background(), 1, 2, 50, "")
	require.ErrorIs(t, err, ErrTransferLimitExceeded)

	// Exactly reaching the cap is allowed.
	_, err = env.svc.Transfer(context.Background(), 1, 2, 40, "")
	require.NoError(t, err)

	// 25h later the window has rolled past both transfers.
	env.clock.Advance(25 * time.Hour)

	_, err = env.svc.Transfer(context.Background(), 1, 2, 100, "")
	require.NoError(t, err)

	assert.Equal(t, int64(800), env.balanceOf(t, 1))
	assert.Equal(t, int64(200), env.balanceOf(t, 2))
}

func TestTransfer_LimitCountsOnlyTransfers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{DailyTransferLimit: 100})
	env.seedAccount(t, 1, 1000)

	itemID := env.seedShopItem(t, 500, nil, true)

	// A purchase debits 500 but must not count against the transfer cap.
	_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.NoError(t, err)

	_, err = env.svc.Transfer(context.Background(), 1, 2, 100, "")
	require.NoError(t, err)
}

func TestTransfer_ConcurrentSameSender(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	env.seedAccount(t, 2, 0)
	env.seedAccount(t, 3, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.svc.Transfer(context.Background(), 1, 2, 60, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.svc.Transfer(context.Background(), 1, 3, 60, "")
	}()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, accounts.ErrInsufficientBalance)
			failures++
		}
	}

	// Exactly one transfer can cover 60 out of 100.
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(40), env.balanceOf(t, 1))
	assert.Equal(t, int64(100), env.totalBalance(t))
	assert.Equal(t, 1, env.ledgerCount(t, "TRANSFER"))
}

func TestTransfer_ConcurrentOpposingPair(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	env.seedAccount(t, 2, 100)

	// Opposing transfers lock the same two rows; id-ordered locking keeps
	// them from deadlocking.
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.svc.Transfer(context.Background(), 1, 2, 30, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.svc.Transfer(context.Background(), 2, 1, 70, "")
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, int64(200), env.totalBalance(t))
}

// A transfer that cannot acquire its row locks before the configured budget
// expires fails with ErrTimeout and leaves no trace.
func TestTransfer_Timeout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{TxTimeout: 500 * time.Millisecond})
	env.seedAccount(t, 1, 100)
	env.seedAccount(t, 2, 0)

	blocker, err := env.db.Begin()
	require.NoError(t, err)
	defer func() { _ = blocker.Rollback() }()

	_, err = blocker.Exec(`SELECT balance FROM accounts WHERE competitor_id = 1 FOR UPDATE`)
	require.NoError(t, err)

	_, err = env.svc.Transfer(context.Background(), 1, 2, 10, "stalled")
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, blocker.Rollback())

	assert.Equal(t, int64(100), env.balanceOf(t, 1))
	assert.Equal(t, int64(0), env.balanceOf(t, 2))
	assert.Equal(t, 0, env.ledgerCount(t, "TRANSFER"))
	assert.Empty(t, env.invalidator.cleared())
}
