package economy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
)

func TestPurchase_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	itemID := env.seedShopItem(t, 40, int64Ptr(5), true)

	receipt, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, ledger.KindPurchase, receipt.Transaction.Kind)
	assert.Equal(t, int64(40), receipt.Transaction.Amount)
	require.NotNil(t, receipt.Transaction.FromAccount)
	assert.Equal(t, uint64(1), *receipt.Transaction.FromAccount)
	// Purchases are a pure sink: no account receives the debit.
	assert.Nil(t, receipt.Transaction.ToAccount)

	require.NotNil(t, receipt.NewStock)
	assert.Equal(t, int64(4), *receipt.NewStock)
	assert.Equal(t, int64(1), receipt.Grant.Quantity)

	assert.Equal(t, int64(60), env.balanceOf(t, 1))
	assert.Equal(t, 1, env.ledgerCount(t, "PURCHASE"))

	var stock int64
	require.NoError(t, env.db.QueryRow(`SELECT stock FROM shop_items WHERE id = $1`, itemID).Scan(&stock))
	assert.Equal(t, int64(4), stock)
}

func TestPurchase_MultipleQuantity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 200)
	itemID := env.seedShopItem(t, 40, int64Ptr(5), true)

	receipt, err := env.svc.Purchase(context.Background(), itemID, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(120), receipt.Transaction.Amount)
	assert.Equal(t, int64(80), env.balanceOf(t, 1))
	require.NotNil(t, receipt.NewStock)
	assert.Equal(t, int64(2), *receipt.NewStock)
	assert.Equal(t, int64(3), receipt.Grant.Quantity)
}

func TestPurchase_UnlimitedStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 200)
	itemID := env.seedShopItem(t, 10, nil, true)

	for i := 0; i < 3; i++ {
		_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
		require.NoError(t, err)
	}

	receipt, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, receipt.NewStock)

	assert.Equal(t, int64(160), env.balanceOf(t, 1))
}

func TestPurchase_InsufficientBalance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 30)
	itemID := env.seedShopItem(t, 40, int64Ptr(5), true)

	_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.ErrorIs(t, err, accounts.ErrInsufficientBalance)

	assert.Equal(t, int64(30), env.balanceOf(t, 1))
	assert.Equal(t, 0, env.ledgerCount(t, "PURCHASE"))

	var stock int64
	require.NoError(t, env.db.QueryRow(`SELECT stock FROM shop_items WHERE id = $1`, itemID).Scan(&stock))
	assert.Equal(t, int64(5), stock)
}

func TestPurchase_OutOfStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	itemID := env.seedShopItem(t, 40, int64Ptr(0), true)

	_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.ErrorIs(t, err, shop.ErrItemOutOfStock)

	assert.Equal(t, int64(100), env.balanceOf(t, 1))
}

func TestPurchase_QuantityExceedsStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 1000)
	itemID := env.seedShopItem(t, 40, int64Ptr(2), true)

	_, err := env.svc.Purchase(context.Background(), itemID, 1, 3)
	require.ErrorIs(t, err, shop.ErrItemOutOfStock)
}

func TestPurchase_ItemNotAvailable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	itemID := env.seedShopItem(t, 40, int64Ptr(5), false)

	_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.ErrorIs(t, err, ErrItemNotAvailable)
}

func TestPurchase_ItemNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)

	_, err := env.svc.Purchase(context.Background(), 9999, 1, 1)
	require.ErrorIs(t, err, shop.ErrItemNotFound)
}

// Two buyers race for the last unit; exactly one purchase succeeds and stock
// never goes negative.
func TestPurchase_ConcurrentLastUnit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	env.seedAccount(t, 2, 100)
	itemID := env.seedShopItem(t, 40, int64Ptr(1), true)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.svc.Purchase(context.Background(), itemID, 1, 1)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.svc.Purchase(context.Background(), itemID, 2, 1)
	}()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shop.ErrItemOutOfStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	var stock int64
	require.NoError(t, env.db.QueryRow(`SELECT stock FROM shop_items WHERE id = $1`, itemID).Scan(&stock))
	assert.Equal(t, int64(0), stock)

	// Only the winner paid.
	assert.Equal(t, int64(160), env.balanceOf(t, 1)+env.balanceOf(t, 2))
	assert.Equal(t, 1, env.ledgerCount(t, "PURCHASE"))
}

func TestUseItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 0)
	itemID := env.seedShopItem(t, 40, nil, true)
	grantID := env.seedGrant(t, 1, itemID, 3)

	g, err := env.svc.UseItem(context.Background(), 1, grantID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.UsedQuantity)

	g, err = env.svc.UseItem(context.Background(), 1, grantID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.UsedQuantity)

	_, err = env.svc.UseItem(context.Background(), 1, grantID, 1)
	require.ErrorIs(t, err, shop.ErrGrantExhausted)
}

func TestUseItem_WrongOwner(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	itemID := env.seedShopItem(t, 40, nil, true)
	grantID := env.seedGrant(t, 1, itemID, 3)

	_, err := env.svc.UseItem(context.Background(), 2, grantID, 1)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestUseItem_GrantNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})

	_, err := env.svc.UseItem(context.Background(), 1, 9999, 1)
	require.ErrorIs(t, err, shop.ErrGrantNotFound)
}

func TestSetItemAvailability_Roundtrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	itemID := env.seedShopItem(t, 40, int64Ptr(5), true)

	require.NoError(t, env.svc.SetItemAvailability(context.Background(), itemID, false))

	_, err := env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.ErrorIs(t, err, ErrItemNotAvailable)

	require.NoError(t, env.svc.SetItemAvailability(context.Background(), itemID, true))

	_, err = env.svc.Purchase(context.Background(), itemID, 1, 1)
	require.NoError(t, err)
}

// A quantity chosen so price * quantity wraps around int64 must not turn an
// unaffordable purchase into a cheap one minting an enormous grant.
func TestPurchase_QuantityOverflow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedAccount(t, 1, 100)
	itemID := env.seedShopItem(t, 40, nil, true)

	// 40 * 461168601842738791 wraps to 24.
	_, err := env.svc.Purchase(context.Background(), itemID, 1, 461168601842738791)
	require.ErrorIs(t, err, ErrInvalidTransfer)

	assert.Equal(t, int64(100), env.balanceOf(t, 1))
	assert.Equal(t, 0, env.ledgerCount(t, "PURCHASE"))

	var grants int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM inventory_grants`).Scan(&grants))
	assert.Equal(t, 0, grants)
}

// The audited prior state must be the value the toggle actually replaced,
// even when another writer flips the row concurrently.
func TestSetItemAvailability_AuditsReplacedValue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	itemID := env.seedShopItem(t, 40, nil, true)

	blocker, err := env.db.Begin()
	require.NoError(t, err)
	defer func() { _ = blocker.Rollback() }()

	_, err = blocker.Exec(`UPDATE shop_items SET is_available = false WHERE id = $1`, itemID)
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- env.svc.SetItemAvailability(ctx, itemID, true)
	}()

	// The toggle must block on the concurrent writer's row lock.
	select {
	case err := <-done:
		t.Fatalf("toggle did not block: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, blocker.Commit())
	require.NoError(t, <-done)

	entries := env.auditor.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0].Detail["before"])
	assert.Equal(t, true, entries[0].Detail["after"])
}
