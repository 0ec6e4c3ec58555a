package economy

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgtestutil"
)

// fakeInvalidator records every cleared key so tests can assert on
// invalidation without a redis instance.
type fakeInvalidator struct {
	mu   sync.Mutex
	keys []string
}

var _ cache.Invalidator = (*fakeInvalidator)(nil)

func (f *fakeInvalidator) Clear(_ context.Context, namespace, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, cache.Key(namespace, key))
}

func (f *fakeInvalidator) cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

var _ audit.Recorder = (*fakeAuditor)(nil)

func (f *fakeAuditor) Record(_ context.Context, e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) recorded() []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Entry(nil), f.entries...)
}

// testClock is a settable clock for deterministic windows and day
// boundaries.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc         *Service
	db          *sql.DB
	invalidator *fakeInvalidator
	auditor     *fakeAuditor
	clock       *testClock
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	inv := &fakeInvalidator{}
	aud := &fakeAuditor{}
	clock := newTestClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	cfg.Invalidator = inv
	cfg.Auditor = aud
	if cfg.Now == nil {
		cfg.Now = clock.Now
	}

	return &testEnv{
		svc:         New(db, cfg),
		db:          db,
		invalidator: inv,
		auditor:     aud,
		clock:       clock,
	}
}

func (e *testEnv) seedAccount(t *testing.T, id uint64, balance int64) {
	t.Helper()

	_, err := e.db.Exec(`
		INSERT INTO accounts (competitor_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (competitor_id) DO UPDATE SET balance = EXCLUDED.balance
	`, id, balance)
	require.NoError(t, err)
}

func (e *testEnv) balanceOf(t *testing.T, id uint64) int64 {
	t.Helper()

	var balance int64
	err := e.db.QueryRow(`SELECT balance FROM accounts WHERE competitor_id = $1`, id).Scan(&balance)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) ledgerCount(t *testing.T, kind string) int {
	t.Helper()

	var n int
	err := e.db.QueryRow(`SELECT COUNT(*) FROM ledger_transactions WHERE kind = $1`, kind).Scan(&n)
	require.NoError(t, err)
	return n
}

// totalBalance sums every account; transfers and trades must never change it.
func (e *testEnv) totalBalance(t *testing.T) int64 {
	t.Helper()

	var total int64
	err := e.db.QueryRow(`SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&total)
	require.NoError(t, err)
	return total
}

func (e *testEnv) seedShopItem(t *testing.T, price int64, stock *int64, available bool) int64 {
	t.Helper()

	var shopID int64
	err := e.db.QueryRow(`INSERT INTO shops (name) VALUES ('test shop') RETURNING id`).Scan(&shopID)
	require.NoError(t, err)

	var itemID int64
	err = e.db.QueryRow(`
		INSERT INTO shop_items (shop_id, name, price, stock, is_available)
		VALUES ($1, 'test item', $2, $3, $4)
		RETURNING id
	`, shopID, price, stock, available).Scan(&itemID)
	require.NoError(t, err)

	return itemID
}

func (e *testEnv) seedGrant(t *testing.T, competitorID uint64, itemID, quantity int64) int64 {
	t.Helper()

	var grantID int64
	err := e.db.QueryRow(`
		INSERT INTO inventory_grants (competitor_id, item_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id
	`, competitorID, itemID, quantity).Scan(&grantID)
	require.NoError(t, err)

	return grantID
}

func int64Ptr(v int64) *int64 { return &v }
