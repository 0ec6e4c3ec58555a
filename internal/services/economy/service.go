// Package economy implements the competitor economy: balance accounting, the
// transfer protocol, shop purchases against finite stock, two-party trade
// negotiation, and idempotent daily rewards.
//
// Every mutating operation runs as a single database transaction with a
// bounded time budget; precondition checks and state mutations observe the
// same snapshot and commit together or not at all. Cache invalidation and
// audit records are emitted only after a successful commit.
package economy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgutils"
	"github.com/nickzitzer/pulseplus-economy/internal/metrics"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	pgaccounts "github.com/nickzitzer/pulseplus-economy/internal/repos/accounts/postgres"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
	pgledger "github.com/nickzitzer/pulseplus-economy/internal/repos/ledger/postgres"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/rewards"
	pgrewards "github.com/nickzitzer/pulseplus-economy/internal/repos/rewards/postgres"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
	pgshop "github.com/nickzitzer/pulseplus-economy/internal/repos/shop/postgres"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/trades"
	pgtrades "github.com/nickzitzer/pulseplus-economy/internal/repos/trades/postgres"
)

// Config carries the engine's process-wide business configuration and the
// injected capabilities. Zero-value fields fall back to sane defaults in New.
type Config struct {
	// DailyTransferLimit caps a sender's total outbound transfer amount over
	// any rolling 24h window, in minor currency units.
	DailyTransferLimit int64
	// DailyRewardAmount is credited per successful daily claim.
	DailyRewardAmount int64
	// Location fixes the canonical day boundary for daily reward claims.
	Location *time.Location
	// TxTimeout bounds every transactional unit of work.
	TxTimeout time.Duration

	Invalidator cache.Invalidator
	Auditor     audit.Recorder

	// Now overrides the clock; tests use it for deterministic day boundaries.
	Now func() time.Time
}

type Service struct {
	db       *sql.DB
	accounts accounts.Accounts
	ledger   ledger.Ledger
	shops    shop.Shops
	trades   trades.Trades
	rewards  rewards.Rewards
	cfg      Config
}

func New(db *sql.DB, cfg Config) *Service {
	if cfg.DailyTransferLimit <= 0 {
		cfg.DailyTransferLimit = 10_000
	}
	if cfg.DailyRewardAmount <= 0 {
		cfg.DailyRewardAmount = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.Invalidator == nil {
		cfg.Invalidator = cache.Noop{}
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		db:       db,
		accounts: pgaccounts.New(db),
		ledger:   pgledger.New(db),
		shops:    pgshop.New(db),
		trades:   pgtrades.New(db),
		rewards:  pgrewards.New(db),
		cfg:      cfg,
	}
}

// withTx runs fn as one atomic unit of work under the configured time budget
// and maps transport-level failures onto the engine's retryable error kinds.
func (s *Service) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	err := pgutils.WithTx(ctx, s.db, fn)
	if err != nil {
		switch {
		// A statement stalled past the deadline can surface a driver error
		// instead of the context error, so check the budget context too.
		case errors.Is(err, context.DeadlineExceeded),
			errors.Is(ctx.Err(), context.DeadlineExceeded):
			return fmt.Errorf("unit of work exceeded %v: %w", s.cfg.TxTimeout, ErrTimeout)
		case pgutils.IsRetryableTxError(err):
			return fmt.Errorf("concurrent conflict: %w", ErrConflict)
		}

		return err
	}

	return nil
}

func accountKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// resultLabel partitions outcomes for the metrics counters: business-rule
// rejections are expected traffic, everything else is an error.
func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}

	rejections := []error{
		accounts.ErrAccountNotFound,
		accounts.ErrInsufficientBalance,
		shop.ErrItemNotFound,
		shop.ErrItemOutOfStock,
		shop.ErrGrantNotFound,
		shop.ErrGrantExhausted,
		trades.ErrTradeNotFound,
		rewards.ErrAlreadyClaimed,
		ErrTransferLimitExceeded,
		ErrInvalidTransfer,
		ErrItemNotAvailable,
		ErrInvalidState,
		ErrNotAuthorized,
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return metrics.ResultRejected
		}
	}

	return metrics.ResultError
}
