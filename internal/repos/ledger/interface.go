// Package ledger defines the append-only transaction log, the source of
// truth behind every balance movement.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Kind string

const (
	KindTransfer        Kind = "TRANSFER"
	KindPurchase        Kind = "PURCHASE"
	KindDailyReward     Kind = "DAILY_REWARD"
	KindTradeSettlement Kind = "TRADE_SETTLEMENT"
	KindRefund          Kind = "REFUND"
)

// Transaction is an immutable ledger record. FromAccount is nil for system
// grants (daily rewards); ToAccount is nil for sinks (purchases).
type Transaction struct {
	ID          string
	FromAccount *uint64
	ToAccount   *uint64
	Amount      int64
	Kind        Kind
	Reason      string
	CreatedAt   time.Time
}

var ErrDuplicateTransaction = errors.New("duplicate ledger transaction")

type Ledger interface {
	Insert(tx *sql.Tx, txn Transaction) error
	// ListByAccount returns transactions touching the account on either side,
	// newest first.
	ListByAccount(ctx context.Context, competitorID uint64, limit, offset int) ([]Transaction, error)
	// OutboundTotal sums the amounts debited from the account for the given
	// kind since the cutoff. Runs inside the caller's transaction so the cap
	// check observes the same snapshot as the insert.
	OutboundTotal(tx *sql.Tx, competitorID uint64, kind Kind, since time.Time) (int64, error)
}
