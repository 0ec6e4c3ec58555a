// Package trades defines persistence for two-party trade negotiations.
package trades

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

var ErrTradeNotFound = errors.New("trade not found")

// Offer is one side's proposed terms: a currency amount and optionally a
// single item stack. Nothing moves until settlement.
type Offer struct {
	Amount       int64
	ItemID       *int64
	ItemQuantity int64
}

type Trade struct {
	ID                int64
	InitiatorID       uint64
	CounterpartyID    uint64
	InitiatorOffer    Offer
	CounterpartyOffer Offer
	Status            Status
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

type Trades interface {
	Insert(ctx context.Context, t Trade) (Trade, error)
	Get(ctx context.Context, id int64) (Trade, error)
	LockAndGet(tx *sql.Tx, id int64) (Trade, error)
	Resolve(tx *sql.Tx, id int64, status Status, resolvedAt time.Time) error
}
