package accounts

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Accounts persists the materialized per-competitor balance. The balance row
// is created implicitly on first touch (Ensure) and is only ever mutated
// inside the engine's transactional unit of work, so every mutation takes a
// *sql.Tx.
type Accounts interface {
	Ensure(tx *sql.Tx, competitorID uint64) error
	GetBalance(ctx context.Context, competitorID uint64) (int64, error)
	LockAndGetBalance(tx *sql.Tx, competitorID uint64) (int64, error)
	// LockPair locks both rows in ascending id order to avoid deadlock when
	// two operations touch the same pair concurrently.
	LockPair(tx *sql.Tx, a, b uint64) (balanceA, balanceB int64, err error)
	IncreaseBalance(tx *sql.Tx, competitorID uint64, amount int64) error
	DecreaseBalance(tx *sql.Tx, competitorID uint64, amount int64) error
}
