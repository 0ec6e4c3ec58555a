package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

// Ensure creates the balance row at zero if the competitor has no ledger
// presence yet.
func (r *accountsRepo) Ensure(tx *sql.Tx, competitorID uint64) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (competitor_id)
		VALUES ($1)
		ON CONFLICT (competitor_id) DO NOTHING
	`, competitorID)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	return nil
}

func (r *accountsRepo) GetBalance(ctx context.Context, competitorID uint64) (int64, error) {
	var balance int64

	err := r.db.QueryRowContext(ctx, `
		SELECT balance
		FROM accounts
		WHERE competitor_id = $1
	`, competitorID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func (r *accountsRepo) LockAndGetBalance(tx *sql.Tx, competitorID uint64) (int64, error) {
	var balance int64

	err := tx.QueryRow(`
		SELECT balance
		FROM accounts
		WHERE competitor_id = $1
		FOR UPDATE
	`, competitorID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("lock/get balance: %w", err)
	}

	return balance, nil
}

// LockPair acquires row locks in ascending competitor id order, then returns
// the balances in the caller's (a, b) order.
func (r *accountsRepo) LockPair(tx *sql.Tx, a, b uint64) (int64, int64, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	firstBal, err := r.LockAndGetBalance(tx, first)
	if err != nil {
		return 0, 0, fmt.Errorf("lock account %d: %w", first, err)
	}

	secondBal, err := r.LockAndGetBalance(tx, second)
	if err != nil {
		return 0, 0, fmt.Errorf("lock account %d: %w", second, err)
	}

	if first == a {
		return firstBal, secondBal, nil
	}

	return secondBal, firstBal, nil
}

func (r *accountsRepo) IncreaseBalance(tx *sql.Tx, competitorID uint64, amount int64) error {
	_, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE competitor_id = $1
	`, competitorID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	return nil
}

func (r *accountsRepo) DecreaseBalance(tx *sql.Tx, competitorID uint64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE competitor_id = $1
		  AND balance >= $2
	`, competitorID, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrInsufficientBalance
	}

	return nil
}
