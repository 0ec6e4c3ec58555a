package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgutils"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
)

var _ ledger.Ledger = (*ledgerRepo)(nil)

type ledgerRepo struct{ db *sql.DB }

func New(db *sql.DB) *ledgerRepo {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Insert(tx *sql.Tx, txn ledger.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_transactions (id, from_account, to_account, amount, kind, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, txn.ID, txn.FromAccount, txn.ToAccount, txn.Amount, string(txn.Kind), txn.Reason, txn.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return ledger.ErrDuplicateTransaction
		}

		return fmt.Errorf("insert ledger transaction: %w", err)
	}

	return nil
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, competitorID uint64, limit, offset int) ([]ledger.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, from_account, to_account, amount, kind, reason, created_at
		FROM ledger_transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, competitorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var (
			txn  ledger.Transaction
			kind string
		)
		err = rows.Scan(&txn.ID, &txn.FromAccount, &txn.ToAccount, &txn.Amount, &kind, &txn.Reason, &txn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger transaction: %w", err)
		}
		txn.Kind = ledger.Kind(kind)
		txns = append(txns, txn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger transactions: %w", err)
	}

	return txns, nil
}

func (r *ledgerRepo) OutboundTotal(tx *sql.Tx, competitorID uint64, kind ledger.Kind, since time.Time) (int64, error) {
	var total int64

	err := tx.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_transactions
		WHERE from_account = $1
		  AND kind = $2
		  AND created_at > $3
	`, competitorID, string(kind), since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("outbound total: %w", err)
	}

	return total, nil
}
