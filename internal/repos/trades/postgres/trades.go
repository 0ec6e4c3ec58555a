package trades

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/trades"
)

var _ trades.Trades = (*tradesRepo)(nil)

type tradesRepo struct{ db *sql.DB }

func New(db *sql.DB) *tradesRepo {
	return &tradesRepo{db: db}
}

const tradeColumns = `
	id, initiator_id, counterparty_id,
	initiator_amount, initiator_item_id, initiator_item_qty,
	counterparty_amount, counterparty_item_id, counterparty_item_qty,
	status, created_at, resolved_at
`

func scanTrade(row *sql.Row) (trades.Trade, error) {
	var (
		t      trades.Trade
		status string
	)

	err := row.Scan(
		&t.ID, &t.InitiatorID, &t.CounterpartyID,
		&t.InitiatorOffer.Amount, &t.InitiatorOffer.ItemID, &t.InitiatorOffer.ItemQuantity,
		&t.CounterpartyOffer.Amount, &t.CounterpartyOffer.ItemID, &t.CounterpartyOffer.ItemQuantity,
		&status, &t.CreatedAt, &t.ResolvedAt,
	)
	if err != nil {
		return trades.Trade{}, err
	}

	t.Status = trades.Status(status)

	return t, nil
}

func (r *tradesRepo) Insert(ctx context.Context, t trades.Trade) (trades.Trade, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO trades (
			initiator_id, counterparty_id,
			initiator_amount, initiator_item_id, initiator_item_qty,
			counterparty_amount, counterparty_item_id, counterparty_item_qty,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tradeColumns,
		t.InitiatorID, t.CounterpartyID,
		t.InitiatorOffer.Amount, t.InitiatorOffer.ItemID, t.InitiatorOffer.ItemQuantity,
		t.CounterpartyOffer.Amount, t.CounterpartyOffer.ItemID, t.CounterpartyOffer.ItemQuantity,
		string(trades.StatusPending),
	)

	inserted, err := scanTrade(row)
	if err != nil {
		return trades.Trade{}, fmt.Errorf("insert trade: %w", err)
	}

	return inserted, nil
}

func (r *tradesRepo) Get(ctx context.Context, id int64) (trades.Trade, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE id = $1
	`, id)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trades.Trade{}, trades.ErrTradeNotFound
		}

		return trades.Trade{}, fmt.Errorf("get trade: %w", err)
	}

	return t, nil
}

func (r *tradesRepo) LockAndGet(tx *sql.Tx, id int64) (trades.Trade, error) {
	row := tx.QueryRow(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE id = $1
		FOR UPDATE
	`, id)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trades.Trade{}, trades.ErrTradeNotFound
		}

		return trades.Trade{}, fmt.Errorf("lock/get trade: %w", err)
	}

	return t, nil
}

func (r *tradesRepo) Resolve(tx *sql.Tx, id int64, status trades.Status, resolvedAt time.Time) error {
	res, err := tx.Exec(`
		UPDATE trades
		SET status = $2, resolved_at = $3
		WHERE id = $1
		  AND status = $4
	`, id, string(status), resolvedAt, string(trades.StatusPending))
	if err != nil {
		return fmt.Errorf("resolve trade: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return trades.ErrTradeNotFound
	}

	return nil
}
