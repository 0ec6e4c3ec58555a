package economy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/metrics"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
)

const transferWindow = 24 * time.Hour

// Transfer moves amount from one competitor to another in a single atomic
// unit of work:
//
// 1) Lock both account rows in ascending id order.
// 2) Fail ErrInsufficientBalance if the sender cannot cover the amount.
// 3) Fail ErrTransferLimitExceeded if the rolling-24h outbound total plus
//    this amount exceeds the configured cap.
// 4) Insert one TRANSFER ledger row and update both materialized balances.
//
// On commit the balance cache entries for both accounts are invalidated.
func (s *Service) Transfer(ctx context.Context, fromID, toID uint64, amount int64, reason string) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("%w: amount must be positive", ErrInvalidTransfer)
	}
	if fromID == toID {
		return ledger.Transaction{}, fmt.Errorf("%w: sender and receiver must differ", ErrInvalidTransfer)
	}

	now := s.cfg.Now().UTC()
	txn := ledger.Transaction{
		ID:          uuid.New().String(),
		FromAccount: &fromID,
		ToAccount:   &toID,
		Amount:      amount,
		Kind:        ledger.KindTransfer,
		Reason:      reason,
		CreatedAt:   now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.accounts.Ensure(tx, fromID)
		if err != nil {
			return fmt.Errorf("ensure sender: %w", err)
		}

		err = s.accounts.Ensure(tx, toID)
		if err != nil {
			return fmt.Errorf("ensure receiver: %w", err)
		}

		senderBalance, _, err := s.accounts.LockPair(tx, fromID, toID)
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}

		if senderBalance < amount {
			return accounts.ErrInsufficientBalance
		}

		outbound, err := s.ledger.OutboundTotal(tx, fromID, ledger.KindTransfer, now.Add(-transferWindow))
		if err != nil {
			return fmt.Errorf("outbound total: %w", err)
		}

		if outbound+amount > s.cfg.DailyTransferLimit {
			return fmt.Errorf("%w: %d sent in the last 24h, cap %d",
				ErrTransferLimitExceeded, outbound, s.cfg.DailyTransferLimit)
		}

		err = s.ledger.Insert(tx, txn)
		if err != nil {
			return fmt.Errorf("insert ledger row: %w", err)
		}

		err = s.accounts.DecreaseBalance(tx, fromID, amount)
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}

		err = s.accounts.IncreaseBalance(tx, toID, amount)
		if err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}

		return nil
	})

	metrics.TransfersTotal.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transfer: %w", err)
	}

	metrics.LedgerAmountTotal.WithLabelValues(string(ledger.KindTransfer)).Add(float64(amount))

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(fromID))
	s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(toID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    fromID,
		Action:   "transfer",
		Entity:   "ledger_transaction",
		EntityID: txn.ID,
		Detail: map[string]any{
			"to":     toID,
			"amount": amount,
			"reason": reason,
		},
	})

	return txn, nil
}
