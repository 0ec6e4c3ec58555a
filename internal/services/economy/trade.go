package economy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/metrics"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/trades"
)

// CreateTrade records a PENDING trade. Escrow is logical: nothing moves
// until the counterparty accepts and settlement succeeds, which keeps
// rollback trivial and means solvency is re-checked at acceptance time.
func (s *Service) CreateTrade(ctx context.Context, initiatorID, counterpartyID uint64, initiatorOffer, counterpartyOffer trades.Offer) (trades.Trade, error) {
	if initiatorID == counterpartyID {
		return trades.Trade{}, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidTransfer)
	}

	err := validateOffer(initiatorOffer)
	if err != nil {
		return trades.Trade{}, fmt.Errorf("initiator offer: %w", err)
	}

	err = validateOffer(counterpartyOffer)
	if err != nil {
		return trades.Trade{}, fmt.Errorf("counterparty offer: %w", err)
	}

	if offerEmpty(initiatorOffer) && offerEmpty(counterpartyOffer) {
		return trades.Trade{}, fmt.Errorf("%w: both offers are empty", ErrInvalidTransfer)
	}

	// Offered items must at least exist; ownership is re-validated at
	// settlement since inventories can change before the response.
	for _, offer := range []trades.Offer{initiatorOffer, counterpartyOffer} {
		if offer.ItemID == nil {
			continue
		}

		_, err = s.shops.GetItem(ctx, *offer.ItemID)
		if err != nil {
			return trades.Trade{}, fmt.Errorf("offered item: %w", err)
		}
	}

	created, err := s.trades.Insert(ctx, trades.Trade{
		InitiatorID:       initiatorID,
		CounterpartyID:    counterpartyID,
		InitiatorOffer:    initiatorOffer,
		CounterpartyOffer: counterpartyOffer,
	})
	if err != nil {
		return trades.Trade{}, fmt.Errorf("create trade: %w", err)
	}

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    initiatorID,
		Action:   "create_trade",
		Entity:   "trade",
		EntityID: idKey(created.ID),
		Detail: map[string]any{
			"counterparty":        counterpartyID,
			"initiator_amount":    initiatorOffer.Amount,
			"counterparty_amount": counterpartyOffer.Amount,
		},
	})

	return created, nil
}

// RespondToTrade resolves a PENDING trade. Only the counterparty may respond.
//
// A rejection transitions to REJECTED with no balance change. An acceptance
// re-validates both parties' solvency for their offered terms inside the same
// atomic unit that performs the settlement and the transition to ACCEPTED.
// If re-validation fails, the operation fails with ErrInvalidTransfer and the
// trade stays PENDING: a failed settlement is a distinct outcome from a
// deliberate rejection, and the caller may retry or cancel.
func (s *Service) RespondToTrade(ctx context.Context, tradeID int64, responderID uint64, accept bool) (trades.Trade, error) {
	var resolved trades.Trade

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.trades.LockAndGet(tx, tradeID)
		if err != nil {
			return fmt.Errorf("lock trade: %w", err)
		}

		if t.CounterpartyID != responderID {
			return ErrNotAuthorized
		}

		if t.Status != trades.StatusPending {
			return fmt.Errorf("%w: status %s", ErrInvalidState, t.Status)
		}

		now := s.cfg.Now().UTC()

		if !accept {
			err = s.trades.Resolve(tx, tradeID, trades.StatusRejected, now)
			if err != nil {
				return fmt.Errorf("mark rejected: %w", err)
			}

			t.Status = trades.StatusRejected
			t.ResolvedAt = &now
			resolved = t

			return nil
		}

		err = s.settle(tx, t, now)
		if err != nil {
			return err
		}

		err = s.trades.Resolve(tx, tradeID, trades.StatusAccepted, now)
		if err != nil {
			return fmt.Errorf("mark accepted: %w", err)
		}

		t.Status = trades.StatusAccepted
		t.ResolvedAt = &now
		resolved = t

		return nil
	})
	if err != nil {
		return trades.Trade{}, fmt.Errorf("respond to trade: %w", err)
	}

	metrics.TradesResolvedTotal.WithLabelValues(string(resolved.Status)).Inc()

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceTrade, idKey(tradeID))
	if resolved.Status == trades.StatusAccepted {
		// Volume counters move only once the settlement has committed.
		for _, offer := range []trades.Offer{resolved.InitiatorOffer, resolved.CounterpartyOffer} {
			if offer.Amount > 0 {
				metrics.LedgerAmountTotal.WithLabelValues(string(ledger.KindTradeSettlement)).Add(float64(offer.Amount))
			}
		}

		s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(resolved.InitiatorID))
		s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(resolved.CounterpartyID))
	}

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    responderID,
		Action:   "respond_to_trade",
		Entity:   "trade",
		EntityID: idKey(tradeID),
		Detail: map[string]any{
			"accept": accept,
			"status": string(resolved.Status),
		},
	})

	return resolved, nil
}

// CancelTrade withdraws a PENDING trade. Only the initiator may cancel.
func (s *Service) CancelTrade(ctx context.Context, tradeID int64, initiatorID uint64) (trades.Trade, error) {
	var resolved trades.Trade

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.trades.LockAndGet(tx, tradeID)
		if err != nil {
			return fmt.Errorf("lock trade: %w", err)
		}

		if t.InitiatorID != initiatorID {
			return ErrNotAuthorized
		}

		if t.Status != trades.StatusPending {
			return fmt.Errorf("%w: status %s", ErrInvalidState, t.Status)
		}

		now := s.cfg.Now().UTC()

		err = s.trades.Resolve(tx, tradeID, trades.StatusCancelled, now)
		if err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}

		t.Status = trades.StatusCancelled
		t.ResolvedAt = &now
		resolved = t

		return nil
	})
	if err != nil {
		return trades.Trade{}, fmt.Errorf("cancel trade: %w", err)
	}

	metrics.TradesResolvedTotal.WithLabelValues(string(trades.StatusCancelled)).Inc()

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceTrade, idKey(tradeID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    initiatorID,
		Action:   "cancel_trade",
		Entity:   "trade",
		EntityID: idKey(tradeID),
	})

	return resolved, nil
}

// settle executes both sides of an accepted trade: locks both accounts in
// id order, re-validates solvency for the offered amounts against the locked
// balances, then moves currency (mirrored TRADE_SETTLEMENT rows) and items.
// Any re-validation failure surfaces as ErrInvalidTransfer and rolls the
// whole unit back, leaving the trade PENDING.
func (s *Service) settle(tx *sql.Tx, t trades.Trade, now time.Time) error {
	err := s.accounts.Ensure(tx, t.InitiatorID)
	if err != nil {
		return fmt.Errorf("ensure initiator: %w", err)
	}

	err = s.accounts.Ensure(tx, t.CounterpartyID)
	if err != nil {
		return fmt.Errorf("ensure counterparty: %w", err)
	}

	initiatorBalance, counterpartyBalance, err := s.accounts.LockPair(tx, t.InitiatorID, t.CounterpartyID)
	if err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}

	if initiatorBalance < t.InitiatorOffer.Amount {
		return fmt.Errorf("%w: initiator cannot cover offered amount", ErrInvalidTransfer)
	}

	if counterpartyBalance < t.CounterpartyOffer.Amount {
		return fmt.Errorf("%w: counterparty cannot cover offered amount", ErrInvalidTransfer)
	}

	err = s.settleSide(tx, t.ID, t.InitiatorID, t.CounterpartyID, t.InitiatorOffer, now)
	if err != nil {
		return fmt.Errorf("settle initiator side: %w", err)
	}

	err = s.settleSide(tx, t.ID, t.CounterpartyID, t.InitiatorID, t.CounterpartyOffer, now)
	if err != nil {
		return fmt.Errorf("settle counterparty side: %w", err)
	}

	return nil
}

// settleSide moves one party's offered currency and items to the other.
func (s *Service) settleSide(tx *sql.Tx, tradeID int64, fromID, toID uint64, offer trades.Offer, now time.Time) error {
	if offer.Amount > 0 {
		txn := ledger.Transaction{
			ID:          uuid.New().String(),
			FromAccount: &fromID,
			ToAccount:   &toID,
			Amount:      offer.Amount,
			Kind:        ledger.KindTradeSettlement,
			Reason:      fmt.Sprintf("trade %d settlement", tradeID),
			CreatedAt:   now,
		}

		err := s.ledger.Insert(tx, txn)
		if err != nil {
			return fmt.Errorf("insert ledger row: %w", err)
		}

		err = s.accounts.DecreaseBalance(tx, fromID, offer.Amount)
		if err != nil {
			if errors.Is(err, accounts.ErrInsufficientBalance) {
				return fmt.Errorf("%w: balance changed during settlement", ErrInvalidTransfer)
			}

			return fmt.Errorf("debit: %w", err)
		}

		err = s.accounts.IncreaseBalance(tx, toID, offer.Amount)
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}
	}

	if offer.ItemID != nil {
		err := s.shops.ConsumeItems(tx, fromID, *offer.ItemID, offer.ItemQuantity)
		if err != nil {
			if errors.Is(err, shop.ErrItemOutOfStock) {
				return fmt.Errorf("%w: offered items no longer owned", ErrInvalidTransfer)
			}

			return fmt.Errorf("consume offered items: %w", err)
		}

		_, err = s.shops.InsertGrant(tx, toID, *offer.ItemID, offer.ItemQuantity)
		if err != nil {
			return fmt.Errorf("grant offered items: %w", err)
		}
	}

	return nil
}

func validateOffer(offer trades.Offer) error {
	if offer.Amount < 0 {
		return fmt.Errorf("%w: offered amount must not be negative", ErrInvalidTransfer)
	}

	if offer.ItemID != nil && offer.ItemQuantity <= 0 {
		return fmt.Errorf("%w: offered item quantity must be positive", ErrInvalidTransfer)
	}

	if offer.ItemID == nil && offer.ItemQuantity != 0 {
		return fmt.Errorf("%w: item quantity without an item", ErrInvalidTransfer)
	}

	return nil
}

func offerEmpty(offer trades.Offer) bool {
	return offer.Amount == 0 && offer.ItemID == nil
}
