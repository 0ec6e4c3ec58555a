package economy

import (
	"context"
	"fmt"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
)

// CurrencyUnit names the minor unit all amounts are denominated in.
const CurrencyUnit = "coins"

type Balance struct {
	CompetitorID uint64
	Amount       int64
	CurrencyUnit string
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// GetBalance returns the competitor's current balance. Balances are never
// negative. A competitor with no ledger presence yields ErrAccountNotFound.
func (s *Service) GetBalance(ctx context.Context, competitorID uint64) (Balance, error) {
	amount, err := s.accounts.GetBalance(ctx, competitorID)
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: %w", err)
	}

	return Balance{
		CompetitorID: competitorID,
		Amount:       amount,
		CurrencyUnit: CurrencyUnit,
	}, nil
}

// GetHistory returns the competitor's ledger transactions, newest first.
// Read-only; no side effects.
func (s *Service) GetHistory(ctx context.Context, competitorID uint64, limit, offset int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	// Surface unknown competitors the same way GetBalance does.
	_, err := s.accounts.GetBalance(ctx, competitorID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	txns, err := s.ledger.ListByAccount(ctx, competitorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return txns, nil
}
