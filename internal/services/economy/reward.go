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
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
)

// RewardClaim is the result of a successful daily claim.
type RewardClaim struct {
	Transaction ledger.Transaction
	ClaimDate   time.Time
	Amount      int64
}

// ClaimDailyReward credits the competitor at most once per calendar day.
//
// The day boundary comes from the engine's configured location, never from
// client-supplied time. The claim insert and the DAILY_REWARD credit commit
// as one unit: the primary key on (competitor_id, claim_date) rejects a
// second claim with ErrAlreadyClaimed, and a crash between insert and credit
// can never leave a claim without its credit.
func (s *Service) ClaimDailyReward(ctx context.Context, competitorID uint64) (RewardClaim, error) {
	now := s.cfg.Now().In(s.cfg.Location)
	claimDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	amount := s.cfg.DailyRewardAmount

	txn := ledger.Transaction{
		ID:        uuid.New().String(),
		ToAccount: &competitorID,
		Amount:    amount,
		Kind:      ledger.KindDailyReward,
		Reason:    "daily reward " + claimDate.Format("2006-01-02"),
		CreatedAt: now.UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.rewards.InsertClaim(tx, competitorID, claimDate, amount)
		if err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}

		err = s.accounts.Ensure(tx, competitorID)
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}

		err = s.ledger.Insert(tx, txn)
		if err != nil {
			return fmt.Errorf("insert ledger row: %w", err)
		}

		err = s.accounts.IncreaseBalance(tx, competitorID, amount)
		if err != nil {
			return fmt.Errorf("credit reward: %w", err)
		}

		return nil
	})

	metrics.DailyRewardClaimsTotal.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		return RewardClaim{}, fmt.Errorf("claim daily reward: %w", err)
	}

	metrics.LedgerAmountTotal.WithLabelValues(string(ledger.KindDailyReward)).Add(float64(amount))

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(competitorID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    competitorID,
		Action:   "claim_daily_reward",
		Entity:   "ledger_transaction",
		EntityID: txn.ID,
		Detail: map[string]any{
			"claim_date": claimDate.Format("2006-01-02"),
			"amount":     amount,
		},
	})

	return RewardClaim{
		Transaction: txn,
		ClaimDate:   claimDate,
		Amount:      amount,
	}, nil
}
