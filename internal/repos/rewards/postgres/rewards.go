package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgutils"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/rewards"
)

var _ rewards.Rewards = (*rewardsRepo)(nil)

type rewardsRepo struct{ db *sql.DB }

func New(db *sql.DB) *rewardsRepo {
	return &rewardsRepo{db: db}
}

func (r *rewardsRepo) InsertClaim(tx *sql.Tx, competitorID uint64, claimDate time.Time, amount int64) error {
	_, err := tx.Exec(`
		INSERT INTO daily_reward_claims (competitor_id, claim_date, reward_amount)
		VALUES ($1, $2, $3)
	`, competitorID, claimDate, amount)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return rewards.ErrAlreadyClaimed
		}

		return fmt.Errorf("insert claim: %w", err)
	}

	return nil
}

func (r *rewardsRepo) GetClaim(ctx context.Context, competitorID uint64, claimDate time.Time) (rewards.Claim, error) {
	var c rewards.Claim

	err := r.db.QueryRowContext(ctx, `
		SELECT competitor_id, claim_date, reward_amount, created_at
		FROM daily_reward_claims
		WHERE competitor_id = $1
		  AND claim_date = $2
	`, competitorID, claimDate).Scan(&c.CompetitorID, &c.ClaimDate, &c.RewardAmount, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rewards.Claim{}, fmt.Errorf("claim not found: %w", err)
		}

		return rewards.Claim{}, fmt.Errorf("get claim: %w", err)
	}

	return c, nil
}
