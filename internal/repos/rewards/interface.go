// Package rewards defines persistence for daily reward claims. The primary
// key on (competitor_id, claim_date) is the idempotency guarantee: the insert
// either succeeds exactly once per day or reports ErrAlreadyClaimed.
package rewards

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrAlreadyClaimed = errors.New("daily reward already claimed")

type Claim struct {
	CompetitorID uint64
	ClaimDate    time.Time
	RewardAmount int64
	CreatedAt    time.Time
}

type Rewards interface {
	// InsertClaim records the claim inside the caller's transaction so that
	// the claim row and the reward credit commit together.
	InsertClaim(tx *sql.Tx, competitorID uint64, claimDate time.Time, amount int64) error
	GetClaim(ctx context.Context, competitorID uint64, claimDate time.Time) (Claim, error)
}
