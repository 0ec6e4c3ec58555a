package rewards

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgtestutil"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/rewards"
)

func insertClaim(t *testing.T, db *sql.DB, repo *rewardsRepo, id uint64, day time.Time, amount int64) error {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = repo.InsertClaim(tx, id, day, amount)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func TestRewards_InsertClaim_OncePerDay(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if err := insertClaim(t, db, repo, 1, day, 100); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := insertClaim(t, db, repo, 1, day, 100)
	if !errors.Is(err, rewards.ErrAlreadyClaimed) {
		t.Fatalf("want ErrAlreadyClaimed, got: %v", err)
	}

	// A different day or a different competitor is fine.
	if err := insertClaim(t, db, repo, 1, day.AddDate(0, 0, 1), 100); err != nil {
		t.Fatalf("next day claim: %v", err)
	}
	if err := insertClaim(t, db, repo, 2, day, 100); err != nil {
		t.Fatalf("other competitor claim: %v", err)
	}
}

func TestRewards_GetClaim(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if err := insertClaim(t, db, repo, 1, day, 100); err != nil {
		t.Fatalf("insert: %v", err)
	}

	claim, err := repo.GetClaim(context.Background(), 1, day)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if claim.RewardAmount != 100 {
		t.Fatalf("amount: want 100, got %d", claim.RewardAmount)
	}
	if !claim.ClaimDate.Equal(day) {
		t.Fatalf("claim date: want %v, got %v", day, claim.ClaimDate)
	}

	_, err = repo.GetClaim(context.Background(), 1, day.AddDate(0, 0, 5))
	if err == nil {
		t.Fatal("expected error for missing claim")
	}
}
