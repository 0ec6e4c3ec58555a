package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
)

var _ shop.Shops = (*shopsRepo)(nil)

type shopsRepo struct{ db *sql.DB }

func New(db *sql.DB) *shopsRepo {
	return &shopsRepo{db: db}
}

func (r *shopsRepo) CreateShop(ctx context.Context, name string) (shop.Shop, error) {
	var s shop.Shop

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shops (name)
		VALUES ($1)
		RETURNING id, name, created_at
	`, name).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		return shop.Shop{}, fmt.Errorf("create shop: %w", err)
	}

	return s, nil
}

func (r *shopsRepo) AddItem(ctx context.Context, shopID int64, name string, price int64, stock *int64, available bool) (shop.Item, error) {
	var it shop.Item

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shop_items (shop_id, name, price, stock, is_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, shop_id, name, price, stock, is_available
	`, shopID, name, price, stock, available).
		Scan(&it.ID, &it.ShopID, &it.Name, &it.Price, &it.Stock, &it.IsAvailable)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return shop.Item{}, shop.ErrShopNotFound
		}

		return shop.Item{}, fmt.Errorf("add item: %w", err)
	}

	return it, nil
}

func (r *shopsRepo) SetItemAvailability(tx *sql.Tx, itemID int64, available bool) error {
	res, err := tx.Exec(`
		UPDATE shop_items
		SET is_available = $2
		WHERE id = $1
	`, itemID, available)
	if err != nil {
		return fmt.Errorf("set item availability: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return shop.ErrItemNotFound
	}

	return nil
}

func (r *shopsRepo) GetItem(ctx context.Context, itemID int64) (shop.Item, error) {
	var it shop.Item

	err := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price, stock, is_available
		FROM shop_items
		WHERE id = $1
	`, itemID).Scan(&it.ID, &it.ShopID, &it.Name, &it.Price, &it.Stock, &it.IsAvailable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Item{}, shop.ErrItemNotFound
		}

		return shop.Item{}, fmt.Errorf("get item: %w", err)
	}

	return it, nil
}

func (r *shopsRepo) LockAndGetItem(tx *sql.Tx, itemID int64) (shop.Item, error) {
	var it shop.Item

	err := tx.QueryRow(`
		SELECT id, shop_id, name, price, stock, is_available
		FROM shop_items
		WHERE id = $1
		FOR UPDATE
	`, itemID).Scan(&it.ID, &it.ShopID, &it.Name, &it.Price, &it.Stock, &it.IsAvailable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Item{}, shop.ErrItemNotFound
		}

		return shop.Item{}, fmt.Errorf("lock/get item: %w", err)
	}

	return it, nil
}

func (r *shopsRepo) DecrementStock(tx *sql.Tx, itemID int64, quantity int64) error {
	res, err := tx.Exec(`
		UPDATE shop_items
		SET stock = stock - $2
		WHERE id = $1
		  AND stock IS NOT NULL
		  AND stock >= $2
	`, itemID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return shop.ErrItemOutOfStock
	}

	return nil
}

func (r *shopsRepo) InsertGrant(tx *sql.Tx, competitorID uint64, itemID int64, quantity int64) (shop.Grant, error) {
	var g shop.Grant

	err := tx.QueryRow(`
		INSERT INTO inventory_grants (competitor_id, item_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id, competitor_id, item_id, quantity, used_quantity, created_at
	`, competitorID, itemID, quantity).
		Scan(&g.ID, &g.CompetitorID, &g.ItemID, &g.Quantity, &g.UsedQuantity, &g.CreatedAt)
	if err != nil {
		return shop.Grant{}, fmt.Errorf("insert grant: %w", err)
	}

	return g, nil
}

func (r *shopsRepo) GetGrant(ctx context.Context, grantID int64) (shop.Grant, error) {
	var g shop.Grant

	err := r.db.QueryRowContext(ctx, `
		SELECT id, competitor_id, item_id, quantity, used_quantity, created_at
		FROM inventory_grants
		WHERE id = $1
	`, grantID).Scan(&g.ID, &g.CompetitorID, &g.ItemID, &g.Quantity, &g.UsedQuantity, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Grant{}, shop.ErrGrantNotFound
		}

		return shop.Grant{}, fmt.Errorf("get grant: %w", err)
	}

	return g, nil
}

func (r *shopsRepo) LockAndGetGrant(tx *sql.Tx, grantID int64) (shop.Grant, error) {
	var g shop.Grant

	err := tx.QueryRow(`
		SELECT id, competitor_id, item_id, quantity, used_quantity, created_at
		FROM inventory_grants
		WHERE id = $1
		FOR UPDATE
	`, grantID).Scan(&g.ID, &g.CompetitorID, &g.ItemID, &g.Quantity, &g.UsedQuantity, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Grant{}, shop.ErrGrantNotFound
		}

		return shop.Grant{}, fmt.Errorf("lock/get grant: %w", err)
	}

	return g, nil
}

func (r *shopsRepo) ConsumeGrant(tx *sql.Tx, grantID int64, quantity int64) error {
	res, err := tx.Exec(`
		UPDATE inventory_grants
		SET used_quantity = used_quantity + $2
		WHERE id = $1
		  AND used_quantity + $2 <= quantity
	`, grantID, quantity)
	if err != nil {
		return fmt.Errorf("consume grant: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return shop.ErrGrantExhausted
	}

	return nil
}

// ConsumeItems walks the competitor's grants for the item oldest-first under
// row locks and consumes until quantity is satisfied. If the grants cannot
// cover the quantity nothing is consumed (the surrounding transaction rolls
// back on the returned error).
func (r *shopsRepo) ConsumeItems(tx *sql.Tx, competitorID uint64, itemID int64, quantity int64) error {
	rows, err := tx.Query(`
		SELECT id, quantity - used_quantity
		FROM inventory_grants
		WHERE competitor_id = $1
		  AND item_id = $2
		  AND used_quantity < quantity
		ORDER BY created_at, id
		FOR UPDATE
	`, competitorID, itemID)
	if err != nil {
		return fmt.Errorf("lock grants: %w", err)
	}

	type slice struct {
		grantID   int64
		available int64
	}

	var slices []slice
	for rows.Next() {
		var s slice
		if err = rows.Scan(&s.grantID, &s.available); err != nil {
			rows.Close()
			return fmt.Errorf("scan grant: %w", err)
		}
		slices = append(slices, s)
	}
	rows.Close()

	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterate grants: %w", err)
	}

	remaining := quantity
	for _, s := range slices {
		if remaining == 0 {
			break
		}

		take := s.available
		if take > remaining {
			take = remaining
		}

		err = r.ConsumeGrant(tx, s.grantID, take)
		if err != nil {
			return fmt.Errorf("consume grant %d: %w", s.grantID, err)
		}

		remaining -= take
	}

	if remaining > 0 {
		return shop.ErrItemOutOfStock
	}

	return nil
}

func (r *shopsRepo) ListGrants(ctx context.Context, competitorID uint64) ([]shop.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, competitor_id, item_id, quantity, used_quantity, created_at
		FROM inventory_grants
		WHERE competitor_id = $1
		ORDER BY created_at DESC, id DESC
	`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []shop.Grant
	for rows.Next() {
		var g shop.Grant
		err = rows.Scan(&g.ID, &g.CompetitorID, &g.ItemID, &g.Quantity, &g.UsedQuantity, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}
