// Package shop defines persistence for shops, their items, and the inventory
// grants competitors receive when they buy.
package shop

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrShopNotFound   = errors.New("shop not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrItemOutOfStock = errors.New("item out of stock")
	ErrGrantNotFound  = errors.New("inventory grant not found")
	ErrGrantExhausted = errors.New("inventory grant exhausted")
)

type Shop struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Item is a purchasable shop entry. Stock nil means unlimited.
type Item struct {
	ID          int64
	ShopID      int64
	Name        string
	Price       int64
	Stock       *int64
	IsAvailable bool
}

// Grant records inventory a competitor owns. UsedQuantity never exceeds
// Quantity (enforced both here and by a DB check constraint).
type Grant struct {
	ID           int64
	CompetitorID uint64
	ItemID       int64
	Quantity     int64
	UsedQuantity int64
	CreatedAt    time.Time
}

type Shops interface {
	CreateShop(ctx context.Context, name string) (Shop, error)
	AddItem(ctx context.Context, shopID int64, name string, price int64, stock *int64, available bool) (Item, error)
	SetItemAvailability(tx *sql.Tx, itemID int64, available bool) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	LockAndGetItem(tx *sql.Tx, itemID int64) (Item, error)
	// DecrementStock conditionally reduces finite stock; zero rows affected
	// means a concurrent purchase got there first.
	DecrementStock(tx *sql.Tx, itemID int64, quantity int64) error
	InsertGrant(tx *sql.Tx, competitorID uint64, itemID int64, quantity int64) (Grant, error)
	GetGrant(ctx context.Context, grantID int64) (Grant, error)
	LockAndGetGrant(tx *sql.Tx, grantID int64) (Grant, error)
	// ConsumeGrant bumps used_quantity; zero rows affected means the grant
	// does not have that much unused quantity left.
	ConsumeGrant(tx *sql.Tx, grantID int64, quantity int64) error
	// ConsumeItems consumes quantity units of an item across the
	// competitor's grants, oldest first, locking the rows it touches.
	ConsumeItems(tx *sql.Tx, competitorID uint64, itemID int64, quantity int64) error
	ListGrants(ctx context.Context, competitorID uint64) ([]Grant, error)
}
