package economy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/metrics"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
)

// ShopSpec describes a shop to create. Permission checks happen upstream.
type ShopSpec struct {
	Name string
}

// ItemSpec describes an item to add to a shop. Stock nil means unlimited.
type ItemSpec struct {
	Name      string
	Price     int64
	Stock     *int64
	Available bool
}

// PurchaseReceipt carries everything the audit collaborator needs: the
// ledger debit, the item as it was before the purchase, the stock before and
// after, and the created inventory grant.
type PurchaseReceipt struct {
	Transaction ledger.Transaction
	Item        shop.Item
	OldStock    *int64
	NewStock    *int64
	Grant       shop.Grant
}

func (s *Service) CreateShop(ctx context.Context, spec ShopSpec) (shop.Shop, error) {
	if spec.Name == "" {
		return shop.Shop{}, fmt.Errorf("shop name required")
	}

	created, err := s.shops.CreateShop(ctx, spec.Name)
	if err != nil {
		return shop.Shop{}, fmt.Errorf("create shop: %w", err)
	}

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Action:   "create_shop",
		Entity:   "shop",
		EntityID: idKey(created.ID),
		Detail:   map[string]any{"name": created.Name},
	})

	return created, nil
}

func (s *Service) AddItem(ctx context.Context, shopID int64, spec ItemSpec) (shop.Item, error) {
	if spec.Name == "" {
		return shop.Item{}, fmt.Errorf("item name required")
	}
	if spec.Price <= 0 {
		return shop.Item{}, fmt.Errorf("item price must be positive")
	}
	if spec.Stock != nil && *spec.Stock < 0 {
		return shop.Item{}, fmt.Errorf("item stock must not be negative")
	}

	item, err := s.shops.AddItem(ctx, shopID, spec.Name, spec.Price, spec.Stock, spec.Available)
	if err != nil {
		return shop.Item{}, fmt.Errorf("add item: %w", err)
	}

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceShop, idKey(shopID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Action:   "add_item",
		Entity:   "shop_item",
		EntityID: idKey(item.ID),
		Detail: map[string]any{
			"shop_id": shopID,
			"price":   spec.Price,
		},
	})

	return item, nil
}

// SetItemAvailability toggles is_available under the item's row lock so the
// audited prior state is the value the update actually replaced.
func (s *Service) SetItemAvailability(ctx context.Context, itemID int64, available bool) error {
	var item shop.Item

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error

		item, err = s.shops.LockAndGetItem(tx, itemID)
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}

		return s.shops.SetItemAvailability(tx, itemID, available)
	})
	if err != nil {
		return fmt.Errorf("set item availability: %w", err)
	}

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceShop, idKey(item.ShopID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Action:   "set_item_availability",
		Entity:   "shop_item",
		EntityID: idKey(itemID),
		Detail: map[string]any{
			"before": item.IsAvailable,
			"after":  available,
		},
	})

	return nil
}

// Purchase debits the buyer, decrements finite stock, and records the
// inventory grant as one atomic unit of work against freshly read state.
// The debit is a pure sink: PURCHASE ledger rows credit no account.
func (s *Service) Purchase(ctx context.Context, itemID int64, buyerID uint64, quantity int64) (PurchaseReceipt, error) {
	if quantity <= 0 {
		return PurchaseReceipt{}, fmt.Errorf("quantity must be positive")
	}

	now := s.cfg.Now().UTC()

	var receipt PurchaseReceipt

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := s.shops.LockAndGetItem(tx, itemID)
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}

		if !item.IsAvailable {
			return ErrItemNotAvailable
		}

		if item.Stock != nil && *item.Stock < quantity {
			return shop.ErrItemOutOfStock
		}

		// price and quantity are both positive; a wrapped product would
		// pass the solvency check with a tiny total.
		total := item.Price * quantity
		if total/quantity != item.Price {
			return fmt.Errorf("%w: price times quantity overflows", ErrInvalidTransfer)
		}

		err = s.accounts.Ensure(tx, buyerID)
		if err != nil {
			return fmt.Errorf("ensure buyer: %w", err)
		}

		balance, err := s.accounts.LockAndGetBalance(tx, buyerID)
		if err != nil {
			return fmt.Errorf("lock buyer: %w", err)
		}

		if balance < total {
			return accounts.ErrInsufficientBalance
		}

		txn := ledger.Transaction{
			ID:          uuid.New().String(),
			FromAccount: &buyerID,
			Amount:      total,
			Kind:        ledger.KindPurchase,
			Reason:      fmt.Sprintf("purchase item %d x%d", itemID, quantity),
			CreatedAt:   now,
		}

		err = s.ledger.Insert(tx, txn)
		if err != nil {
			return fmt.Errorf("insert ledger row: %w", err)
		}

		err = s.accounts.DecreaseBalance(tx, buyerID, total)
		if err != nil {
			return fmt.Errorf("debit buyer: %w", err)
		}

		newStock := item.Stock
		if item.Stock != nil {
			err = s.shops.DecrementStock(tx, itemID, quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}

			remaining := *item.Stock - quantity
			newStock = &remaining
		}

		grant, err := s.shops.InsertGrant(tx, buyerID, itemID, quantity)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}

		receipt = PurchaseReceipt{
			Transaction: txn,
			Item:        item,
			OldStock:    item.Stock,
			NewStock:    newStock,
			Grant:       grant,
		}

		return nil
	})

	metrics.PurchasesTotal.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		return PurchaseReceipt{}, fmt.Errorf("purchase: %w", err)
	}

	metrics.LedgerAmountTotal.WithLabelValues(string(ledger.KindPurchase)).Add(float64(receipt.Transaction.Amount))

	s.cfg.Invalidator.Clear(ctx, cache.NamespaceBalance, accountKey(buyerID))
	s.cfg.Invalidator.Clear(ctx, cache.NamespaceShop, idKey(receipt.Item.ShopID))

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    buyerID,
		Action:   "purchase",
		Entity:   "ledger_transaction",
		EntityID: receipt.Transaction.ID,
		Detail: map[string]any{
			"item_id":   itemID,
			"quantity":  quantity,
			"total":     receipt.Transaction.Amount,
			"old_stock": stockValue(receipt.OldStock),
			"new_stock": stockValue(receipt.NewStock),
			"grant_id":  receipt.Grant.ID,
		},
	})

	return receipt, nil
}

// UseItem consumes quantity units from one of the competitor's inventory
// grants. used_quantity can never exceed quantity; the conditional update and
// a DB check constraint both enforce it.
func (s *Service) UseItem(ctx context.Context, competitorID uint64, grantID int64, quantity int64) (shop.Grant, error) {
	if quantity <= 0 {
		return shop.Grant{}, fmt.Errorf("quantity must be positive")
	}

	var updated shop.Grant

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		grant, err := s.shops.LockAndGetGrant(tx, grantID)
		if err != nil {
			return fmt.Errorf("lock grant: %w", err)
		}

		if grant.CompetitorID != competitorID {
			return ErrNotAuthorized
		}

		err = s.shops.ConsumeGrant(tx, grantID, quantity)
		if err != nil {
			return fmt.Errorf("consume grant: %w", err)
		}

		grant.UsedQuantity += quantity
		updated = grant

		return nil
	})
	if err != nil {
		return shop.Grant{}, fmt.Errorf("use item: %w", err)
	}

	s.cfg.Auditor.Record(ctx, audit.Entry{
		Actor:    competitorID,
		Action:   "use_item",
		Entity:   "inventory_grant",
		EntityID: idKey(grantID),
		Detail: map[string]any{
			"quantity": quantity,
			"used":     updated.UsedQuantity,
			"of":       updated.Quantity,
		},
	})

	return updated, nil
}

func stockValue(stock *int64) any {
	if stock == nil {
		return "unlimited"
	}

	return *stock
}
