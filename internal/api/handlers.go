package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nickzitzer/pulseplus-economy/internal/repos/accounts"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/ledger"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/rewards"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/shop"
	"github.com/nickzitzer/pulseplus-economy/internal/repos/trades"
	"github.com/nickzitzer/pulseplus-economy/internal/services/economy"
)

// EconomyService is the part of the economy engine the HTTP layer needs.
type EconomyService interface {
	GetBalance(ctx context.Context, competitorID uint64) (economy.Balance, error)
	GetHistory(ctx context.Context, competitorID uint64, limit, offset int) ([]ledger.Transaction, error)
	Transfer(ctx context.Context, fromID, toID uint64, amount int64, reason string) (ledger.Transaction, error)
	CreateShop(ctx context.Context, spec economy.ShopSpec) (shop.Shop, error)
	AddItem(ctx context.Context, shopID int64, spec economy.ItemSpec) (shop.Item, error)
	SetItemAvailability(ctx context.Context, itemID int64, available bool) error
	Purchase(ctx context.Context, itemID int64, buyerID uint64, quantity int64) (economy.PurchaseReceipt, error)
	UseItem(ctx context.Context, competitorID uint64, grantID int64, quantity int64) (shop.Grant, error)
	CreateTrade(ctx context.Context, initiatorID, counterpartyID uint64, initiatorOffer, counterpartyOffer trades.Offer) (trades.Trade, error)
	RespondToTrade(ctx context.Context, tradeID int64, responderID uint64, accept bool) (trades.Trade, error)
	CancelTrade(ctx context.Context, tradeID int64, initiatorID uint64) (trades.Trade, error)
	ClaimDailyReward(ctx context.Context, competitorID uint64) (economy.RewardClaim, error)
}

type HandlerProvider struct {
	svc EconomyService
}

func NewHandlerProvider(svc EconomyService) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("error writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, accounts.ErrAccountNotFound),
		errors.Is(err, shop.ErrShopNotFound),
		errors.Is(err, shop.ErrItemNotFound),
		errors.Is(err, shop.ErrGrantNotFound),
		errors.Is(err, trades.ErrTradeNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, economy.ErrNotAuthorized):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, accounts.ErrInsufficientBalance),
		errors.Is(err, shop.ErrItemOutOfStock),
		errors.Is(err, shop.ErrGrantExhausted),
		errors.Is(err, economy.ErrTransferLimitExceeded),
		errors.Is(err, economy.ErrItemNotAvailable),
		errors.Is(err, economy.ErrInvalidState),
		errors.Is(err, rewards.ErrAlreadyClaimed),
		errors.Is(err, economy.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, economy.ErrInvalidTransfer):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, economy.ErrTimeout):
		status, msg = http.StatusServiceUnavailable, err.Error()
	default:
		slog.Error("unhandled error in handler", "error", err)
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

func competitorIDParam(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type transactionResponse struct {
	ID          string    `json:"id"`
	FromAccount *uint64   `json:"fromAccount,omitempty"`
	ToAccount   *uint64   `json:"toAccount,omitempty"`
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Amount:      t.Amount,
		Kind:        string(t.Kind),
		Reason:      t.Reason,
		CreatedAt:   t.CreatedAt,
	}
}

type balanceResponse struct {
	CompetitorID uint64 `json:"competitorId"`
	Amount       int64  `json:"amount"`
	CurrencyUnit string `json:"currencyUnit"`
}

func (hp *HandlerProvider) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := competitorIDParam(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid competitor id")
		return
	}

	bal, err := hp.svc.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		CompetitorID: bal.CompetitorID,
		Amount:       bal.Amount,
		CurrencyUnit: bal.CurrencyUnit,
	})
}

func (hp *HandlerProvider) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := competitorIDParam(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid competitor id")
		return
	}

	limit, offset := 0, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "invalid offset")
			return
		}
	}

	txns, err := hp.svc.GetHistory(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type transferRequest struct {
	FromCompetitorID uint64 `json:"fromCompetitorId"`
	ToCompetitorID   uint64 `json:"toCompetitorId"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason"`
}

func (hp *HandlerProvider) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	txn, err := hp.svc.Transfer(r.Context(), req.FromCompetitorID, req.ToCompetitorID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

type createShopRequest struct {
	Name string `json:"name"`
}

type shopResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (hp *HandlerProvider) CreateShop(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "shop name required")
		return
	}

	sh, err := hp.svc.CreateShop(r.Context(), economy.ShopSpec{Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, shopResponse{ID: sh.ID, Name: sh.Name, CreatedAt: sh.CreatedAt})
}

type addItemRequest struct {
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Stock     *int64 `json:"stock"`
	Available bool   `json:"available"`
}

type itemResponse struct {
	ID          int64  `json:"id"`
	ShopID      int64  `json:"shopId"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       *int64 `json:"stock"`
	IsAvailable bool   `json:"isAvailable"`
}

func toItemResponse(it shop.Item) itemResponse {
	return itemResponse{
		ID:          it.ID,
		ShopID:      it.ShopID,
		Name:        it.Name,
		Price:       it.Price,
		Stock:       it.Stock,
		IsAvailable: it.IsAvailable,
	}
}

func (hp *HandlerProvider) AddItem(w http.ResponseWriter, r *http.Request) {
	shopID, err := int64Param(r, "shopID")
	if err != nil {
		writeBadRequest(w, "invalid shop id")
		return
	}

	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Price <= 0 {
		writeBadRequest(w, "item name required and price must be positive")
		return
	}

	it, err := hp.svc.AddItem(r.Context(), shopID, economy.ItemSpec{
		Name:      req.Name,
		Price:     req.Price,
		Stock:     req.Stock,
		Available: req.Available,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(it))
}

type setAvailabilityRequest struct {
	Available bool `json:"available"`
}

func (hp *HandlerProvider) SetItemAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, err := int64Param(r, "itemID")
	if err != nil {
		writeBadRequest(w, "invalid item id")
		return
	}

	var req setAvailabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := hp.svc.SetItemAvailability(r.Context(), itemID, req.Available); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type purchaseRequest struct {
	CompetitorID uint64 `json:"competitorId"`
	ItemID       int64  `json:"itemId"`
	Quantity     int64  `json:"quantity"`
}

type grantResponse struct {
	ID           int64  `json:"id"`
	CompetitorID uint64 `json:"competitorId"`
	ItemID       int64  `json:"itemId"`
	Quantity     int64  `json:"quantity"`
	UsedQuantity int64  `json:"usedQuantity"`
}

func toGrantResponse(g shop.Grant) grantResponse {
	return grantResponse{
		ID:           g.ID,
		CompetitorID: g.CompetitorID,
		ItemID:       g.ItemID,
		Quantity:     g.Quantity,
		UsedQuantity: g.UsedQuantity,
	}
}

type purchaseResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Item        itemResponse        `json:"item"`
	Grant       grantResponse       `json:"grant"`
}

func (hp *HandlerProvider) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeBadRequest(w, "quantity must be positive")
		return
	}

	receipt, err := hp.svc.Purchase(r.Context(), req.ItemID, req.CompetitorID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	item := receipt.Item
	item.Stock = receipt.NewStock
	writeJSON(w, http.StatusCreated, purchaseResponse{
		Transaction: toTransactionResponse(receipt.Transaction),
		Item:        toItemResponse(item),
		Grant:       toGrantResponse(receipt.Grant),
	})
}

type useItemRequest struct {
	CompetitorID uint64 `json:"competitorId"`
	Quantity     int64  `json:"quantity"`
}

func (hp *HandlerProvider) UseItem(w http.ResponseWriter, r *http.Request) {
	grantID, err := int64Param(r, "grantID")
	if err != nil {
		writeBadRequest(w, "invalid grant id")
		return
	}

	var req useItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeBadRequest(w, "quantity must be positive")
		return
	}

	g, err := hp.svc.UseItem(r.Context(), req.CompetitorID, grantID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(g))
}

type offerPayload struct {
	Amount       int64  `json:"amount"`
	ItemID       *int64 `json:"itemId"`
	ItemQuantity int64  `json:"itemQuantity"`
}

func (o offerPayload) toOffer() trades.Offer {
	return trades.Offer{Amount: o.Amount, ItemID: o.ItemID, ItemQuantity: o.ItemQuantity}
}

func toOfferPayload(o trades.Offer) offerPayload {
	return offerPayload{Amount: o.Amount, ItemID: o.ItemID, ItemQuantity: o.ItemQuantity}
}

type createTradeRequest struct {
	InitiatorID       uint64       `json:"initiatorId"`
	CounterpartyID    uint64       `json:"counterpartyId"`
	InitiatorOffer    offerPayload `json:"initiatorOffer"`
	CounterpartyOffer offerPayload `json:"counterpartyOffer"`
}

type tradeResponse struct {
	ID                int64        `json:"id"`
	InitiatorID       uint64       `json:"initiatorId"`
	CounterpartyID    uint64       `json:"counterpartyId"`
	InitiatorOffer    offerPayload `json:"initiatorOffer"`
	CounterpartyOffer offerPayload `json:"counterpartyOffer"`
	Status            string       `json:"status"`
	CreatedAt         time.Time    `json:"createdAt"`
	ResolvedAt        *time.Time   `json:"resolvedAt,omitempty"`
}

func toTradeResponse(t trades.Trade) tradeResponse {
	return tradeResponse{
		ID:                t.ID,
		InitiatorID:       t.InitiatorID,
		CounterpartyID:    t.CounterpartyID,
		InitiatorOffer:    toOfferPayload(t.InitiatorOffer),
		CounterpartyOffer: toOfferPayload(t.CounterpartyOffer),
		Status:            string(t.Status),
		CreatedAt:         t.CreatedAt,
		ResolvedAt:        t.ResolvedAt,
	}
}

func (hp *HandlerProvider) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var req createTradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := hp.svc.CreateTrade(r.Context(), req.InitiatorID, req.CounterpartyID,
		req.InitiatorOffer.toOffer(), req.CounterpartyOffer.toOffer())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTradeResponse(t))
}

type respondTradeRequest struct {
	CompetitorID uint64 `json:"competitorId"`
	Accept       bool   `json:"accept"`
}

func (hp *HandlerProvider) RespondToTrade(w http.ResponseWriter, r *http.Request) {
	tradeID, err := int64Param(r, "tradeID")
	if err != nil {
		writeBadRequest(w, "invalid trade id")
		return
	}

	var req respondTradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := hp.svc.RespondToTrade(r.Context(), tradeID, req.CompetitorID, req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTradeResponse(t))
}

type cancelTradeRequest struct {
	CompetitorID uint64 `json:"competitorId"`
}

func (hp *HandlerProvider) CancelTrade(w http.ResponseWriter, r *http.Request) {
	tradeID, err := int64Param(r, "tradeID")
	if err != nil {
		writeBadRequest(w, "invalid trade id")
		return
	}

	var req cancelTradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := hp.svc.CancelTrade(r.Context(), tradeID, req.CompetitorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTradeResponse(t))
}

type rewardResponse struct {
	Transaction transactionResponse `json:"transaction"`
	ClaimDate   string              `json:"claimDate"`
	Amount      int64               `json:"amount"`
}

func (hp *HandlerProvider) ClaimDailyReward(w http.ResponseWriter, r *http.Request) {
	id, err := competitorIDParam(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid competitor id")
		return
	}

	claim, err := hp.svc.ClaimDailyReward(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rewardResponse{
		Transaction: toTransactionResponse(claim.Transaction),
		ClaimDate:   claim.ClaimDate.Format("2006-01-02"),
		Amount:      claim.Amount,
	})
}

func (hp *HandlerProvider) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
