package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/marketplace-settlement/internal/fulfillment"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/referral"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

type Payouts interface {
	ProcessSellerPayout(ctx context.Context, orderID int64) (*payout.Result, error)
}

type Assigner interface {
	AssignByCity(ctx context.Context, orderID int64, city string) (*models.Courier, error)
	AssignForSeller(ctx context.Context, orderID, sellerID int64) (*models.Courier, error)
}

type Orders interface {
	ProcessDelivery(ctx context.Context, orderID int64) (*fulfillment.DeliveryOutcome, error)
	ProcessCancellation(ctx context.Context, orderID int64) (*fulfillment.Reversal, error)
	ProcessReturn(ctx context.Context, orderID int64, returned []fulfillment.ReturnedItem) (*fulfillment.Reversal, error)
}

type Deliveries interface {
	ConfirmPickup(ctx context.Context, courierID, orderID int64) error
	MarkInTransit(ctx context.Context, courierID, orderID int64) error
	ConfirmDelivery(ctx context.Context, courierID, orderID int64) (*fulfillment.DeliveryResult, error)
}

type CashOnDelivery interface {
	CollectCOD(ctx context.Context, courierID, orderID int64, amount decimal.Decimal) (*models.CourierSettlement, error)
	SettleCourier(ctx context.Context, courierID int64) (*fulfillment.SettleSummary, error)
	ListSettlements(ctx context.Context, courierID int64, cursor string, limit int) (*store.CursorPage, error)
}

type Wallets interface {
	Wallet(ctx context.Context, sellerID int64) (*models.SellerWallet, error)
	Transactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error)
}

type PayoutReconciler interface {
	Run(ctx context.Context) (payout.Report, error)
}

type ReferralReconciler interface {
	Run(ctx context.Context) (referral.Report, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler holds the services behind the HTTP routes. Nil reconcilers leave
// their admin routes unregistered.
type Handler struct {
	DB                 Pinger
	Payouts            Payouts
	Assigner           Assigner
	Orders             Orders
	Deliveries         Deliveries
	COD                CashOnDelivery
	Wallets            Wallets
	PayoutReconciler   PayoutReconciler
	ReferralReconciler ReferralReconciler
}

func (h *Handler) health(c *gin.Context) {
	if err := h.DB.PingContext(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) confirmPickup(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Deliveries.ConfirmPickup(c.Request.Context(), subjectID(c), orderID); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusPickedUp})
}

func (h *Handler) markInTransit(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Deliveries.MarkInTransit(c.Request.Context(), subjectID(c), orderID); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"order_id": orderID, "status": models.OrderStatusInTransit})
}

func (h *Handler) confirmDelivery(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.Deliveries.ConfirmDelivery(c.Request.Context(), subjectID(c), orderID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

func (h *Handler) collectCOD(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	settlement, err := h.COD.CollectCOD(c.Request.Context(), subjectID(c), orderID, req.Amount)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, settlement)
}

func (h *Handler) listSettlements(c *gin.Context) {
	page, err := h.COD.ListSettlements(c.Request.Context(), subjectID(c), c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) sellerWallet(c *gin.Context) {
	ctx := c.Request.Context()
	sellerID := subjectID(c)

	wallet, err := h.Wallets.Wallet(ctx, sellerID)
	if err != nil {
		respondErr(c, err)
		return
	}

	txs, err := h.Wallets.Transactions(ctx, sellerID, c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondErr(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"wallet": wallet, "transactions": txs})
}

func (h *Handler) processPayout(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.Payouts.ProcessSellerPayout(c.Request.Context(), orderID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

func (h *Handler) processDelivery(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.Orders.ProcessDelivery(c.Request.Context(), orderID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, outcome)
}

// assignCourier assigns by city when one is given, otherwise by the city of
// the seller (or the order's first seller when seller_id is omitted).
func (h *Handler) assignCourier(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		City     string `json:"city"`
		SellerID int64  `json:"seller_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := c.Request.Context()
	var (
		courier *models.Courier
		err     error
	)
	if strings.TrimSpace(req.City) != "" {
		courier, err = h.Assigner.AssignByCity(ctx, orderID, req.City)
	} else {
		courier, err = h.Assigner.AssignForSeller(ctx, orderID, req.SellerID)
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"order_id": orderID, "courier": courier})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	rev, err := h.Orders.ProcessCancellation(c.Request.Context(), orderID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rev)
}

func (h *Handler) returnOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Items []fulfillment.ReturnedItem `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		respondError(c, http.StatusBadRequest, "items are required")
		return
	}

	rev, err := h.Orders.ProcessReturn(c.Request.Context(), orderID, req.Items)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rev)
}

func (h *Handler) settleCourier(c *gin.Context) {
	courierID, ok := pathID(c, "id")
	if !ok {
		return
	}

	summary, err := h.COD.SettleCourier(c.Request.Context(), courierID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, summary)
}

func (h *Handler) reconcilePayouts(c *gin.Context) {
	report, err := h.PayoutReconciler.Run(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, report)
}

func (h *Handler) reconcileReferrals(c *gin.Context) {
	report, err := h.ReferralReconciler.Run(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, report)
}

// StoreWallets reads seller wallets straight from the database.
type StoreWallets struct {
	DB *sql.DB
}

func (w StoreWallets) Wallet(ctx context.Context, sellerID int64) (*models.SellerWallet, error) {
	return store.GetWallet(ctx, w.DB, sellerID)
}

func (w StoreWallets) Transactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListWalletTransactions(ctx, w.DB, sellerID, cursor, limit)
}
