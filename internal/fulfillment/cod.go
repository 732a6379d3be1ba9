package fulfillment

import (
	"context"
	"database/sql"
	"log"
	"slices"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

var codStatuses = []string{
	models.OrderStatusPickedUp,
	models.OrderStatusInTransit,
	models.OrderStatusDelivered,
}

// COD tracks cash-on-delivery money from collection by the courier to
// settlement with the platform.
type COD struct {
	db *sql.DB
}

func NewCOD(db *sql.DB) *COD {
	return &COD{db: db}
}

// CollectCOD records that the courier collected amount for the order and
// marks the order paid. A zero amount means the order total. Collecting
// again updates the same settlement row.
func (c *COD) CollectCOD(ctx context.Context, courierID, orderID int64, amount decimal.Decimal) (*models.CourierSettlement, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var settlement *models.CourierSettlement
	err := database.InTx(ctx, c.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		order, err := store.LockOrder(ctx, q, orderID)
		if err != nil {
			return err
		}

		if order.CourierID == nil || *order.CourierID != courierID {
			return ErrNotAssigned
		}
		if !slices.Contains(codStatuses, order.Status) {
			return ErrInvalidTransition
		}

		if amount.IsZero() {
			amount = order.TotalAmount
		}

		settlement, err = store.CollectSettlement(ctx, q, courierID, orderID, amount, "")
		if err != nil {
			return err
		}

		if err := store.MarkOrderPaid(ctx, q, orderID); err != nil {
			return err
		}

		return store.LogOrderActivity(ctx, q, orderID, courierID, "cod_collected", map[string]any{
			"amount": amount.StringFixed(2),
		})
	})
	if err != nil {
		log.Printf("cod: courier #%d collect order #%d: %v", courierID, orderID, err)
		return nil, err
	}

	log.Printf("cod: courier #%d collected %s for order #%d", courierID, settlement.CODAmount.StringFixed(2), orderID)
	return settlement, nil
}

type SettleSummary struct {
	CourierID int64           `json:"courier_id"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
}

// SettleCourier closes every collected settlement of the courier.
func (c *COD) SettleCourier(ctx context.Context, courierID int64) (*SettleSummary, error) {
	summary := &SettleSummary{CourierID: courierID}

	err := database.InTx(ctx, c.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		if _, err := store.GetCourier(ctx, q, courierID); err != nil {
			return err
		}

		var err error
		summary.Count, summary.Total, err = store.SettleCollected(ctx, q, courierID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("cod: courier #%d settled %d orders totalling %s", courierID, summary.Count, summary.Total.StringFixed(2))
	return summary, nil
}

func (c *COD) ListSettlements(ctx context.Context, courierID int64, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListSettlementsCursor(ctx, database.Conn(ctx, c.db), courierID, cursor, limit)
}
