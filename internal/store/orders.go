package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, invoice, user_id, status, payment_status, total_amount, subtotal, delivery_fee,
	tax_amount, discount_amount, COALESCE(coupon_code, ''), affiliate_percent, is_referral,
	COALESCE(referral_code, ''), curior_id, shipping_city, delivered_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var userID, courierID sql.NullInt64
	var deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.Invoice,
		&userID,
		&order.Status,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.Subtotal,
		&order.DeliveryFee,
		&order.TaxAmount,
		&order.DiscountAmount,
		&order.CouponCode,
		&order.AffiliatePercent,
		&order.IsReferral,
		&order.ReferralCode,
		&courierID,
		&order.ShippingCity,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.UserID = nullInt64Ptr(userID)
	order.CourierID = nullInt64Ptr(courierID)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		order.DeliveredAt = &t
	}

	return order, nil
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

// LockOrder reads the order row with FOR UPDATE; q must be a transaction.
func LockOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// GetOrderItems returns the items of an order. Total falls back to
// price * quantity when the stored total is missing.
func GetOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.seller_id, p.seller_id,
		       oi.quantity, oi.price, COALESCE(oi.total, oi.price * oi.quantity)
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var sellerID, productSellerID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&sellerID,
			&productSellerID,
			&item.Quantity,
			&item.Price,
			&item.Total,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.SellerID = nullInt64Ptr(sellerID)
		item.ProductSellerID = nullInt64Ptr(productSellerID)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrderWithItems loads the order and attaches its items.
func GetOrderWithItems(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order, err := GetOrder(ctx, q, id)
	if err != nil {
		return nil, err
	}

	items, err := GetOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// SellerIDs returns the distinct non-null seller ids on the order's items.
func SellerIDs(ctx context.Context, q database.Querier, orderID int64) ([]int64, error) {
	return queryIDs(ctx, q, "list order sellers",
		`SELECT DISTINCT seller_id
		 FROM order_items
		 WHERE order_id = $1 AND seller_id IS NOT NULL
		 ORDER BY seller_id`, orderID)
}

func UpdateOrderStatus(ctx context.Context, q database.Querier, orderID int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	return expectOneRow(result, database.ErrOrderNotFound)
}

// MarkOrderDelivered sets the delivered status and timestamp. With
// settlePayment a pending payment becomes paid, as when a courier hands over
// a cash-on-delivery order.
func MarkOrderDelivered(ctx context.Context, q database.Querier, orderID int64, settlePayment bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     delivered_at = NOW(),
		     payment_status = CASE WHEN $2 AND payment_status = $3 THEN $4 ELSE payment_status END,
		     updated_at = NOW()
		 WHERE id = $5`,
		models.OrderStatusDelivered, settlePayment, models.PaymentStatusPending, models.PaymentStatusPaid, orderID)
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}

	return expectOneRow(result, database.ErrOrderNotFound)
}

func MarkOrderPaid(ctx context.Context, q database.Querier, orderID int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`,
		models.PaymentStatusPaid, orderID)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}

	return expectOneRow(result, database.ErrOrderNotFound)
}

// AssignCourier writes the courier and the (possibly unchanged) status in one update.
func AssignCourier(ctx context.Context, q database.Querier, orderID, courierID int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET curior_id = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		courierID, status, orderID)
	if err != nil {
		return fmt.Errorf("assign courier: %w", err)
	}

	return expectOneRow(result, database.ErrOrderNotFound)
}

// ActiveOrderCounts returns, per courier, how many orders sit in an active
// delivery status. Couriers with no active orders are absent from the map.
func ActiveOrderCounts(ctx context.Context, q database.Querier, courierIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(courierIDs))
	if len(courierIDs) == 0 {
		return counts, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT curior_id, COUNT(*)
		 FROM orders
		 WHERE curior_id = ANY($1) AND status = ANY($2)
		 GROUP BY curior_id`,
		pq.Array(courierIDs), pq.Array(models.ActiveCourierStatuses))
	if err != nil {
		return nil, fmt.Errorf("count active orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan active count: %w", err)
		}
		counts[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}

// DeliveredOrdersMissingCredit lists delivered orders with an id above afterID
// that have at least one seller without a credit ledger row.
func DeliveredOrdersMissingCredit(ctx context.Context, q database.Querier, afterID int64, limit int) ([]int64, error) {
	query := `
		SELECT DISTINCT o.id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = $1
		  AND o.id > $2
		  AND oi.seller_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM seller_wallet_transactions t
		      WHERE t.order_id = o.id AND t.seller_id = oi.seller_id AND t.type = $3)
		ORDER BY o.id
		LIMIT $4`

	return queryIDs(ctx, q, "list orders missing credit", query,
		models.OrderStatusDelivered, afterID, models.WalletTxCredit, limit)
}

// SumItemsTotal is the order subtotal derived from its items.
func SumItemsTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}

func queryIDs(ctx context.Context, q database.Querier, op, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
