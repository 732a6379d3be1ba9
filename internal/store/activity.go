package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
)

func InsertNotification(ctx context.Context, q database.Querier, n *models.Notification) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO notifications (seller_id, type, title, message, link, is_read, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), FALSE, NOW())
		 RETURNING id, created_at`,
		n.SellerID, n.Type, n.Title, n.Message, n.Link).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// LogOrderActivity appends a courier action to the order's activity trail.
func LogOrderActivity(ctx context.Context, q database.Querier, orderID, courierID int64, action string, data map[string]any) error {
	var payload any
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode activity data: %w", err)
		}
		payload = string(b)
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO order_activity (order_id, curior_id, action, data, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		orderID, courierID, action, payload)
	if err != nil {
		return fmt.Errorf("log order activity: %w", err)
	}

	return nil
}
