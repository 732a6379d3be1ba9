package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
)

func GetReferralEarningByOrder(ctx context.Context, q database.Querier, orderID int64) (*models.ReferralEarning, error) {
	e := &models.ReferralEarning{}

	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, order_id, amount, status, created_at, updated_at
		 FROM referral_earnings
		 WHERE order_id = $1`,
		orderID).Scan(&e.ID, &e.UserID, &e.OrderID, &e.Amount, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrEarningNotFound
		}
		return nil, fmt.Errorf("get referral earning: %w", err)
	}

	return e, nil
}

func InsertReferralEarning(ctx context.Context, q database.Querier, e *models.ReferralEarning) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO referral_earnings (user_id, order_id, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		e.UserID, e.OrderID, e.Amount, e.Status).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert referral earning: %w", err)
	}

	return nil
}

func UpdateReferralStatus(ctx context.Context, q database.Querier, id int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE referral_earnings SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update referral earning: %w", err)
	}

	return expectOneRow(result, database.ErrEarningNotFound)
}

// DeliveredOrdersMissingReferral lists delivered orders above afterID from
// referred buyers with no earning yet, or one still pending.
func DeliveredOrdersMissingReferral(ctx context.Context, q database.Querier, afterID int64, limit int) ([]int64, error) {
	query := `
		SELECT o.id
		FROM orders o
		JOIN users u ON u.id = o.user_id
		LEFT JOIN referral_earnings re ON re.order_id = o.id
		WHERE o.status = $1
		  AND o.id > $2
		  AND u.referred_by IS NOT NULL
		  AND (re.id IS NULL OR re.status = $3)
		ORDER BY o.id
		LIMIT $4`

	return queryIDs(ctx, q, "list orders missing referral", query,
		models.OrderStatusDelivered, afterID, models.ReferralPending, limit)
}
