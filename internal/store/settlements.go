package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/shopspring/decimal"
)

const settlementColumns = `
	id, courior_id, order_id, cod_amount, status, notes, collected_at, settled_at, created_at, updated_at`

func scanSettlement(row rowScanner) (*models.CourierSettlement, error) {
	s := &models.CourierSettlement{}
	var collectedAt, settledAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.CourierID,
		&s.OrderID,
		&s.CODAmount,
		&s.Status,
		&s.Notes,
		&collectedAt,
		&settledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if collectedAt.Valid {
		t := collectedAt.Time
		s.CollectedAt = &t
	}
	if settledAt.Valid {
		t := settledAt.Time
		s.SettledAt = &t
	}

	return s, nil
}

func GetSettlementByOrder(ctx context.Context, q database.Querier, orderID int64) (*models.CourierSettlement, error) {
	s, err := scanSettlement(q.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM courier_settlements WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}

	return s, nil
}

// CollectSettlement records cash collected by the courier for an order.
// A row already settled is returned unchanged.
func CollectSettlement(ctx context.Context, q database.Querier, courierID, orderID int64, amount decimal.Decimal, notes string) (*models.CourierSettlement, error) {
	query := `
		INSERT INTO courier_settlements
		    (courior_id, order_id, cod_amount, status, notes, collected_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET cod_amount = EXCLUDED.cod_amount,
		    status = EXCLUDED.status,
		    notes = EXCLUDED.notes,
		    collected_at = COALESCE(courier_settlements.collected_at, NOW()),
		    updated_at = NOW()
		WHERE courier_settlements.status <> $6
		RETURNING ` + settlementColumns

	s, err := scanSettlement(q.QueryRowContext(ctx, query,
		courierID, orderID, amount, models.SettlementCollected, notes, models.SettlementSettled))
	if errors.Is(err, sql.ErrNoRows) {
		return GetSettlementByOrder(ctx, q, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("collect settlement: %w", err)
	}

	return s, nil
}

// SettleCollected moves every collected settlement of the courier to settled
// and returns how many rows moved and their COD total.
func SettleCollected(ctx context.Context, q database.Querier, courierID int64) (int, decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`UPDATE courier_settlements
		 SET status = $1, settled_at = NOW(), updated_at = NOW()
		 WHERE courior_id = $2 AND status = $3
		 RETURNING cod_amount`,
		models.SettlementSettled, courierID, models.SettlementCollected)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("settle courier: %w", err)
	}
	defer rows.Close()

	count := 0
	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return 0, decimal.Zero, fmt.Errorf("scan settled amount: %w", err)
		}
		count++
		total = total.Add(amount)
	}

	if err := rows.Err(); err != nil {
		return 0, decimal.Zero, fmt.Errorf("rows error: %w", err)
	}

	return count, total, nil
}

func ListSettlementsCursor(ctx context.Context, q database.Querier, courierID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	limit = clampLimit(limit)

	query := `
		SELECT ` + settlementColumns + `
		FROM courier_settlements
		WHERE courior_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, courierID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	settlements := []models.CourierSettlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		settlements = append(settlements, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(settlements) > limit
	if hasMore {
		settlements = settlements[:limit]
	}

	var nextCursor string
	if hasMore && len(settlements) > 0 {
		last := settlements[len(settlements)-1]
		nextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      settlements,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
