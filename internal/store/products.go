package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/shopspring/decimal"
)

// DigitalProductIDs returns the subset of productIDs registered as digital products.
func DigitalProductIDs(ctx context.Context, q database.Querier, productIDs []int64) (map[int64]bool, error) {
	digital := make(map[int64]bool)
	if len(productIDs) == 0 {
		return digital, nil
	}

	ids, err := queryIDs(ctx, q, "list digital products",
		`SELECT product_id FROM digital_products WHERE product_id = ANY($1)`,
		pq.Array(productIDs))
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		digital[id] = true
	}

	return digital, nil
}

// CommissionLine pairs an item total with its product's affiliate commission rate.
type CommissionLine struct {
	ProductID int64
	Total     decimal.Decimal
	Rate      decimal.Decimal
}

func CommissionLines(ctx context.Context, q database.Querier, orderID int64) ([]CommissionLine, error) {
	query := `
		SELECT oi.product_id,
		       COALESCE(oi.total, oi.price * oi.quantity),
		       COALESCE(p.affiliate_commission, 0)
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list commission lines: %w", err)
	}
	defer rows.Close()

	var lines []CommissionLine
	for rows.Next() {
		var line CommissionLine
		if err := rows.Scan(&line.ProductID, &line.Total, &line.Rate); err != nil {
			return nil, fmt.Errorf("scan commission line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}
