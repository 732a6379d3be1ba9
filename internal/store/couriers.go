package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
)

// ActiveCouriersInCity matches city case-insensitively after trimming and
// returns couriers in ascending id order.
func ActiveCouriersInCity(ctx context.Context, q database.Querier, city string) ([]models.Courier, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), city, status
		FROM curiors
		WHERE LOWER(TRIM(city)) = LOWER(TRIM($1))
		  AND status = $2
		ORDER BY id`

	rows, err := q.QueryContext(ctx, query, city, models.CourierStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list couriers by city: %w", err)
	}
	defer rows.Close()

	var couriers []models.Courier
	for rows.Next() {
		var c models.Courier
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.City, &c.Status); err != nil {
			return nil, fmt.Errorf("scan courier: %w", err)
		}
		couriers = append(couriers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return couriers, nil
}

func GetCourier(ctx context.Context, q database.Querier, id int64) (*models.Courier, error) {
	c := &models.Courier{}

	err := q.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(phone, ''), city, status FROM curiors WHERE id = $1`,
		id).Scan(&c.ID, &c.Name, &c.Phone, &c.City, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCourierNotFound
		}
		return nil, fmt.Errorf("get courier: %w", err)
	}

	return c, nil
}
