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

func GetSeller(ctx context.Context, q database.Querier, id int64) (*models.Seller, error) {
	seller := &models.Seller{}

	query := `
		SELECT id, name, COALESCE(company_name, ''), COALESCE(phone, ''), COALESCE(city, '')
		FROM sellers
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&seller.ID,
		&seller.Name,
		&seller.CompanyName,
		&seller.Phone,
		&seller.City,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSellerNotFound
		}
		return nil, fmt.Errorf("get seller: %w", err)
	}

	return seller, nil
}

// GetReferrer returns the id of the user who referred userID, or nil when
// the user signed up without a referrer.
func GetReferrer(ctx context.Context, q database.Querier, userID int64) (*int64, error) {
	var referredBy sql.NullInt64

	err := q.QueryRowContext(ctx,
		`SELECT referred_by FROM users WHERE id = $1`, userID).Scan(&referredBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get referrer: %w", err)
	}

	return nullInt64Ptr(referredBy), nil
}

func CreditReferralBalance(ctx context.Context, q database.Querier, userID int64, amount decimal.Decimal) error {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET referral_balance = referral_balance + $1 WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("credit referral balance: %w", err)
	}

	return expectOneRow(result, database.ErrUserNotFound)
}
