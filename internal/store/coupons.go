package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
)

func GetCouponByCode(ctx context.Context, q database.Querier, code string) (*models.Coupon, error) {
	c := &models.Coupon{}
	var sellerID sql.NullInt64

	err := q.QueryRowContext(ctx,
		`SELECT id, code, seller_id, discount_type, discount_value
		 FROM coupons
		 WHERE code = $1`,
		code).Scan(&c.ID, &c.Code, &sellerID, &c.DiscountType, &c.DiscountValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	c.SellerID = nullInt64Ptr(sellerID)

	return c, nil
}
