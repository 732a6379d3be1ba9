package referral

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

var maxRate = decimal.NewFromInt(50)

// Service pays referrers a commission when an order they referred is delivered.
type Service struct {
	db          *sql.DB
	defaultRate decimal.Decimal
}

// NewService clamps defaultRate, the percentage used for products without
// their own affiliate commission, to 0..50.
func NewService(db *sql.DB, defaultRate decimal.Decimal) *Service {
	return &Service{db: db, defaultRate: ClampRate(defaultRate)}
}

func ClampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() {
		return decimal.Zero
	}
	if rate.GreaterThan(maxRate) {
		return maxRate
	}
	return rate
}

// Commission sums each line's total times its rate, falling back to
// defaultRate for lines whose product carries none. A product rate outside
// 0..50 earns nothing for its line.
func Commission(lines []store.CommissionLine, defaultRate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if !line.Total.IsPositive() {
			continue
		}

		rate := defaultRate
		if !line.Rate.IsZero() {
			rate = line.Rate
		}
		if rate.IsNegative() || rate.GreaterThan(maxRate) {
			log.Printf("referral: product #%d has invalid commission rate %s, using 0", line.ProductID, rate.String())
			continue
		}
		if rate.IsZero() {
			continue
		}

		total = total.Add(line.Total.Mul(rate).Div(decimal.NewFromInt(100)))
	}
	return total.Round(2)
}

// ProcessReferralEarning records and pays the referral commission for a
// delivered order. It reports whether a payment happened; orders without a
// referrer and earnings already settled are no-ops.
func (s *Service) ProcessReferralEarning(ctx context.Context, orderID int64) (bool, error) {
	paid := false

	err := database.InTx(ctx, s.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		var err error
		paid, err = s.process(ctx, q, orderID)
		return err
	})
	if err != nil {
		log.Printf("referral: order #%d: %v", orderID, err)
		return false, err
	}

	return paid, nil
}

func (s *Service) process(ctx context.Context, q database.Querier, orderID int64) (bool, error) {
	order, err := store.LockOrder(ctx, q, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != models.OrderStatusDelivered || order.UserID == nil {
		return false, nil
	}

	referrer, err := store.GetReferrer(ctx, q, *order.UserID)
	if err != nil {
		return false, err
	}
	if referrer == nil {
		return false, nil
	}

	existing, err := store.GetReferralEarningByOrder(ctx, q, orderID)
	switch {
	case errors.Is(err, database.ErrEarningNotFound):
		return s.createEarning(ctx, q, orderID, *referrer)
	case err != nil:
		return false, err
	}

	if existing.Status != models.ReferralPending {
		return false, nil
	}

	if err := store.UpdateReferralStatus(ctx, q, existing.ID, models.ReferralPaid); err != nil {
		return false, err
	}
	if err := store.CreditReferralBalance(ctx, q, existing.UserID, existing.Amount); err != nil {
		return false, err
	}

	log.Printf("referral: order #%d pending earning %s paid to user #%d", orderID, existing.Amount.StringFixed(2), existing.UserID)
	return true, nil
}

func (s *Service) createEarning(ctx context.Context, q database.Querier, orderID, referrer int64) (bool, error) {
	lines, err := store.CommissionLines(ctx, q, orderID)
	if err != nil {
		return false, err
	}

	amount := Commission(lines, s.defaultRate)
	if !amount.IsPositive() {
		return false, nil
	}

	earning := &models.ReferralEarning{
		UserID:  referrer,
		OrderID: orderID,
		Amount:  amount,
		Status:  models.ReferralPaid,
	}
	if err := store.InsertReferralEarning(ctx, q, earning); err != nil {
		return false, err
	}
	if err := store.CreditReferralBalance(ctx, q, referrer, amount); err != nil {
		return false, err
	}

	log.Printf("referral: order #%d earned %s for user #%d", orderID, amount.StringFixed(2), referrer)
	return true, nil
}

// CancelReferralEarning cancels the earning recorded for an order and takes a
// paid amount back out of the referrer's balance. It reports false when the
// order has no earning or it was already cancelled. Called inside a
// transaction it joins it.
func (s *Service) CancelReferralEarning(ctx context.Context, orderID int64) (bool, error) {
	cancelled := false

	err := database.InTx(ctx, s.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		earning, err := store.GetReferralEarningByOrder(ctx, q, orderID)
		if errors.Is(err, database.ErrEarningNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if earning.Status == models.ReferralCancelled {
			return nil
		}

		if err := store.UpdateReferralStatus(ctx, q, earning.ID, models.ReferralCancelled); err != nil {
			return err
		}
		if earning.Status == models.ReferralPaid && earning.Amount.IsPositive() {
			if err := store.CreditReferralBalance(ctx, q, earning.UserID, earning.Amount.Neg()); err != nil {
				return err
			}
			log.Printf("referral: order #%d earning %s taken back from user #%d", orderID, earning.Amount.StringFixed(2), earning.UserID)
		}

		cancelled = true
		return nil
	})
	if err != nil {
		log.Printf("referral: cancel order #%d: %v", orderID, err)
		return false, err
	}

	return cancelled, nil
}
