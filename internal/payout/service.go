package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/notify"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotDelivered = errors.New("order not delivered")
	ErrNoSellers         = errors.New("order has no sellers")

	errAlreadyCredited = errors.New("payout already credited")
)

const (
	OutcomeCredited = "credited"
	OutcomeSkipped  = "already_processed"
	OutcomeZero     = "zero_amount"
	OutcomeFailed   = "failed"
)

// Notifier is told about each credited payout. Its errors are logged only.
type Notifier interface {
	PayoutCredited(ctx context.Context, notice notify.PayoutNotice) error
}

type SellerOutcome struct {
	SellerID  int64           `json:"seller_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Breakdown *Breakdown      `json:"breakdown,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type Result struct {
	OrderID   int64           `json:"order_id"`
	Processed int             `json:"processed"`
	Sellers   []SellerOutcome `json:"sellers"`
}

type Service struct {
	db       *sql.DB
	notifier Notifier
}

func NewService(db *sql.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// ProcessSellerPayout credits every seller of a delivered order with their
// net share. Sellers already credited for the order are skipped, so calling
// it again is safe. A failure for one seller does not stop the others.
// When ctx carries a transaction the credits join it.
func (s *Service) ProcessSellerPayout(ctx context.Context, orderID int64) (*Result, error) {
	q := database.Conn(ctx, s.db)

	order, err := store.GetOrder(ctx, q, orderID)
	if err != nil {
		log.Printf("payout: order #%d: %v", orderID, err)
		return nil, err
	}

	if order.Status != models.OrderStatusDelivered {
		log.Printf("payout: order #%d is %s, not delivered; skipping", orderID, order.Status)
		return nil, ErrOrderNotDelivered
	}

	items, err := store.GetOrderItems(ctx, q, orderID)
	if err != nil {
		return nil, err
	}

	sellerIDs, err := store.SellerIDs(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	if len(sellerIDs) == 0 {
		log.Printf("payout: order #%d has no seller items", orderID)
		return nil, ErrNoSellers
	}

	coupon, err := s.orderCoupon(ctx, q, order)
	if err != nil {
		return nil, err
	}

	result := &Result{OrderID: orderID}
	for _, sellerID := range sellerIDs {
		outcome := s.processSeller(ctx, order, items, coupon, sellerID)
		if outcome.Status == OutcomeCredited {
			result.Processed++
		}
		result.Sellers = append(result.Sellers, outcome)
	}

	log.Printf("payout: order #%d processed %d of %d sellers", orderID, result.Processed, len(sellerIDs))
	return result, nil
}

func (s *Service) orderCoupon(ctx context.Context, q database.Querier, order *models.Order) (*models.Coupon, error) {
	if order.CouponCode == "" {
		return nil, nil
	}

	coupon, err := store.GetCouponByCode(ctx, q, order.CouponCode)
	if errors.Is(err, database.ErrCouponNotFound) {
		log.Printf("payout: order #%d coupon %q not found; treating as platform coupon", order.ID, order.CouponCode)
		return nil, nil
	}
	return coupon, err
}

func (s *Service) processSeller(ctx context.Context, order *models.Order, items []models.OrderItem, coupon *models.Coupon, sellerID int64) SellerOutcome {
	outcome := SellerOutcome{SellerID: sellerID}

	credited, err := store.HasCredit(ctx, database.Conn(ctx, s.db), order.ID, sellerID)
	if err != nil {
		return failed(outcome, order.ID, err)
	}
	if credited {
		log.Printf("payout: order #%d seller #%d already processed", order.ID, sellerID)
		outcome.Status = OutcomeSkipped
		return outcome
	}

	b := Calculate(order, items, sellerID, coupon)
	outcome.Breakdown = &b
	outcome.Amount = b.Amount

	if !b.Amount.IsPositive() {
		log.Printf("payout: order #%d seller #%d net amount is zero; nothing to credit", order.ID, sellerID)
		outcome.Status = OutcomeZero
		return outcome
	}

	err = database.InTx(ctx, s.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		return credit(ctx, q, order, sellerID, b.Amount)
	})
	if errors.Is(err, errAlreadyCredited) {
		log.Printf("payout: order #%d seller #%d credited concurrently", order.ID, sellerID)
		outcome.Status = OutcomeSkipped
		return outcome
	}
	if err != nil {
		return failed(outcome, order.ID, err)
	}

	outcome.Status = OutcomeCredited
	log.Printf("payout: order #%d seller #%d credited %s", order.ID, sellerID, b.Amount.StringFixed(2))

	s.notify(ctx, order, sellerID, b)
	return outcome
}

func credit(ctx context.Context, q database.Querier, order *models.Order, sellerID int64, amount decimal.Decimal) error {
	if _, err := store.LockWallet(ctx, q, sellerID); err != nil {
		return err
	}

	balance, err := store.AdjustWallet(ctx, q, sellerID, amount)
	if err != nil {
		return err
	}

	orderID := order.ID
	err = store.InsertWalletTransaction(ctx, q, &models.WalletTransaction{
		SellerID:     sellerID,
		OrderID:      &orderID,
		Type:         models.WalletTxCredit,
		Amount:       amount,
		BalanceAfter: balance,
		Description:  fmt.Sprintf("Order #%d payout - %s", order.ID, notify.FormatRupees(amount)),
	})
	if database.IsUniqueViolation(err) {
		return errAlreadyCredited
	}
	return err
}

func (s *Service) notify(ctx context.Context, order *models.Order, sellerID int64, b Breakdown) {
	if s.notifier == nil {
		return
	}

	notice := notify.PayoutNotice{
		SellerID:  sellerID,
		OrderID:   order.ID,
		Invoice:   order.Invoice,
		Amount:    b.Amount,
		Tax:       b.Tax.Round(2),
		Coupon:    b.Coupon.Round(2),
		Affiliate: b.Affiliate.Round(2),
		Delivery:  b.DeliveryFee.Round(2),
	}

	seller, err := store.GetSeller(ctx, database.Conn(ctx, s.db), sellerID)
	if err != nil {
		log.Printf("payout: seller #%d lookup for notification failed: %v", sellerID, err)
	} else {
		notice.SellerName = seller.DisplayName()
		notice.Phone = seller.Phone
	}

	if err := s.notifier.PayoutCredited(ctx, notice); err != nil {
		log.Printf("payout: notifying seller #%d about order #%d: %v", sellerID, order.ID, err)
	}
}

func failed(outcome SellerOutcome, orderID int64, err error) SellerOutcome {
	log.Printf("payout: order #%d seller #%d failed: %v", orderID, outcome.SellerID, err)
	outcome.Status = OutcomeFailed
	outcome.Error = err.Error()
	return outcome
}
