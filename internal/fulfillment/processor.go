package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/store"
)

var (
	ErrNotAssigned       = errors.New("order is not assigned to this courier")
	ErrInvalidTransition = errors.New("order status does not allow this action")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrNothingReturned   = errors.New("no returned items match the order")
)

// PayoutProcessor credits seller wallets for a delivered order.
type PayoutProcessor interface {
	ProcessSellerPayout(ctx context.Context, orderID int64) (*payout.Result, error)
}

// ReferralProcessor pays the referral commission of a delivered order.
type ReferralProcessor interface {
	ProcessReferralEarning(ctx context.Context, orderID int64) (bool, error)
}

// ReferralCanceller takes back the referral commission of a cancelled order.
type ReferralCanceller interface {
	CancelReferralEarning(ctx context.Context, orderID int64) (bool, error)
}

// Processor decides when a delivered order settles and reverses settlements
// on cancellation and return.
type Processor struct {
	db        *sql.DB
	payouts   PayoutProcessor
	referrals ReferralCanceller
}

// NewProcessor builds a Processor. referrals may be nil, in which case
// cancellations leave referral earnings alone.
func NewProcessor(db *sql.DB, payouts PayoutProcessor, referrals ReferralCanceller) *Processor {
	return &Processor{db: db, payouts: payouts, referrals: referrals}
}

type DeliveryOutcome struct {
	OrderID  int64          `json:"order_id"`
	Digital  bool           `json:"digital"`
	Deferred bool           `json:"deferred"`
	Payout   *payout.Result `json:"payout,omitempty"`
}

// ProcessDelivery pays out all-digital orders immediately, since no courier
// will ever confirm their delivery. Orders with physical items are left for
// the courier's delivery confirmation. Items whose product has no seller are
// not considered.
func (p *Processor) ProcessDelivery(ctx context.Context, orderID int64) (*DeliveryOutcome, error) {
	q := database.Conn(ctx, p.db)

	order, err := store.GetOrder(ctx, q, orderID)
	if err != nil {
		log.Printf("fulfillment: order #%d: %v", orderID, err)
		return nil, err
	}

	items, err := store.GetOrderItems(ctx, q, orderID)
	if err != nil {
		return nil, err
	}

	digital, err := allDigital(ctx, q, items)
	if err != nil {
		return nil, err
	}

	outcome := &DeliveryOutcome{OrderID: orderID, Digital: digital, Deferred: !digital}
	if !digital {
		log.Printf("fulfillment: order #%d has physical items; payout waits for delivery confirmation", orderID)
		return outcome, nil
	}

	if order.Status != models.OrderStatusDelivered {
		if !digitalReady(order) {
			log.Printf("fulfillment: digital order #%d is %s/%s, not ready to fulfil", orderID, order.Status, order.PaymentStatus)
			return nil, ErrInvalidTransition
		}
		if err := store.MarkOrderDelivered(ctx, q, orderID, false); err != nil {
			return nil, err
		}
	}

	result, err := p.payouts.ProcessSellerPayout(ctx, orderID)
	if err != nil {
		log.Printf("fulfillment: digital payout for order #%d failed: %v", orderID, err)
		return nil, err
	}

	outcome.Payout = result
	log.Printf("fulfillment: digital order #%d paid out to %d sellers", orderID, result.Processed)
	return outcome, nil
}

// digitalReady reports whether a paid digital order may be marked delivered.
func digitalReady(order *models.Order) bool {
	if order.PaymentStatus != models.PaymentStatusPaid {
		return false
	}
	return order.Status == models.OrderStatusConfirmed || order.Status == models.OrderStatusProcessing
}

// allDigital is true when at least one seller item exists and every seller
// item's product is registered as digital.
func allDigital(ctx context.Context, q database.Querier, items []models.OrderItem) (bool, error) {
	var productIDs []int64
	for _, item := range items {
		if item.ProductSellerID == nil {
			continue
		}
		productIDs = append(productIDs, item.ProductID)
	}
	if len(productIDs) == 0 {
		return false, nil
	}

	digital, err := store.DigitalProductIDs(ctx, q, productIDs)
	if err != nil {
		return false, err
	}

	for _, id := range productIDs {
		if !digital[id] {
			return false, nil
		}
	}
	return true, nil
}
