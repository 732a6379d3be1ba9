package fulfillment

import (
	"context"
	"database/sql"
	"log"
	"slices"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/store"
)

// Deliveries moves orders through the courier's pickup, transit and
// delivery steps. Confirming delivery triggers the referral commission and
// the seller payout.
type Deliveries struct {
	db        *sql.DB
	payouts   PayoutProcessor
	referrals ReferralProcessor
}

func NewDeliveries(db *sql.DB, payouts PayoutProcessor, referrals ReferralProcessor) *Deliveries {
	return &Deliveries{db: db, payouts: payouts, referrals: referrals}
}

type step struct {
	action string
	from   []string
	to     string
}

var (
	pickupStep = step{
		action: "picked_up",
		from:   []string{models.OrderStatusProcessing, models.OrderStatusConfirmed, models.OrderStatusReadyForPickup},
		to:     models.OrderStatusPickedUp,
	}
	transitStep = step{
		action: "in_transit",
		from:   []string{models.OrderStatusPickedUp, models.OrderStatusInTransit},
		to:     models.OrderStatusInTransit,
	}
	deliverStep = step{
		action: "delivered",
		from:   []string{models.OrderStatusPickedUp, models.OrderStatusInTransit},
		to:     models.OrderStatusDelivered,
	}
)

func (d *Deliveries) ConfirmPickup(ctx context.Context, courierID, orderID int64) error {
	return d.advance(ctx, courierID, orderID, pickupStep)
}

func (d *Deliveries) MarkInTransit(ctx context.Context, courierID, orderID int64) error {
	return d.advance(ctx, courierID, orderID, transitStep)
}

type DeliveryResult struct {
	OrderID      int64          `json:"order_id"`
	Status       string         `json:"status"`
	ReferralPaid bool           `json:"referral_paid"`
	Payout       *payout.Result `json:"payout,omitempty"`
}

// ConfirmDelivery marks the order delivered. Referral and payout failures
// afterwards are logged and do not undo the delivery.
func (d *Deliveries) ConfirmDelivery(ctx context.Context, courierID, orderID int64) (*DeliveryResult, error) {
	if err := d.advance(ctx, courierID, orderID, deliverStep); err != nil {
		return nil, err
	}

	result := &DeliveryResult{OrderID: orderID, Status: models.OrderStatusDelivered}

	if d.referrals != nil {
		paid, err := d.referrals.ProcessReferralEarning(ctx, orderID)
		if err != nil {
			log.Printf("deliveries: referral for order #%d failed: %v", orderID, err)
		}
		result.ReferralPaid = paid
	}

	res, err := d.payouts.ProcessSellerPayout(ctx, orderID)
	if err != nil {
		log.Printf("deliveries: payout for order #%d failed: %v", orderID, err)
	}
	result.Payout = res

	return result, nil
}

func (d *Deliveries) advance(ctx context.Context, courierID, orderID int64, s step) error {
	err := database.InTx(ctx, d.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		order, err := store.LockOrder(ctx, q, orderID)
		if err != nil {
			return err
		}

		if order.CourierID == nil || *order.CourierID != courierID {
			return ErrNotAssigned
		}
		if !slices.Contains(s.from, order.Status) {
			return ErrInvalidTransition
		}

		if s.to == models.OrderStatusDelivered {
			err = store.MarkOrderDelivered(ctx, q, orderID, true)
		} else {
			err = store.UpdateOrderStatus(ctx, q, orderID, s.to)
		}
		if err != nil {
			return err
		}

		return store.LogOrderActivity(ctx, q, orderID, courierID, s.action, map[string]any{
			"from": order.Status,
			"to":   s.to,
		})
	})
	if err != nil {
		log.Printf("deliveries: courier #%d %s order #%d: %v", courierID, s.action, orderID, err)
		return err
	}

	log.Printf("deliveries: courier #%d %s order #%d", courierID, s.action, orderID)
	return nil
}
