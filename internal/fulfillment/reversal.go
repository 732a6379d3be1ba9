package fulfillment

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/notify"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

// ReturnedItem names a product and how many units came back.
type ReturnedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type SellerReversal struct {
	SellerID int64           `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type Reversal struct {
	OrderID           int64            `json:"order_id"`
	Status            string           `json:"status"`
	Sellers           []SellerReversal `json:"sellers"`
	ReferralCancelled bool             `json:"referral_cancelled,omitempty"`
}

// ProcessCancellation cancels the order, debits back whatever payout is still
// outstanding for each seller and cancels the referral earning. Cancelling a
// cancelled order again only retries the reversals; returned orders cannot be
// cancelled.
func (p *Processor) ProcessCancellation(ctx context.Context, orderID int64) (*Reversal, error) {
	rev := &Reversal{OrderID: orderID, Status: models.OrderStatusCancelled}

	err := database.InTx(ctx, p.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		order, err := store.LockOrder(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusReturned {
			return ErrInvalidTransition
		}

		sellers, err := store.CreditedSellers(ctx, q, orderID)
		if err != nil {
			return err
		}

		for _, sellerID := range sellers {
			credited, debited, err := store.LedgerTotals(ctx, q, orderID, sellerID)
			if err != nil {
				return err
			}

			amount, err := debit(ctx, q, orderID, sellerID, credited.Sub(debited), "cancellation")
			if err != nil {
				return err
			}
			if amount.IsPositive() {
				rev.Sellers = append(rev.Sellers, SellerReversal{SellerID: sellerID, Amount: amount})
			}
		}

		if p.referrals != nil {
			rev.ReferralCancelled, err = p.referrals.CancelReferralEarning(ctx, orderID)
			if err != nil {
				return err
			}
		}

		return store.UpdateOrderStatus(ctx, q, orderID, models.OrderStatusCancelled)
	})
	if err != nil {
		log.Printf("fulfillment: cancel order #%d: %v", orderID, err)
		return nil, err
	}

	log.Printf("fulfillment: order #%d cancelled, %d payouts reversed", orderID, len(rev.Sellers))
	return rev, nil
}

// ProcessReturn marks the order returned and debits each seller the share of
// their payout that the returned units represent, never more than is still
// outstanding. Only delivered orders, or ones already partly returned, accept
// returns.
func (p *Processor) ProcessReturn(ctx context.Context, orderID int64, returned []ReturnedItem) (*Reversal, error) {
	rev := &Reversal{OrderID: orderID, Status: models.OrderStatusReturned}

	err := database.InTx(ctx, p.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		order, err := store.LockOrder(ctx, q, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusDelivered && order.Status != models.OrderStatusReturned {
			return ErrInvalidTransition
		}

		items, err := store.GetOrderItems(ctx, q, orderID)
		if err != nil {
			return err
		}

		returnedBySeller := returnedValue(items, returned)
		if len(returnedBySeller) == 0 {
			return ErrNothingReturned
		}

		sellerIDs := make([]int64, 0, len(returnedBySeller))
		for id := range returnedBySeller {
			sellerIDs = append(sellerIDs, id)
		}
		slices.Sort(sellerIDs)

		for _, sellerID := range sellerIDs {
			value := returnedBySeller[sellerID]
			credited, debited, err := store.LedgerTotals(ctx, q, orderID, sellerID)
			if err != nil {
				return err
			}
			if !credited.IsPositive() {
				continue
			}

			sellerSubtotal := payout.SellerSubtotal(items, sellerID)
			if !sellerSubtotal.IsPositive() {
				continue
			}

			share := value.Div(sellerSubtotal)
			want := credited.Mul(share).Round(2)
			outstanding := credited.Sub(debited)
			if want.GreaterThan(outstanding) {
				want = outstanding
			}

			amount, err := debit(ctx, q, orderID, sellerID, want, "return")
			if err != nil {
				return err
			}
			if amount.IsPositive() {
				rev.Sellers = append(rev.Sellers, SellerReversal{SellerID: sellerID, Amount: amount})
			}
		}

		return store.UpdateOrderStatus(ctx, q, orderID, models.OrderStatusReturned)
	})
	if err != nil {
		log.Printf("fulfillment: return order #%d: %v", orderID, err)
		return nil, err
	}

	log.Printf("fulfillment: order #%d returned, %d payouts adjusted", orderID, len(rev.Sellers))
	return rev, nil
}

// returnedValue prices the returned units per seller at each item's unit
// total. Quantities beyond what was ordered are capped.
func returnedValue(items []models.OrderItem, returned []ReturnedItem) map[int64]decimal.Decimal {
	remaining := make(map[int64]int, len(returned))
	for _, r := range returned {
		if r.Quantity > 0 {
			remaining[r.ProductID] += r.Quantity
		}
	}

	values := make(map[int64]decimal.Decimal)
	for _, item := range items {
		qty := remaining[item.ProductID]
		if qty == 0 || item.SellerID == nil || item.Quantity <= 0 {
			continue
		}
		if qty > item.Quantity {
			qty = item.Quantity
		}
		remaining[item.ProductID] -= qty

		unit := item.Total.Div(decimal.NewFromInt(int64(item.Quantity)))
		values[*item.SellerID] = values[*item.SellerID].Add(unit.Mul(decimal.NewFromInt(int64(qty))))
	}

	return values
}

func debit(ctx context.Context, q database.Querier, orderID, sellerID int64, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	if _, err := store.LockWallet(ctx, q, sellerID); err != nil {
		return decimal.Zero, err
	}

	balance, err := store.AdjustWallet(ctx, q, sellerID, amount.Neg())
	if err != nil {
		return decimal.Zero, err
	}

	err = store.InsertWalletTransaction(ctx, q, &models.WalletTransaction{
		SellerID:     sellerID,
		OrderID:      &orderID,
		Type:         models.WalletTxDebit,
		Amount:       amount,
		BalanceAfter: balance,
		Description:  fmt.Sprintf("Order #%d %s reversal - %s", orderID, reason, notify.FormatRupees(amount)),
	})
	if err != nil {
		return decimal.Zero, err
	}

	return amount, nil
}
