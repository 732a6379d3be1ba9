package payout

import (
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is one seller's share of an order and the deductions taken from it.
type Breakdown struct {
	SellerSubtotal   decimal.Decimal `json:"seller_subtotal"`
	OrderSubtotal    decimal.Decimal `json:"order_subtotal"`
	Proportion       decimal.Decimal `json:"proportion"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	Tax              decimal.Decimal `json:"tax"`
	Coupon           decimal.Decimal `json:"coupon"`
	AffiliatePercent decimal.Decimal `json:"affiliate_percent"`
	Affiliate        decimal.Decimal `json:"affiliate"`
	Amount           decimal.Decimal `json:"amount"`
}

// SellerAmount is the net payout: subtotal less delivery, tax, coupon and the
// affiliate commission (subtotal * affPercent / 100, only for referral
// orders). Negative results floor at zero; the result has two decimals.
func SellerAmount(subtotal, delivery, tax, coupon, affPercent decimal.Decimal, hasReferral bool) decimal.Decimal {
	amount := subtotal.
		Sub(delivery).
		Sub(tax).
		Sub(coupon).
		Sub(affiliateCommission(subtotal, affPercent, hasReferral))

	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

func affiliateCommission(subtotal, affPercent decimal.Decimal, hasReferral bool) decimal.Decimal {
	if !hasReferral || !affPercent.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(affPercent).Div(hundred)
}

// OrderSubtotal prefers the stored order subtotal, then the sum of item
// totals, then the seller's own subtotal.
func OrderSubtotal(order *models.Order, items []models.OrderItem, sellerSubtotal decimal.Decimal) decimal.Decimal {
	if order.Subtotal.IsPositive() {
		return order.Subtotal
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	if total.IsPositive() {
		return total
	}

	return sellerSubtotal
}

// SellerSubtotal sums the totals of items sold by sellerID.
func SellerSubtotal(items []models.OrderItem, sellerID int64) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.SellerID != nil && *item.SellerID == sellerID {
			total = total.Add(item.Total)
		}
	}
	return total
}

// Calculate splits the order-level fees across sellers by their share of the
// order subtotal. The coupon is charged only to the seller who owns it.
func Calculate(order *models.Order, items []models.OrderItem, sellerID int64, coupon *models.Coupon) Breakdown {
	sellerSubtotal := SellerSubtotal(items, sellerID)
	orderSubtotal := OrderSubtotal(order, items, sellerSubtotal)

	proportion := decimal.NewFromInt(1)
	if orderSubtotal.IsPositive() {
		proportion = sellerSubtotal.Div(orderSubtotal)
	}

	b := Breakdown{
		SellerSubtotal:   sellerSubtotal,
		OrderSubtotal:    orderSubtotal,
		Proportion:       proportion,
		DeliveryFee:      order.DeliveryFee.Mul(proportion),
		Tax:              order.TaxAmount.Mul(proportion),
		Coupon:           decimal.Zero,
		AffiliatePercent: order.AffiliatePercent,
	}

	if coupon.OwnedBy(sellerID) {
		b.Coupon = order.DiscountAmount.Mul(proportion)
	}

	hasReferral := order.HasReferral()
	b.Affiliate = affiliateCommission(sellerSubtotal, order.AffiliatePercent, hasReferral)
	b.Amount = SellerAmount(sellerSubtotal, b.DeliveryFee, b.Tax, b.Coupon, order.AffiliatePercent, hasReferral)

	return b
}
