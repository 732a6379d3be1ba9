package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID               int64           `json:"id"`
	Invoice          string          `json:"invoice"`
	UserID           *int64          `json:"user_id,omitempty"`
	Status           string          `json:"status"`
	PaymentStatus    string          `json:"payment_status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	AffiliatePercent decimal.Decimal `json:"affiliate_percent"`
	IsReferral       bool            `json:"is_referral"`
	ReferralCode     string          `json:"referral_code,omitempty"`
	CourierID        *int64          `json:"curior_id,omitempty"`
	ShippingCity     string          `json:"shipping_city"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []OrderItem     `json:"items,omitempty"`
}

// HasReferral reports whether an affiliate commission applies to the order.
func (o *Order) HasReferral() bool {
	return o.IsReferral || o.ReferralCode != ""
}

type OrderItem struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	SellerID  *int64 `json:"seller_id,omitempty"`
	// ProductSellerID is the owning seller recorded on the product itself.
	ProductSellerID *int64          `json:"-"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Total           decimal.Decimal `json:"total"`
}

// EffectiveSellerID falls back to the product's seller when the item has none.
func (i OrderItem) EffectiveSellerID() (int64, bool) {
	if i.SellerID != nil {
		return *i.SellerID, true
	}
	if i.ProductSellerID != nil {
		return *i.ProductSellerID, true
	}
	return 0, false
}

type Seller struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	City        string `json:"city,omitempty"`
}

// DisplayName prefers the company name, as seller-facing messages do.
func (s *Seller) DisplayName() string {
	if s.CompanyName != "" {
		return s.CompanyName
	}
	if s.Name != "" {
		return s.Name
	}
	return "Seller"
}

type SellerWallet struct {
	SellerID         int64           `json:"seller_id"`
	Balance          decimal.Decimal `json:"balance"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type WalletTransaction struct {
	ID           int64           `json:"id"`
	SellerID     int64           `json:"seller_id"`
	OrderID      *int64          `json:"order_id,omitempty"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Courier struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	City   string `json:"city"`
	Status string `json:"status"`
}

type Coupon struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	SellerID      *int64          `json:"seller_id,omitempty"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// OwnedBy reports whether the coupon's discount is charged to sellerID.
func (c *Coupon) OwnedBy(sellerID int64) bool {
	return c != nil && c.SellerID != nil && *c.SellerID == sellerID
}

type CourierSettlement struct {
	ID          int64           `json:"id"`
	CourierID   int64           `json:"courior_id"`
	OrderID     int64           `json:"order_id"`
	CODAmount   decimal.Decimal `json:"cod_amount"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	CollectedAt *time.Time      `json:"collected_at,omitempty"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ReferralEarning struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	SellerID  int64     `json:"seller_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusReadyForPickup = "ready_for_pickup"
	OrderStatusPickedUp       = "picked_up"
	OrderStatusInTransit      = "in_transit"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusReturned       = "returned"
)

// ActiveCourierStatuses are the statuses that count toward a courier's load.
var ActiveCourierStatuses = []string{
	OrderStatusReadyForPickup,
	OrderStatusPickedUp,
	OrderStatusInTransit,
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

const (
	WalletTxCredit = "credit"
	WalletTxDebit  = "debit"

	WalletTxCompleted = "completed"
)

const (
	CourierStatusActive   = "active"
	CourierStatusInactive = "inactive"
)

const (
	SettlementPending   = "pending"
	SettlementCollected = "collected"
	SettlementSettled   = "settled"
)

const (
	ReferralPending   = "pending"
	ReferralPaid      = "paid"
	ReferralCancelled = "cancelled"
)
