package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PayoutNotice carries what a seller is told after a payout credit.
type PayoutNotice struct {
	SellerID   int64
	SellerName string
	Phone      string
	OrderID    int64
	Invoice    string
	Amount     decimal.Decimal
	Tax        decimal.Decimal
	Coupon     decimal.Decimal
	Affiliate  decimal.Decimal
	Delivery   decimal.Decimal
}

func (n PayoutNotice) invoice() string {
	if n.Invoice != "" {
		return n.Invoice
	}
	return fmt.Sprintf("#%d", n.OrderID)
}

func (n PayoutNotice) sellerName() string {
	if n.SellerName != "" {
		return n.SellerName
	}
	return "Seller"
}

// PayoutMessage is the in-app notification body.
func PayoutMessage(n PayoutNotice, taxRate decimal.Decimal) string {
	amount := FormatRupees(n.Amount)

	var b strings.Builder
	fmt.Fprintf(&b, "%s received your order payout %s after all deduction.\n\n", n.sellerName(), amount)
	fmt.Fprintf(&b, "Order: %s\n\n", n.invoice())
	b.WriteString("Deductions Breakdown:\n")

	if n.Tax.IsPositive() {
		fmt.Fprintf(&b, "- Tax (%s%%): %s\n", taxRate.String(), FormatRupees(n.Tax))
	}
	if n.Coupon.IsPositive() {
		fmt.Fprintf(&b, "- Coupon: %s\n", FormatRupees(n.Coupon))
	}
	if n.Affiliate.IsPositive() {
		fmt.Fprintf(&b, "- Affiliate earned: %s\n", FormatRupees(n.Affiliate))
	}
	if n.Delivery.IsPositive() {
		fmt.Fprintf(&b, "- Delivery fee: %s\n", FormatRupees(n.Delivery))
	}

	fmt.Fprintf(&b, "\nNet Payout: %s", amount)
	return b.String()
}

// PayoutSMS is the single-line text message sent to the seller's phone.
func PayoutSMS(n PayoutNotice, taxRate decimal.Decimal) string {
	msg := fmt.Sprintf("Dear %s, your payout %s for order %s has been credited to your wallet.",
		n.sellerName(), FormatRupees(n.Amount), n.invoice())

	var parts []string
	if n.Tax.IsPositive() {
		parts = append(parts, fmt.Sprintf("Tax (%s%%): %s", taxRate.String(), FormatRupees(n.Tax)))
	}
	if n.Coupon.IsPositive() {
		parts = append(parts, "Coupon: "+FormatRupees(n.Coupon))
	}
	if n.Affiliate.IsPositive() {
		parts = append(parts, "Affiliate: "+FormatRupees(n.Affiliate))
	}
	if n.Delivery.IsPositive() {
		parts = append(parts, "Delivery: "+FormatRupees(n.Delivery))
	}
	if len(parts) > 0 {
		msg += " Deductions: " + strings.Join(parts, ", ")
	}

	return msg + " Thank you!"
}

// FormatRupees renders "रु 1,234.50".
func FormatRupees(d decimal.Decimal) string {
	s := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	return "रु " + sign + grouped.String() + "." + frac
}

// FormatPhone normalizes a local 10-digit number to the 977 country prefix.
func FormatPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	p := digits.String()
	if len(p) == 10 {
		return "977" + p
	}
	return p
}
