package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatRupees(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "रु 0.00"},
		{"510", "रु 510.00"},
		{"1234.5", "रु 1,234.50"},
		{"1234567.891", "रु 1,234,567.89"},
		{"-1500", "रु -1,500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRupees(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "9779812345678", FormatPhone("981-234-5678"))
	assert.Equal(t, "9779812345678", FormatPhone("+977 9812345678"))
	assert.Equal(t, "12345", FormatPhone("12345"))
	assert.Empty(t, FormatPhone(""))
}

func TestPayoutMessageListsOnlyPositiveDeductions(t *testing.T) {
	n := PayoutNotice{
		SellerName: "Acme Traders",
		OrderID:    42,
		Invoice:    "INV-42",
		Amount:     decimal.RequireFromString("510"),
		Tax:        decimal.RequireFromString("30"),
		Delivery:   decimal.RequireFromString("60"),
	}

	want := "Acme Traders received your order payout रु 510.00 after all deduction.\n\n" +
		"Order: INV-42\n\n" +
		"Deductions Breakdown:\n" +
		"- Tax (12%): रु 30.00\n" +
		"- Delivery fee: रु 60.00\n" +
		"\nNet Payout: रु 510.00"

	assert.Equal(t, want, PayoutMessage(n, decimal.NewFromInt(12)))
}

func TestPayoutSMS(t *testing.T) {
	n := PayoutNotice{
		OrderID:   7,
		Amount:    decimal.RequireFromString("95"),
		Coupon:    decimal.RequireFromString("5"),
		Affiliate: decimal.RequireFromString("10"),
	}

	want := "Dear Seller, your payout रु 95.00 for order #7 has been credited to your wallet." +
		" Deductions: Coupon: रु 5.00, Affiliate: रु 10.00 Thank you!"

	assert.Equal(t, want, PayoutSMS(n, decimal.NewFromInt(13)))
}

func TestPayoutSMSWithoutDeductions(t *testing.T) {
	n := PayoutNotice{SellerName: "B", Invoice: "INV-1", Amount: decimal.NewFromInt(100)}

	assert.Equal(t,
		"Dear B, your payout रु 100.00 for order INV-1 has been credited to your wallet. Thank you!",
		PayoutSMS(n, decimal.NewFromInt(12)))
}
