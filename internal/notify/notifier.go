package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
)

const (
	TypePayoutReceived = "payout_received"
	payoutTitle        = "Payout Received"
	walletLink         = "seller/wallet"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Notifier tells sellers about credited payouts through an in-app
// notification row and an SMS. Each channel fails independently.
type Notifier struct {
	db      *sql.DB
	sms     Sender
	taxRate decimal.Decimal
}

func NewNotifier(db *sql.DB, sms Sender, taxRate decimal.Decimal) *Notifier {
	return &Notifier{db: db, sms: sms, taxRate: taxRate}
}

func (n *Notifier) PayoutCredited(ctx context.Context, notice PayoutNotice) error {
	var errs []error

	if err := n.insertNotification(ctx, notice); err != nil {
		log.Printf("notify: payout notification for seller #%d order #%d failed: %v", notice.SellerID, notice.OrderID, err)
		errs = append(errs, err)
	}

	if err := n.sendSMS(ctx, notice); err != nil {
		log.Printf("notify: payout sms for seller #%d order #%d failed: %v", notice.SellerID, notice.OrderID, err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (n *Notifier) insertNotification(ctx context.Context, notice PayoutNotice) error {
	notification := &models.Notification{
		SellerID: notice.SellerID,
		Type:     TypePayoutReceived,
		Title:    payoutTitle,
		Message:  PayoutMessage(notice, n.taxRate),
		Link:     walletLink,
	}

	// A failed insert must not poison a transaction the caller still holds.
	return database.InTx(ctx, n.db, database.DefaultTxOptions(), func(ctx context.Context, q database.Querier) error {
		return store.InsertNotification(ctx, q, notification)
	})
}

func (n *Notifier) sendSMS(ctx context.Context, notice PayoutNotice) error {
	if n.sms == nil {
		return nil
	}

	phone := FormatPhone(notice.Phone)
	if phone == "" {
		return fmt.Errorf("seller #%d has no phone number", notice.SellerID)
	}

	return n.sms.Send(ctx, phone, PayoutSMS(notice, n.taxRate))
}
