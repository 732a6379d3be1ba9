package payout

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/notify"
	"github.com/safar/marketplace-settlement/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PayoutCredited(ctx context.Context, notice notify.PayoutNotice) error {
	return m.Called(notice).Error(0)
}

type splitFixture struct {
	orderID int64
	sellerA int64
	sellerB int64
}

// seedSplitOrder builds the two-seller order: A sells 600, B sells 400,
// delivery 100, tax 50.
func seedSplitOrder(t *testing.T, db *sql.DB, status string) splitFixture {
	t.Helper()

	a := pgtest.Seller(t, db, "Seller A", "Kathmandu")
	b := pgtest.Seller(t, db, "Seller B", "Pokhara")
	pa := pgtest.Product(t, db, pgtest.Ptr(a), "Lamp", "0")
	pb := pgtest.Product(t, db, pgtest.Ptr(b), "Mug", "0")

	order := pgtest.Order(t, db, pgtest.OrderSpec{
		Status:      status,
		Subtotal:    "1000",
		DeliveryFee: "100",
		TaxAmount:   "50",
	})
	pgtest.Item(t, db, order, pa, pgtest.Ptr(a), 2, "300")
	pgtest.Item(t, db, order, pb, pgtest.Ptr(b), 1, "400")

	return splitFixture{orderID: order, sellerA: a, sellerB: b}
}

func walletBalance(t *testing.T, db *sql.DB, sellerID int64) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	require.NoError(t, db.QueryRow(`SELECT balance FROM seller_wallets WHERE seller_id = $1`, sellerID).Scan(&balance))
	return balance
}

func creditRows(t *testing.T, db *sql.DB, orderID int64) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM seller_wallet_transactions WHERE order_id = $1 AND type = 'credit'`, orderID).Scan(&n))
	return n
}

func TestProcessSellerPayoutSplitsAcrossSellers(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")

	notifier := &mockNotifier{}
	notifier.On("PayoutCredited", mock.Anything).Return(nil).Twice()

	result, err := NewService(db, notifier).ProcessSellerPayout(ctx, fx.orderID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.True(t, walletBalance(t, db, fx.sellerA).Equal(decimal.NewFromInt(510)))
	assert.True(t, walletBalance(t, db, fx.sellerB).Equal(decimal.NewFromInt(340)))

	var balanceAfter decimal.Decimal
	require.NoError(t, db.QueryRow(
		`SELECT balance_after FROM seller_wallet_transactions WHERE order_id = $1 AND seller_id = $2`,
		fx.orderID, fx.sellerA).Scan(&balanceAfter))
	assert.True(t, balanceAfter.Equal(decimal.NewFromInt(510)))

	notifier.AssertExpectations(t)
	notice := notifier.Calls[0].Arguments.Get(0).(notify.PayoutNotice)
	assert.Equal(t, "Seller A", notice.SellerName)
	assert.True(t, notice.Delivery.Equal(decimal.NewFromInt(60)))
}

func TestProcessSellerPayoutIsIdempotent(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")
	svc := NewService(db, nil)

	first, err := svc.ProcessSellerPayout(ctx, fx.orderID)
	require.NoError(t, err)
	require.Equal(t, 2, first.Processed)

	second, err := svc.ProcessSellerPayout(ctx, fx.orderID)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Processed)
	for _, s := range second.Sellers {
		assert.Equal(t, OutcomeSkipped, s.Status)
	}
	assert.Equal(t, 2, creditRows(t, db, fx.orderID))
	assert.True(t, walletBalance(t, db, fx.sellerA).Equal(decimal.NewFromInt(510)))
}

func TestProcessSellerPayoutPreconditions(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	svc := NewService(db, nil)

	_, err := svc.ProcessSellerPayout(ctx, 999999)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	pending := seedSplitOrder(t, db, "in_transit")
	_, err = svc.ProcessSellerPayout(ctx, pending.orderID)
	assert.ErrorIs(t, err, ErrOrderNotDelivered)
	assert.Zero(t, creditRows(t, db, pending.orderID))

	orphan := pgtest.Order(t, db, pgtest.OrderSpec{Status: "delivered"})
	product := pgtest.Product(t, db, nil, "Gift card", "0")
	pgtest.Item(t, db, orphan, product, nil, 1, "50")
	_, err = svc.ProcessSellerPayout(ctx, orphan)
	assert.ErrorIs(t, err, ErrNoSellers)
}

func TestProcessSellerPayoutChargesCouponToOwner(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	a := pgtest.Seller(t, db, "Owner", "Kathmandu")
	b := pgtest.Seller(t, db, "Other", "Kathmandu")
	pgtest.Coupon(t, db, "OWNER10", pgtest.Ptr(a))
	pa := pgtest.Product(t, db, pgtest.Ptr(a), "Shoe", "0")
	pb := pgtest.Product(t, db, pgtest.Ptr(b), "Sock", "0")

	order := pgtest.Order(t, db, pgtest.OrderSpec{
		Status:         "delivered",
		Subtotal:       "1000",
		DiscountAmount: "100",
		CouponCode:     "OWNER10",
	})
	pgtest.Item(t, db, order, pa, pgtest.Ptr(a), 1, "500")
	pgtest.Item(t, db, order, pb, pgtest.Ptr(b), 1, "500")

	_, err := NewService(db, nil).ProcessSellerPayout(ctx, order)
	require.NoError(t, err)

	assert.True(t, walletBalance(t, db, a).Equal(decimal.NewFromInt(450)))
	assert.True(t, walletBalance(t, db, b).Equal(decimal.NewFromInt(500)))
}

func TestProcessSellerPayoutIsolatesSellerFailures(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")

	_, err := db.Exec(`DELETE FROM seller_wallets WHERE seller_id = $1`, fx.sellerB)
	require.NoError(t, err)

	result, err := NewService(db, nil).ProcessSellerPayout(ctx, fx.orderID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	statuses := map[int64]string{}
	for _, s := range result.Sellers {
		statuses[s.SellerID] = s.Status
	}
	assert.Equal(t, OutcomeCredited, statuses[fx.sellerA])
	assert.Equal(t, OutcomeFailed, statuses[fx.sellerB])
	assert.Equal(t, 1, creditRows(t, db, fx.orderID))
}

func TestProcessSellerPayoutJoinsCallerTransaction(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")
	svc := NewService(db, nil)

	rollback := errors.New("caller aborts")
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := svc.ProcessSellerPayout(database.WithTx(ctx, tx), fx.orderID)
		require.NoError(t, err)
		require.Equal(t, 2, result.Processed)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	assert.Zero(t, creditRows(t, db, fx.orderID))
	assert.True(t, walletBalance(t, db, fx.sellerA).IsZero())
}

func TestProcessSellerPayoutIgnoresNotifierErrors(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")

	notifier := &mockNotifier{}
	notifier.On("PayoutCredited", mock.Anything).Return(errors.New("gateway down"))

	result, err := NewService(db, notifier).ProcessSellerPayout(ctx, fx.orderID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}

func TestFixerReprocessesMissingPayouts(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	fx := seedSplitOrder(t, db, "delivered")
	seedSplitOrder(t, db, "in_transit")

	fixer := NewFixer(db, NewService(db, nil), 0)

	ids, err := fixer.FindMissingPayouts(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{fx.orderID}, ids)

	report := fixer.ProcessMissing(ctx, ids)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Failed)

	ids, err = fixer.FindMissingPayouts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFixerRunPagesPastZeroAmountOrders(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	seller := pgtest.Seller(t, db, "Tiny margins", "Kathmandu")
	product := pgtest.Product(t, db, pgtest.Ptr(seller), "Sticker", "0")
	for i := 0; i < 3; i++ {
		order := pgtest.Order(t, db, pgtest.OrderSpec{Status: "delivered", Subtotal: "100", DeliveryFee: "100"})
		pgtest.Item(t, db, order, product, pgtest.Ptr(seller), 1, "100")
	}
	fx := seedSplitOrder(t, db, "delivered")

	fixer := NewFixer(db, NewService(db, nil), 2)

	report, err := fixer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Found)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 2, creditRows(t, db, fx.orderID))

	ids, err := fixer.FindMissingPayouts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.NotContains(t, ids, fx.orderID)
}
