package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/marketplace-settlement/internal/assign"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/fulfillment"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) ProcessSellerPayout(ctx context.Context, orderID int64) (*payout.Result, error) {
	args := m.Called(orderID)
	res, _ := args.Get(0).(*payout.Result)
	return res, args.Error(1)
}

type mockAssigner struct{ mock.Mock }

func (m *mockAssigner) AssignByCity(ctx context.Context, orderID int64, city string) (*models.Courier, error) {
	args := m.Called(orderID, city)
	c, _ := args.Get(0).(*models.Courier)
	return c, args.Error(1)
}

func (m *mockAssigner) AssignForSeller(ctx context.Context, orderID, sellerID int64) (*models.Courier, error) {
	args := m.Called(orderID, sellerID)
	c, _ := args.Get(0).(*models.Courier)
	return c, args.Error(1)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) ProcessDelivery(ctx context.Context, orderID int64) (*fulfillment.DeliveryOutcome, error) {
	args := m.Called(orderID)
	o, _ := args.Get(0).(*fulfillment.DeliveryOutcome)
	return o, args.Error(1)
}

func (m *mockOrders) ProcessCancellation(ctx context.Context, orderID int64) (*fulfillment.Reversal, error) {
	args := m.Called(orderID)
	r, _ := args.Get(0).(*fulfillment.Reversal)
	return r, args.Error(1)
}

func (m *mockOrders) ProcessReturn(ctx context.Context, orderID int64, returned []fulfillment.ReturnedItem) (*fulfillment.Reversal, error) {
	args := m.Called(orderID, returned)
	r, _ := args.Get(0).(*fulfillment.Reversal)
	return r, args.Error(1)
}

type mockDeliveries struct{ mock.Mock }

func (m *mockDeliveries) ConfirmPickup(ctx context.Context, courierID, orderID int64) error {
	return m.Called(courierID, orderID).Error(0)
}

func (m *mockDeliveries) MarkInTransit(ctx context.Context, courierID, orderID int64) error {
	return m.Called(courierID, orderID).Error(0)
}

func (m *mockDeliveries) ConfirmDelivery(ctx context.Context, courierID, orderID int64) (*fulfillment.DeliveryResult, error) {
	args := m.Called(courierID, orderID)
	r, _ := args.Get(0).(*fulfillment.DeliveryResult)
	return r, args.Error(1)
}

type mockCOD struct{ mock.Mock }

func (m *mockCOD) CollectCOD(ctx context.Context, courierID, orderID int64, amount decimal.Decimal) (*models.CourierSettlement, error) {
	args := m.Called(courierID, orderID, amount.String())
	s, _ := args.Get(0).(*models.CourierSettlement)
	return s, args.Error(1)
}

func (m *mockCOD) SettleCourier(ctx context.Context, courierID int64) (*fulfillment.SettleSummary, error) {
	args := m.Called(courierID)
	s, _ := args.Get(0).(*fulfillment.SettleSummary)
	return s, args.Error(1)
}

func (m *mockCOD) ListSettlements(ctx context.Context, courierID int64, cursor string, limit int) (*store.CursorPage, error) {
	args := m.Called(courierID, cursor, limit)
	p, _ := args.Get(0).(*store.CursorPage)
	return p, args.Error(1)
}

type mockWallets struct{ mock.Mock }

func (m *mockWallets) Wallet(ctx context.Context, sellerID int64) (*models.SellerWallet, error) {
	args := m.Called(sellerID)
	w, _ := args.Get(0).(*models.SellerWallet)
	return w, args.Error(1)
}

func (m *mockWallets) Transactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error) {
	args := m.Called(sellerID, cursor, limit)
	p, _ := args.Get(0).(*store.CursorPage)
	return p, args.Error(1)
}

type testAPI struct {
	router     *gin.Engine
	payouts    *mockPayouts
	assigner   *mockAssigner
	orders     *mockOrders
	deliveries *mockDeliveries
	cod        *mockCOD
	wallets    *mockWallets
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &testAPI{
		payouts:    &mockPayouts{},
		assigner:   &mockAssigner{},
		orders:     &mockOrders{},
		deliveries: &mockDeliveries{},
		cod:        &mockCOD{},
		wallets:    &mockWallets{},
	}
	api.router = NewRouter(&Handler{
		DB:         stubPinger{},
		Payouts:    api.payouts,
		Assigner:   api.assigner,
		Orders:     api.orders,
		Deliveries: api.deliveries,
		COD:        api.cod,
		Wallets:    api.wallets,
	}, testSecret)

	t.Cleanup(func() {
		api.payouts.AssertExpectations(t)
		api.assigner.AssertExpectations(t)
		api.orders.AssertExpectations(t)
		api.deliveries.AssertExpectations(t)
		api.cod.AssertExpectations(t)
		api.wallets.AssertExpectations(t)
	})
	return api
}

func token(t *testing.T, id int64, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, id, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (api *testAPI) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	down := NewRouter(&Handler{DB: stubPinger{err: errors.New("down")}}, testSecret)
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestAuthRejectsMissingExpiredAndWrongRole(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/curior/orders/1/pickup", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, 3, RoleCourier, -time.Minute)
	require.NoError(t, err)
	w = api.do(t, http.MethodPost, "/curior/orders/1/pickup", expired, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := IssueToken([]byte("other"), 3, RoleCourier, time.Hour)
	require.NoError(t, err)
	w = api.do(t, http.MethodPost, "/curior/orders/1/pickup", forged, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/admin/orders/1/payout", token(t, 3, RoleCourier), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestParseTokenRoundTrip(t *testing.T) {
	tok := token(t, 42, RoleSeller)
	claims, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, RoleSeller, claims.Role)
	id, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParseToken(testSecret, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCourierStepsUseTokenSubject(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, 7, RoleCourier)

	api.deliveries.On("ConfirmPickup", int64(7), int64(42)).Return(nil).Once()
	api.deliveries.On("MarkInTransit", int64(7), int64(42)).Return(nil).Once()
	api.deliveries.On("ConfirmDelivery", int64(7), int64(42)).Return(&fulfillment.DeliveryResult{
		OrderID: 42,
		Status:  models.OrderStatusDelivered,
	}, nil).Twice()

	w := api.do(t, http.MethodPost, "/curior/orders/42/pickup", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusPickedUp, decodeBody(t, w)["status"])

	w = api.do(t, http.MethodPost, "/curior/orders/42/transit", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/curior/orders/42/deliver", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusDelivered, decodeBody(t, w)["status"])

	w = api.do(t, http.MethodPost, "/deliveryboy/deliver/42", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidPathID(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/curior/orders/abc/pickup", token(t, 7, RoleCourier), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/admin/orders/0/payout", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", database.ErrWalletNotFound), http.StatusNotFound},
		{fulfillment.ErrNotAssigned, http.StatusForbidden},
		{payout.ErrOrderNotDelivered, http.StatusConflict},
		{fulfillment.ErrInvalidTransition, http.StatusConflict},
		{payout.ErrNoSellers, http.StatusUnprocessableEntity},
		{assign.ErrNoCourier, http.StatusUnprocessableEntity},
		{fulfillment.ErrInvalidAmount, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			api := newTestAPI(t)
			api.payouts.On("ProcessSellerPayout", int64(5)).Return(nil, tt.err).Once()

			w := api.do(t, http.MethodPost, "/admin/orders/5/payout", token(t, 1, RoleAdmin), "")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal error", decodeBody(t, w)["error"])
			}
		})
	}
}

func TestCollectCODAmount(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, 7, RoleCourier)

	api.cod.On("CollectCOD", int64(7), int64(9), "150.5").
		Return(&models.CourierSettlement{OrderID: 9, CourierID: 7}, nil).Once()
	api.cod.On("CollectCOD", int64(7), int64(9), "0").
		Return(&models.CourierSettlement{OrderID: 9, CourierID: 7}, nil).Once()

	w := api.do(t, http.MethodPost, "/curior/orders/9/cod", tok, `{"amount":"150.50"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/curior/orders/9/cod", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/curior/orders/9/cod", tok, `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSettlementsPassesCursor(t *testing.T) {
	api := newTestAPI(t)
	api.cod.On("ListSettlements", int64(7), "abc", 20).
		Return(nil, fmt.Errorf("decode cursor: %w", store.ErrInvalidCursor)).Once()
	api.cod.On("ListSettlements", int64(7), "", 50).
		Return(&store.CursorPage{Items: []models.CourierSettlement{}}, nil).Once()

	w := api.do(t, http.MethodGet, "/curior/settlements?cursor=abc&limit=500", token(t, 7, RoleCourier), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/curior/settlements?limit=50", token(t, 7, RoleCourier), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignCourierByCityOrSeller(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, 1, RoleAdmin)

	api.assigner.On("AssignByCity", int64(3), "Pokhara").
		Return(&models.Courier{ID: 11, City: "Pokhara"}, nil).Once()
	api.assigner.On("AssignForSeller", int64(3), int64(0)).
		Return(nil, assign.ErrNoCourier).Once()

	w := api.do(t, http.MethodPost, "/admin/orders/3/assign", tok, `{"city":"Pokhara"}`)
	require.Equal(t, http.StatusOK, w.Code)
	courier := decodeBody(t, w)["courier"].(map[string]interface{})
	assert.EqualValues(t, 11, courier["id"])

	w = api.do(t, http.MethodPost, "/admin/orders/3/assign", tok, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReturnRequiresItems(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, 1, RoleAdmin)
	items := []fulfillment.ReturnedItem{{ProductID: 4, Quantity: 1}}

	api.orders.On("ProcessReturn", int64(8), items).
		Return(&fulfillment.Reversal{OrderID: 8, Status: models.OrderStatusReturned}, nil).Once()

	w := api.do(t, http.MethodPost, "/admin/orders/8/return", tok, `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/admin/orders/8/return", tok, `{"items":[{"product_id":4,"quantity":1}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusReturned, decodeBody(t, w)["status"])
}

func TestCancelAndFulfill(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, 1, RoleAdmin)

	api.orders.On("ProcessCancellation", int64(8)).
		Return(&fulfillment.Reversal{OrderID: 8, Status: models.OrderStatusCancelled}, nil).Once()
	api.orders.On("ProcessDelivery", int64(9)).
		Return(&fulfillment.DeliveryOutcome{OrderID: 9, Deferred: true}, nil).Once()

	w := api.do(t, http.MethodPost, "/admin/orders/8/cancel", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/admin/orders/9/fulfill", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["deferred"])
}

func TestSettleCourier(t *testing.T) {
	api := newTestAPI(t)
	api.cod.On("SettleCourier", int64(7)).Return(&fulfillment.SettleSummary{
		CourierID: 7,
		Count:     2,
		Total:     decimal.NewFromInt(900),
	}, nil).Once()

	w := api.do(t, http.MethodPost, "/admin/couriers/7/settle", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])
}

func TestSellerWallet(t *testing.T) {
	api := newTestAPI(t)
	api.wallets.On("Wallet", int64(5)).
		Return(&models.SellerWallet{SellerID: 5, Balance: decimal.NewFromInt(510)}, nil).Once()
	api.wallets.On("Transactions", int64(5), "", 20).
		Return(&store.CursorPage{Items: []models.WalletTransaction{}}, nil).Once()

	w := api.do(t, http.MethodGet, "/seller/wallet", token(t, 5, RoleSeller), "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "wallet")
	assert.Contains(t, body, "transactions")
}

func TestReconcileRoutesOnlyWhenConfigured(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/admin/reconcile/payouts", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
