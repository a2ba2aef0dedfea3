package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopledger/internal/domain/cart"
	"shopledger/internal/domain/catalog"
	"shopledger/internal/domain/coupon"
	"shopledger/internal/domain/installment"
	"shopledger/internal/domain/order"
)

// --- Mock implementations ---

type mockProducts struct {
	byID    map[string]*catalog.Product
	listErr error
}

func (m *mockProducts) List(_ context.Context) ([]catalog.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]catalog.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockProducts) GetForUpdate(ctx context.Context, id string) (*catalog.Product, error) {
	return m.GetByID(ctx, id)
}

func (m *mockProducts) ReserveStock(_ context.Context, id string, quantity int) error {
	p, ok := m.byID[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.Stock < quantity {
		return &catalog.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	return nil
}

func (m *mockProducts) RestoreStock(_ context.Context, id string, quantity int) error {
	if p, ok := m.byID[id]; ok {
		p.Stock += quantity
	}
	return nil
}

type mockCoupons struct {
	byCode map[string]*coupon.Coupon
}

func (m *mockCoupons) FindByCodeForUpdate(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCoupons) HasRedemption(_ context.Context, _, _ string) (bool, error) { return false, nil }
func (m *mockCoupons) IncrementUsage(_ context.Context, _ string) error           { return nil }
func (m *mockCoupons) DecrementUsage(_ context.Context, _ string) error           { return nil }
func (m *mockCoupons) RecordRedemption(_ context.Context, _, _, _ string) error   { return nil }
func (m *mockCoupons) VoidRedemption(_ context.Context, _ string) error           { return nil }

type mockOrders struct {
	byID map[string]*order.Order
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrders) GetByID(_ context.Context, orderID, customerID string) (*order.Order, error) {
	o, ok := m.byID[orderID]
	if !ok || o.CustomerID != customerID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) GetForUpdate(ctx context.Context, orderID, customerID string) (*order.Order, error) {
	return m.GetByID(ctx, orderID, customerID)
}

func (m *mockOrders) UpdateStatus(_ context.Context, orderID string, status order.Status, paymentStatus order.PaymentStatus) error {
	o, ok := m.byID[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.PaymentStatus = paymentStatus
	return nil
}

type mockPlans struct {
	created *installment.Plan
}

func (m *mockPlans) CreatePlan(_ context.Context, plan *installment.Plan, _ []installment.Installment) error {
	m.created = plan
	return nil
}

func (m *mockPlans) CancelPlanByOrder(_ context.Context, _ string) error { return nil }

type mockPlanQueries struct {
	plans        []installment.Plan
	installments []installment.Installment
}

func (m *mockPlanQueries) ListPlans(_ context.Context, _ string, _ *installment.PlanStatus, _, _ int) ([]installment.Plan, int, error) {
	return m.plans, len(m.plans), nil
}

func (m *mockPlanQueries) GetPlan(_ context.Context, planID, customerID string) (*installment.Plan, []installment.Installment, error) {
	for i := range m.plans {
		if m.plans[i].ID == planID && m.plans[i].CustomerID == customerID {
			return &m.plans[i], m.installments, nil
		}
	}
	return nil, nil, installment.ErrPlanNotFound
}

func (m *mockPlanQueries) ListDue(_ context.Context, _ string, _ time.Time, _ bool) ([]installment.Installment, error) {
	return m.installments, nil
}

type passthroughUOW struct {
	repos order.TxRepos
}

func (u *passthroughUOW) InTx(_ context.Context, fn func(tx order.TxRepos) error) error {
	return fn(u.repos)
}

type mockCarts struct {
	items map[string][]cart.Item
}

func (m *mockCarts) Snapshot(_ context.Context, customerID string) ([]cart.Item, error) {
	return m.items[customerID], nil
}

func (m *mockCarts) Clear(_ context.Context, _ string) error { return nil }

type nopEvents struct{}

func (nopEvents) PublishOrderPlaced(_ context.Context, _ order.PlacedEvent) error       { return nil }
func (nopEvents) PublishOrderCancelled(_ context.Context, _ order.CancelledEvent) error { return nil }

// --- Harness ---

type harness struct {
	mux      *http.ServeMux
	products *mockProducts
	carts    *mockCarts
	queries  *mockPlanQueries
}

func newHarness() *harness {
	products := &mockProducts{byID: make(map[string]*catalog.Product)}
	coupons := &mockCoupons{byCode: make(map[string]*coupon.Coupon)}
	orders := &mockOrders{byID: make(map[string]*order.Order)}
	carts := &mockCarts{items: make(map[string][]cart.Item)}
	queries := &mockPlanQueries{}

	uow := &passthroughUOW{repos: order.TxRepos{
		Products: products,
		Coupons:  coupons,
		Orders:   orders,
		Plans:    &mockPlans{},
	}}
	svc := order.NewService(uow, carts, coupon.NewGuard(), nopEvents{}, order.Config{}, zap.NewNop())

	h := New(svc, products, installment.NewQueryService(queries))
	mux := http.NewServeMux()
	h.Register(mux)

	return &harness{mux: mux, products: products, carts: carts, queries: queries}
}

func (h *harness) do(t *testing.T, method, path, customer, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if customer != "" {
		req.Header.Set(customerHeader, customer)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const placeOrderBody = `{
	"shipping_address": {"name": "Ada", "line1": "12 Analytical Way", "city": "London", "postal_code": "N1"},
	"payment_method": "cash_on_delivery"
}`

// --- Tests ---

func TestPlaceOrder_MissingCustomerHeader(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", "", placeOrderBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_RejectsUnknownFields(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", `{"payment_method": "online", "surprise": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "surprise")
}

func TestPlaceOrder_MalformedJSON(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", `{"payment_method": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_ValidationErrorIs400(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", `{"payment_method": "barter"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_EmptyCartIs400(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", placeOrderBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "cart is empty", body["message"])
}

func TestPlaceOrder_InsufficientStockIs409(t *testing.T) {
	h := newHarness()
	h.products.byID["p1"] = &catalog.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(10), Stock: 1}
	h.carts.items["cust-1"] = []cart.Item{{ProductID: "p1", Quantity: 5}}

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", placeOrderBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "Widget")
}

func TestPlaceOrder_BadCouponIs422(t *testing.T) {
	h := newHarness()
	h.products.byID["p1"] = &catalog.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5}
	h.carts.items["cust-1"] = []cart.Item{{ProductID: "p1", Quantity: 1}}

	body := `{
		"shipping_address": {"name": "Ada", "line1": "12 Analytical Way", "city": "London", "postal_code": "N1"},
		"payment_method": "online",
		"coupon_code": "NOPE"
	}`
	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlaceOrder_Success(t *testing.T) {
	h := newHarness()
	h.products.byID["p1"] = &catalog.Product{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("10.50"), Stock: 5}
	h.carts.items["cust-1"] = []cart.Item{{ProductID: "p1", Quantity: 2}}

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", placeOrderBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, "cust-1", body["customer_id"])
	assert.Equal(t, "pending", body["order_status"])
	assert.EqualValues(t, 21, body["subtotal"])
	assert.EqualValues(t, 21, body["final_amount"])

	items, ok := body["line_items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestGetOrder_NotFoundIs404(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/orders/nope", "cust-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrder_RoundTrip(t *testing.T) {
	h := newHarness()
	h.products.byID["p1"] = &catalog.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5}
	h.carts.items["cust-1"] = []cart.Item{{ProductID: "p1", Quantity: 1}}

	rec := h.do(t, http.MethodPost, "/api/orders", "cust-1", placeOrderBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decodeBody(t, rec)["id"].(string)

	rec = h.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", "cust-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "cancelled", body["order_status"])

	// Cancelling again conflicts with the current state.
	rec = h.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", "cust-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListProducts(t *testing.T) {
	h := newHarness()
	h.products.byID["p1"] = &catalog.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(10), Stock: 3, Available: true}

	rec := h.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0]["name"])
	assert.EqualValues(t, true, products[0]["available"])
}

func TestListPlans_UnknownStatusIs400(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/installment-plans?status=paused", "cust-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPlans(t *testing.T) {
	h := newHarness()
	h.queries.plans = []installment.Plan{{
		ID:         "plan-1",
		CustomerID: "cust-1",
		Principal:  decimal.NewFromInt(900),
		Periodic:   decimal.NewFromInt(150),
		Tenure:     6,
		Status:     installment.PlanActive,
		StartDate:  time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC),
	}}

	rec := h.do(t, http.MethodGet, "/api/installment-plans?status=active", "cust-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	plans, ok := body["plans"].([]any)
	require.True(t, ok)
	require.Len(t, plans, 1)

	plan := plans[0].(map[string]any)
	assert.Equal(t, "plan-1", plan["id"])
	assert.EqualValues(t, 150, plan["periodic_installment"])
	assert.Equal(t, "2026-04-10", plan["start_date"])
}

func TestGetPlan_NotFoundIs404(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/installment-plans/nope", "cust-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUpcoming(t *testing.T) {
	h := newHarness()
	h.queries.installments = []installment.Installment{{
		ID:             "inst-1",
		PlanID:         "plan-1",
		SequenceNumber: 1,
		DueDate:        time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC),
		Amount:         decimal.NewFromInt(150),
		Status:         installment.StatusPending,
	}}

	rec := h.do(t, http.MethodGet, "/api/installments/upcoming", "cust-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	installments, ok := body["installments"].([]any)
	require.True(t, ok)
	require.Len(t, installments, 1)

	inst := installments[0].(map[string]any)
	assert.Equal(t, "2026-06-10", inst["due_date"])
	assert.Equal(t, "pending", inst["status"])
}

func TestListOverdue_RequiresCustomer(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/installments/overdue", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
