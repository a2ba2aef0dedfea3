//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)

func TestPlaceOrder_NoCustomerHeader(t *testing.T) {
	resp := doPost(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cash_on_delivery",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	const customer = "it-empty-cart"
	fillCart(t, customer) // no lines

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cash_on_delivery",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Message != "cart is empty" {
		t.Errorf("message: got %q", errResp.Message)
	}
}

func TestPlaceOrder_UnknownProductInCart(t *testing.T) {
	const customer = "it-unknown-product"
	fillCart(t, customer, cartLine("prod-nope", 1))

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cash_on_delivery",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	const customer = "it-out-of-stock"
	// prod-barista-scale is seeded with zero stock.
	fillCart(t, customer, cartLine("prod-barista-scale", 1))

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cash_on_delivery",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if !strings.Contains(errResp.Message, "Barista Precision Scale") {
		t.Errorf("message should name the product, got %q", errResp.Message)
	}
}

func TestPlaceOrder_MissingAddress(t *testing.T) {
	const customer = "it-no-address"
	fillCart(t, customer, cartLine("prod-ceramic-dripper", 1))

	resp := doPostAs(t, "/api/orders", orderRequest{
		PaymentMethod: "cash_on_delivery",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_CashOnDelivery(t *testing.T) {
	const customer = "it-cod"
	stockBefore := productStock(t, "prod-ceramic-dripper")

	// 2 x 24.00 = 48.00 subtotal, 8% tax = 3.84.
	order := placeOrder(t, customer, cartLine("prod-ceramic-dripper", 2))

	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Errorf("order number %q does not match pattern", order.OrderNumber)
	}
	if order.OrderStatus != "pending" || order.PaymentStatus != "pending" {
		t.Errorf("statuses: got %s/%s, want pending/pending", order.OrderStatus, order.PaymentStatus)
	}
	if order.Subtotal != 48.00 {
		t.Errorf("subtotal: got %v, want 48.00", order.Subtotal)
	}
	if order.TaxAmount != 3.84 {
		t.Errorf("tax: got %v, want 3.84", order.TaxAmount)
	}
	if order.FinalAmount != 51.84 {
		t.Errorf("final: got %v, want 51.84", order.FinalAmount)
	}
	if len(order.LineItems) != 1 || order.LineItems[0].LineTotal != 48.00 {
		t.Errorf("line items: got %+v", order.LineItems)
	}
	if order.InstallmentPlan != nil {
		t.Error("cash order must not carry a plan")
	}

	if got := productStock(t, "prod-ceramic-dripper"); got != stockBefore-2 {
		t.Errorf("stock after order: got %d, want %d", got, stockBefore-2)
	}

	// The cart is cleared after a successful order; placing again is a 400.
	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "cash_on_delivery",
	}, customer)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("replay after cleared cart: expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	const customer = "it-coupon"
	fillCart(t, customer, cartLine("prod-ceramic-dripper", 2))

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "online",
		CouponCode:      "SAVE10",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	// 48.00 subtotal, 10% coupon = 4.80, tax 3.84.
	if order.DiscountAmount != 4.80 {
		t.Errorf("discount: got %v, want 4.80", order.DiscountAmount)
	}
	if order.FinalAmount != 47.04 {
		t.Errorf("final: got %v, want 47.04", order.FinalAmount)
	}
}

func TestPlaceOrder_CouponBelowMinimum(t *testing.T) {
	const customer = "it-coupon-min"
	// WELCOME50 requires a 200.00 subtotal.
	fillCart(t, customer, cartLine("prod-ceramic-dripper", 1))

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "online",
		CouponCode:      "WELCOME50",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InvalidCouponKeepsStock(t *testing.T) {
	const customer = "it-coupon-bad"
	stockBefore := productStock(t, "prod-ceramic-dripper")
	fillCart(t, customer, cartLine("prod-ceramic-dripper", 1))

	resp := doPostAs(t, "/api/orders", orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "online",
		CouponCode:      "NOSUCHCODE",
	}, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	if got := productStock(t, "prod-ceramic-dripper"); got != stockBefore {
		t.Errorf("stock must be untouched after failed order: got %d, want %d", got, stockBefore)
	}
}

func TestGetOrder(t *testing.T) {
	const customer = "it-get-order"
	placed := placeOrder(t, customer, cartLine("prod-ceramic-dripper", 1))

	resp := doGetAs(t, "/api/orders/"+placed.ID, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeJSON[orderResponse](t, resp)
	if got.OrderNumber != placed.OrderNumber {
		t.Errorf("order number: got %q, want %q", got.OrderNumber, placed.OrderNumber)
	}

	// Another customer cannot see it.
	other := doGetAs(t, "/api/orders/"+placed.ID, "it-get-order-other")
	defer other.Body.Close()
	if other.StatusCode != http.StatusNotFound {
		t.Errorf("cross-customer read: expected 404, got %d", other.StatusCode)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	const customer = "it-cancel"
	stockBefore := productStock(t, "prod-ceramic-dripper")
	placed := placeOrder(t, customer, cartLine("prod-ceramic-dripper", 3))

	resp := doPostAs(t, "/api/orders/"+placed.ID+"/cancel", nil, customer)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancelled := decodeJSON[orderResponse](t, resp)
	if cancelled.OrderStatus != "cancelled" {
		t.Errorf("status: got %q, want cancelled", cancelled.OrderStatus)
	}

	if got := productStock(t, "prod-ceramic-dripper"); got != stockBefore {
		t.Errorf("stock after cancel: got %d, want %d", got, stockBefore)
	}

	// A second cancel conflicts with the terminal state.
	again := doPostAs(t, "/api/orders/"+placed.ID+"/cancel", nil, customer)
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Errorf("double cancel: expected 409, got %d", again.StatusCode)
	}
}

func TestPlaceOrder_SingleUseCouponParallelRequests(t *testing.T) {
	const customer = "it-coupon-race"
	// WELCOME50 is single use per customer; one espresso machine clears
	// its 200.00 minimum. Both requests race on the same cart and coupon,
	// and the coupon row lock must let only one of them redeem.
	fillCart(t, customer, cartLine("prod-espresso-machine", 1))

	body, err := json.Marshal(orderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "online",
		CouponCode:      "WELCOME50",
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	const attempts = 2
	codes := make(chan int, attempts)
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(context.Background(),
				http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			if err != nil {
				errs <- err
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Customer-ID", customer)

			resp, err := httpClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Fatalf("place order: %v", err)
	}

	created := 0
	for code := range codes {
		switch {
		case code == http.StatusCreated:
			created++
		case code >= 500:
			t.Fatalf("unexpected server error %d", code)
		}
	}
	if created != 1 {
		t.Fatalf("parallel single-use redemption: got %d created orders, want 1", created)
	}
}
