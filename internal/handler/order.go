package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shopledger/internal/domain/cart"
	"shopledger/internal/domain/catalog"
	"shopledger/internal/domain/coupon"
	"shopledger/internal/domain/installment"
	"shopledger/internal/domain/order"
)

// addressPayload is the wire form of an address.
type addressPayload struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressPayload) toDomain() order.Address {
	return order.Address(a)
}

// placeOrderPayload is the validated input for POST /api/orders. Unknown
// fields are rejected before the transaction starts.
type placeOrderPayload struct {
	ShippingAddress   addressPayload   `json:"shipping_address"`
	BillingAddress    *addressPayload  `json:"billing_address,omitempty"`
	PaymentMethod     string           `json:"payment_method"`
	CouponCode        string           `json:"coupon_code,omitempty"`
	InstallmentTenure int              `json:"installment_tenure,omitempty"`
	InstallmentRate   *decimal.Decimal `json:"installment_rate,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	var payload placeOrderPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	req := order.PlaceOrderRequest{
		CustomerID:        cid,
		ShippingAddress:   payload.ShippingAddress.toDomain(),
		PaymentMethod:     order.PaymentMethod(payload.PaymentMethod),
		CouponCode:        payload.CouponCode,
		InstallmentTenure: payload.InstallmentTenure,
		InstallmentRate:   payload.InstallmentRate,
	}
	if payload.BillingAddress != nil {
		req.BillingAddress = payload.BillingAddress.toDomain()
	}

	result, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, result.Order, result.Plan)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"), cid)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, nil)
	})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), r.PathValue("id"), cid)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, nil)
	})
}

// writeOrderError maps domain errors to HTTP responses. Client mistakes
// get their display detail (product names, coupon rule); anything
// unexpected is logged and returned as a bare 500.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		tenureErr     *installment.InvalidTenureError
		stockErr      *catalog.InsufficientStockError
		stateErr      *order.StateError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &tenureErr):
		writeError(w, http.StatusBadRequest, tenureErr.Error())
	case errors.Is(err, cart.ErrEmpty):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, "product not found")
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, stateErr.Error())
	case isCouponError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zctx.From(r.Context()).Error("order operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isCouponError(err error) bool {
	return errors.Is(err, coupon.ErrInvalidCoupon) ||
		errors.Is(err, coupon.ErrExpired) ||
		errors.Is(err, coupon.ErrUsageLimitReached) ||
		errors.Is(err, coupon.ErrBelowMinimum) ||
		errors.Is(err, coupon.ErrAlreadyUsed)
}

func encodeOrder(e *jx.Encoder, o *order.Order, plan *installment.Plan) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.OrderNumber) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("order_status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range o.LineItems {
					encodeLineItem(e, li)
				}
			})
		})
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("billing_address", func(e *jx.Encoder) { encodeAddress(e, o.BillingAddress) })
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("shipping_cost", func(e *jx.Encoder) { money(e, o.ShippingCost) })
		e.Field("tax_amount", func(e *jx.Encoder) { money(e, o.TaxAmount) })
		e.Field("discount_amount", func(e *jx.Encoder) { money(e, o.DiscountAmount) })
		e.Field("final_amount", func(e *jx.Encoder) { money(e, o.FinalAmount) })
		if o.InstallmentTenure != nil {
			e.Field("installment_tenure", func(e *jx.Encoder) { e.Int(*o.InstallmentTenure) })
		}
		if plan != nil {
			e.Field("installment_plan", func(e *jx.Encoder) { encodePlan(e, *plan) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(timeFormat)) })
	})
}

func encodeLineItem(e *jx.Encoder, li order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(li.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(li.Name) })
		e.Field("unit_price", func(e *jx.Encoder) { money(e, li.UnitPrice) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
		if li.Variant != "" {
			e.Field("variant", func(e *jx.Encoder) { e.Str(li.Variant) })
		}
		e.Field("line_total", func(e *jx.Encoder) { money(e, li.LineTotal) })
	})
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		if a.Line2 != "" {
			e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
		}
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		if a.State != "" {
			e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		}
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		if a.Phone != "" {
			e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		}
	})
}
