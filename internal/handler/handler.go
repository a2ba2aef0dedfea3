// Package handler exposes the order and installment core over HTTP.
//
// Authentication is out of scope for this service: the customer identity
// arrives on the X-Customer-ID header, set by the fronting auth layer.
package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"shopledger/internal/domain/catalog"
	"shopledger/internal/domain/installment"
	"shopledger/internal/domain/order"
)

// customerHeader carries the authenticated customer identity.
const customerHeader = "X-Customer-ID"

// Handler holds the domain services behind the HTTP surface.
type Handler struct {
	orders   *order.Service
	products catalog.Repository
	plans    *installment.QueryService
}

// New creates a Handler.
func New(orders *order.Service, products catalog.Repository, plans *installment.QueryService) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		plans:    plans,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/installment-plans", h.listPlans)
	mux.HandleFunc("GET /api/installment-plans/{id}", h.getPlan)
	mux.HandleFunc("GET /api/installments/upcoming", h.listUpcoming)
	mux.HandleFunc("GET /api/installments/overdue", h.listOverdue)
}

// customerID extracts the customer identity, writing a 401 when absent.
func customerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(customerHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing "+customerHeader+" header")
		return "", false
	}
	return id, true
}

// writeJSON streams a jx-encoded object to the client.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the error body shared by all endpoints.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// money encodes a monetary amount as a JSON number with 2 decimal places.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}
