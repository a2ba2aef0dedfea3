package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"shopledger/internal/domain/catalog"
	"shopledger/internal/domain/coupon"
	"shopledger/internal/domain/installment"
)

// PaymentMethod is how the customer chose to pay.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentOnline         PaymentMethod = "online"
	PaymentInstallment    PaymentMethod = "installment"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentOnline, PaymentInstallment:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Address is a shipping or billing address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone,omitempty"`
}

// Empty reports whether the address carries no data at all.
func (a Address) Empty() bool {
	return a == Address{}
}

// LineItem is a point-in-time price snapshot of one cart line, embedded in
// the order at creation. It must never be recomputed from the live catalog
// afterwards.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Variant   string          `json:"variant,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order is a placed order. FinalAmount = Subtotal + ShippingCost + TaxAmount
// - DiscountAmount, fixed at creation and never recomputed. Once created the
// order is immutable except for status transitions.
type Order struct {
	ID                string
	OrderNumber       string
	CustomerID        string
	LineItems         []LineItem
	ShippingAddress   Address
	BillingAddress    Address
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	Status            Status
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	TaxAmount         decimal.Decimal
	DiscountAmount    decimal.Decimal
	FinalAmount       decimal.Decimal
	CouponID          *string
	InstallmentTenure *int
	CreatedAt         time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID, customerID string) (*Order, error)
	// GetForUpdate loads the order with a row lock so that concurrent
	// cancellations of the same order serialize.
	GetForUpdate(ctx context.Context, orderID, customerID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, status Status, paymentStatus PaymentStatus) error
}

// TxRepos bundles the transaction-scoped repositories handed to a unit of
// work closure. Every mutation performed through them commits or rolls back
// as one.
type TxRepos struct {
	Products catalog.Repository
	Coupons  coupon.Repository
	Orders   Repository
	Plans    installment.Repository
}

// UnitOfWork runs a closure inside a single database transaction. The
// closure's error aborts and rolls back everything.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx TxRepos) error) error
}
