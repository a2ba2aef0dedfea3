package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates that a reservation asked for more units
// than the product currently has. Available is the stock at the time of the
// failed reservation, so callers can display it to the shopper.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// Product is a catalog item. Stock is the source of truth for availability:
// Available must always equal stock > 0 and is re-derived on every stock
// mutation, never set independently.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	TaxPercent    decimal.Decimal
	Stock         int
	Available     bool
}

// UnitPrice returns the effective selling price: the discount price when one
// is set, the regular price otherwise.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// Repository defines catalog reads and the inventory ledger operations.
//
// GetForUpdate must take a row lock when called inside a transaction so that
// concurrent reservations against the same product serialize. ReserveStock
// and RestoreStock are the ledger's check-and-decrement and its inverse;
// ReserveStock must be conditional on sufficient stock and report
// *InsufficientStockError when the condition fails.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetForUpdate(ctx context.Context, id string) (*Product, error)
	ReserveStock(ctx context.Context, id string, quantity int) error
	RestoreStock(ctx context.Context, id string, quantity int) error
}
