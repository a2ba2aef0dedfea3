// Package cart defines the external shopping cart contract. The core only
// ever reads a snapshot of a customer's cart and clears it after a
// successful order; it never mutates cart contents.
package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrEmpty is returned when a customer's cart has no items.
var ErrEmpty = errors.New("cart is empty")

// Item is one cart line: a product reference, a quantity, and an optional
// variant selector (size, colour) carried through to the order snapshot.
type Item struct {
	ProductID string
	Quantity  int
	Variant   string
}

// Provider exposes the cart store. Snapshot returns the current items in
// insertion order; Clear removes the customer's cart entirely.
type Provider interface {
	Snapshot(ctx context.Context, customerID string) ([]Item, error)
	Clear(ctx context.Context, customerID string) error
}
