package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order does not exist or belongs to a
// different customer.
var ErrNotFound = errors.New("order not found")

// ValidationError indicates missing or malformed input, rejected before any
// mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError indicates an operation attempted against an order whose status
// does not permit it, such as cancelling a shipped order.
type StateError struct {
	OrderNumber string
	Status      Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %s cannot be modified in status %q", e.OrderNumber, e.Status)
}
