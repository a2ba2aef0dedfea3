package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentSummary is the slice of plan data carried on an OrderPlaced
// event for deferred-payment orders.
type InstallmentSummary struct {
	PlanID       string          `json:"plan_id"`
	Tenure       int             `json:"tenure"`
	Periodic     decimal.Decimal `json:"periodic_installment"`
	FirstDueDate time.Time       `json:"first_due_date"`
}

// PlacedEvent is emitted after an order transaction commits. It carries
// enough for an out-of-scope notifier to compose a confirmation message.
type PlacedEvent struct {
	OrderID       string              `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    string              `json:"customer_id"`
	FinalAmount   decimal.Decimal     `json:"final_amount"`
	PaymentMethod PaymentMethod       `json:"payment_method"`
	Installment   *InstallmentSummary `json:"installment,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// CancelledEvent is emitted after a cancellation transaction commits.
type CancelledEvent struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	CustomerID    string        `json:"customer_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// EventPublisher delivers domain events to interested collaborators.
// Publishing happens strictly after commit; failures are logged by the
// caller and never undo the transaction.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, ev PlacedEvent) error
	PublishOrderCancelled(ctx context.Context, ev CancelledEvent) error
}
