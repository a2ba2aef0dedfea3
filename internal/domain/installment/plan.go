// Package installment holds the EMI ledger: the pure amortization engine,
// the installment plan model, and the read-side query service.
package installment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PlanStatus is the lifecycle state of an installment plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanDefaulted PlanStatus = "defaulted"
	// PlanCancelled marks plans whose order was cancelled before completion.
	// Paid installments of a cancelled plan are kept as-is.
	PlanCancelled PlanStatus = "cancelled"
)

// Status is the settlement state of a single installment.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// ErrPlanNotFound is returned when a plan does not exist or belongs to a
// different customer.
var ErrPlanNotFound = errors.New("installment plan not found")

// Plan is a persisted amortization schedule for one order. It is created
// once and immutable except for Status, PaidCount, RemainingCount, and
// NextDueDate as installments are settled.
type Plan struct {
	ID                 string
	OrderID            string
	CustomerID         string
	Principal          decimal.Decimal
	AnnualInterestRate decimal.Decimal
	Tenure             int
	Periodic           decimal.Decimal
	TotalAmount        decimal.Decimal
	TotalInterest      decimal.Decimal
	StartDate          time.Time
	NextDueDate        *time.Time
	Status             PlanStatus
	PaidCount          int
	RemainingCount     int
	CreatedAt          time.Time
}

// Installment is one scheduled payment in a plan. SequenceNumber is unique
// within the plan and contiguous from 1; the amounts across a plan's
// installments sum exactly to the plan's TotalAmount.
type Installment struct {
	ID               string
	PlanID           string
	SequenceNumber   int
	DueDate          time.Time
	Amount           decimal.Decimal
	PrincipalPortion decimal.Decimal
	InterestPortion  decimal.Decimal
	Status           Status
	PaidAt           *time.Time
}

// Repository is the write side used inside the order transaction.
type Repository interface {
	CreatePlan(ctx context.Context, plan *Plan, installments []Installment) error
	// CancelPlanByOrder moves an active plan for the given order to
	// PlanCancelled. Missing plans are not an error: most orders have none.
	CancelPlanByOrder(ctx context.Context, orderID string) error
}

// QueryRepository is the read side backing the query service.
type QueryRepository interface {
	ListPlans(ctx context.Context, customerID string, status *PlanStatus, limit, offset int) ([]Plan, int, error)
	GetPlan(ctx context.Context, planID, customerID string) (*Plan, []Installment, error)
	// ListDue returns pending installments of active plans for the customer,
	// split by the given date: upcoming=true selects dueDate >= date,
	// upcoming=false selects dueDate < date. Ordered by due date ascending.
	ListDue(ctx context.Context, customerID string, date time.Time, upcoming bool) ([]Installment, error)
}
