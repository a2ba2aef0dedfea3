package installment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService exposes read-only views over persisted installment plans.
//
// "Upcoming" and "overdue" are derived by comparing due dates with the
// current date at query time; the stored installment status is not consulted
// for overdue detection, so the views are always fresh without a background
// status-flipping job.
type QueryService struct {
	repo QueryRepository
	now  func() time.Time
}

// NewQueryService creates a QueryService using the wall clock.
func NewQueryService(repo QueryRepository) *QueryService {
	return &QueryService{repo: repo, now: time.Now}
}

// NewQueryServiceAt creates a QueryService with a fixed clock, for tests.
func NewQueryServiceAt(repo QueryRepository, now func() time.Time) *QueryService {
	return &QueryService{repo: repo, now: now}
}

// PlanPage is one page of a customer's plans.
type PlanPage struct {
	Plans    []Plan
	Total    int
	Page     int
	PageSize int
}

// ListPlans returns a page of the customer's plans, newest first, optionally
// filtered by status. Page numbers start at 1; out-of-range page sizes are
// clamped.
func (s *QueryService) ListPlans(ctx context.Context, customerID string, status *PlanStatus, page, pageSize int) (*PlanPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	plans, total, err := s.repo.ListPlans(ctx, customerID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "list plans")
	}

	return &PlanPage{
		Plans:    plans,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// PlanDetail is a plan together with its full schedule.
type PlanDetail struct {
	Plan         Plan
	Installments []Installment
}

// GetPlan returns a single plan with its installments. The customer ID must
// match the plan's owner; a mismatch reports ErrPlanNotFound rather than
// disclosing the plan's existence.
func (s *QueryService) GetPlan(ctx context.Context, planID, customerID string) (*PlanDetail, error) {
	plan, installments, err := s.repo.GetPlan(ctx, planID, customerID)
	if err != nil {
		return nil, err
	}
	return &PlanDetail{Plan: *plan, Installments: installments}, nil
}

// ListUpcoming returns the customer's pending installments from active plans
// due today or later, ordered by due date ascending.
func (s *QueryService) ListUpcoming(ctx context.Context, customerID string) ([]Installment, error) {
	return s.repo.ListDue(ctx, customerID, today(s.now()), true)
}

// ListOverdue returns the customer's pending installments from active plans
// whose due date has passed, ordered by due date ascending.
func (s *QueryService) ListOverdue(ctx context.Context, customerID string) ([]Installment, error) {
	return s.repo.ListDue(ctx, customerID, today(s.now()), false)
}

// today truncates a timestamp to midnight UTC for date comparison.
func today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
