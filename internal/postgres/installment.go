package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"shopledger/internal/domain/installment"
)

const (
	createPlanSQL = `INSERT INTO installment_plans (id, order_id, customer_id, principal,
		annual_interest_rate, tenure, periodic_installment, total_amount, total_interest,
		start_date, next_due_date, status, paid_count, remaining_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	createInstallmentSQL = `INSERT INTO installments (id, plan_id, sequence_number, due_date,
		amount, principal_portion, interest_portion, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	cancelPlanByOrderSQL = `UPDATE installment_plans SET status = 'cancelled'
		WHERE order_id = $1 AND status = 'active'`

	planColumns = `id, order_id, customer_id, principal, annual_interest_rate, tenure,
		periodic_installment, total_amount, total_interest, start_date, next_due_date,
		status, paid_count, remaining_count, created_at`

	listPlansSQL = `SELECT ` + planColumns + ` FROM installment_plans
		WHERE customer_id = $1 AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	countPlansSQL = `SELECT COUNT(*) FROM installment_plans
		WHERE customer_id = $1 AND ($2::TEXT IS NULL OR status = $2)`

	getPlanSQL = `SELECT ` + planColumns + ` FROM installment_plans
		WHERE id = $1 AND customer_id = $2`

	listPlanInstallmentsSQL = `SELECT id, plan_id, sequence_number, due_date, amount,
		principal_portion, interest_portion, status, paid_at
		FROM installments WHERE plan_id = $1 ORDER BY sequence_number`

	listDueSQL = `SELECT i.id, i.plan_id, i.sequence_number, i.due_date, i.amount,
		i.principal_portion, i.interest_portion, i.status, i.paid_at
		FROM installments i
		JOIN installment_plans p ON p.id = i.plan_id
		WHERE p.customer_id = $1 AND p.status = 'active' AND i.status = 'pending'
		AND ((NOT $3::BOOLEAN AND i.due_date < $2) OR ($3 AND i.due_date >= $2))
		ORDER BY i.due_date, i.sequence_number`
)

var (
	_ installment.Repository      = (*InstallmentRepository)(nil)
	_ installment.QueryRepository = (*InstallmentRepository)(nil)
)

// InstallmentRepository implements both the write and the read side of the
// installment ledger, backed by PostgreSQL.
type InstallmentRepository struct {
	db DB
}

// NewInstallmentRepository returns an InstallmentRepository over the given DB.
func NewInstallmentRepository(db DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

// CreatePlan persists the plan and all its installments in one batch.
func (r *InstallmentRepository) CreatePlan(ctx context.Context, plan *installment.Plan, installments []installment.Installment) error {
	_, err := r.db.Exec(ctx, createPlanSQL,
		plan.ID, plan.OrderID, plan.CustomerID, plan.Principal,
		plan.AnnualInterestRate, plan.Tenure, plan.Periodic, plan.TotalAmount, plan.TotalInterest,
		plan.StartDate, plan.NextDueDate, string(plan.Status), plan.PaidCount, plan.RemainingCount,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating installment plan %q: %w", plan.ID, err)
	}

	batch := &pgx.Batch{}
	for _, inst := range installments {
		batch.Queue(createInstallmentSQL,
			inst.ID, inst.PlanID, inst.SequenceNumber, inst.DueDate,
			inst.Amount, inst.PrincipalPortion, inst.InterestPortion, string(inst.Status),
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating installments for plan %q: %w", plan.ID, err)
	}
	return nil
}

// CancelPlanByOrder moves the order's active plan to cancelled. Orders
// without a plan are a no-op.
func (r *InstallmentRepository) CancelPlanByOrder(ctx context.Context, orderID string) error {
	_, err := r.db.Exec(ctx, cancelPlanByOrderSQL, orderID)
	if err != nil {
		return fmt.Errorf("cancelling plan for order %q: %w", orderID, err)
	}
	return nil
}

// ListPlans returns one page of the customer's plans plus the total count.
func (r *InstallmentRepository) ListPlans(ctx context.Context, customerID string, status *installment.PlanStatus, limit, offset int) ([]installment.Plan, int, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	var total int
	if err := r.db.QueryRow(ctx, countPlansSQL, customerID, statusArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting plans: %w", err)
	}

	rows, err := r.db.Query(ctx, listPlansSQL, customerID, statusArg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing plans: %w", err)
	}
	plans, err := pgx.CollectRows(rows, scanPlan)
	if err != nil {
		return nil, 0, fmt.Errorf("listing plans: %w", err)
	}
	return plans, total, nil
}

// GetPlan returns a plan with its installments, scoped to the customer.
func (r *InstallmentRepository) GetPlan(ctx context.Context, planID, customerID string) (*installment.Plan, []installment.Installment, error) {
	rows, err := r.db.Query(ctx, getPlanSQL, planID, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting plan %q: %w", planID, err)
	}
	plan, err := pgx.CollectExactlyOneRow(rows, scanPlan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, installment.ErrPlanNotFound
		}
		return nil, nil, fmt.Errorf("getting plan %q: %w", planID, err)
	}

	rows, err = r.db.Query(ctx, listPlanInstallmentsSQL, planID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing installments of plan %q: %w", planID, err)
	}
	installments, err := pgx.CollectRows(rows, scanInstallment)
	if err != nil {
		return nil, nil, fmt.Errorf("listing installments of plan %q: %w", planID, err)
	}
	return &plan, installments, nil
}

// ListDue returns the customer's pending installments from active plans on
// one side of the given date: upcoming selects due-on-or-after, otherwise
// due-before.
func (r *InstallmentRepository) ListDue(ctx context.Context, customerID string, date time.Time, upcoming bool) ([]installment.Installment, error) {
	rows, err := r.db.Query(ctx, listDueSQL, customerID, date, upcoming)
	if err != nil {
		return nil, fmt.Errorf("listing due installments: %w", err)
	}
	return pgx.CollectRows(rows, scanInstallment)
}

func scanPlan(row pgx.CollectableRow) (installment.Plan, error) {
	var (
		p      installment.Plan
		status string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.CustomerID, &p.Principal, &p.AnnualInterestRate, &p.Tenure,
		&p.Periodic, &p.TotalAmount, &p.TotalInterest, &p.StartDate, &p.NextDueDate,
		&status, &p.PaidCount, &p.RemainingCount, &p.CreatedAt,
	)
	p.Status = installment.PlanStatus(status)
	return p, err
}

func scanInstallment(row pgx.CollectableRow) (installment.Installment, error) {
	var (
		inst   installment.Installment
		status string
	)
	err := row.Scan(
		&inst.ID, &inst.PlanID, &inst.SequenceNumber, &inst.DueDate, &inst.Amount,
		&inst.PrincipalPortion, &inst.InterestPortion, &status, &inst.PaidAt,
	)
	inst.Status = installment.Status(status)
	return inst, err
}
