package installment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementation ---

type mockQueryRepo struct {
	plans        []Plan
	total        int
	installments []Installment

	gotStatus   *PlanStatus
	gotLimit    int
	gotOffset   int
	gotDate     time.Time
	gotUpcoming bool
}

func (m *mockQueryRepo) ListPlans(_ context.Context, _ string, status *PlanStatus, limit, offset int) ([]Plan, int, error) {
	m.gotStatus = status
	m.gotLimit = limit
	m.gotOffset = offset
	return m.plans, m.total, nil
}

func (m *mockQueryRepo) GetPlan(_ context.Context, planID, customerID string) (*Plan, []Installment, error) {
	for i := range m.plans {
		if m.plans[i].ID == planID && m.plans[i].CustomerID == customerID {
			return &m.plans[i], m.installments, nil
		}
	}
	return nil, nil, ErrPlanNotFound
}

func (m *mockQueryRepo) ListDue(_ context.Context, _ string, date time.Time, upcoming bool) ([]Installment, error) {
	m.gotDate = date
	m.gotUpcoming = upcoming
	return m.installments, nil
}

// --- Tests ---

var queryNow = time.Date(2026, time.May, 20, 15, 45, 30, 0, time.UTC)

func newQueryService(repo *mockQueryRepo) *QueryService {
	return NewQueryServiceAt(repo, func() time.Time { return queryNow })
}

func TestListPlans_Defaults(t *testing.T) {
	repo := &mockQueryRepo{total: 42}
	svc := newQueryService(repo)

	page, err := svc.ListPlans(context.Background(), "cust-1", nil, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 20, repo.gotLimit)
	assert.Equal(t, 0, repo.gotOffset)
	assert.Nil(t, repo.gotStatus)
}

func TestListPlans_ClampsPageSize(t *testing.T) {
	repo := &mockQueryRepo{}
	svc := newQueryService(repo)

	page, err := svc.ListPlans(context.Background(), "cust-1", nil, 3, 500)
	require.NoError(t, err)

	assert.Equal(t, 100, page.PageSize)
	assert.Equal(t, 100, repo.gotLimit)
	assert.Equal(t, 200, repo.gotOffset)
}

func TestListPlans_StatusFilterPassedThrough(t *testing.T) {
	repo := &mockQueryRepo{}
	svc := newQueryService(repo)

	status := PlanActive
	_, err := svc.ListPlans(context.Background(), "cust-1", &status, 1, 10)
	require.NoError(t, err)

	require.NotNil(t, repo.gotStatus)
	assert.Equal(t, PlanActive, *repo.gotStatus)
}

func TestGetPlan(t *testing.T) {
	repo := &mockQueryRepo{
		plans: []Plan{{
			ID:         "plan-1",
			CustomerID: "cust-1",
			Principal:  decimal.NewFromInt(900),
		}},
		installments: []Installment{
			{SequenceNumber: 1}, {SequenceNumber: 2},
		},
	}
	svc := newQueryService(repo)

	detail, err := svc.GetPlan(context.Background(), "plan-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-1", detail.Plan.ID)
	assert.Len(t, detail.Installments, 2)
}

func TestGetPlan_WrongCustomerIsNotFound(t *testing.T) {
	repo := &mockQueryRepo{
		plans: []Plan{{ID: "plan-1", CustomerID: "cust-1"}},
	}
	svc := newQueryService(repo)

	_, err := svc.GetPlan(context.Background(), "plan-1", "cust-2")
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListUpcomingAndOverdue_SplitOnToday(t *testing.T) {
	repo := &mockQueryRepo{}
	svc := newQueryService(repo)

	midnight := time.Date(2026, time.May, 20, 0, 0, 0, 0, time.UTC)

	_, err := svc.ListUpcoming(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.True(t, repo.gotUpcoming)
	assert.Equal(t, midnight, repo.gotDate)

	_, err = svc.ListOverdue(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, repo.gotUpcoming)
	assert.Equal(t, midnight, repo.gotDate)
}
