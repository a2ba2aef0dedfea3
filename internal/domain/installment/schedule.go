package installment

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Tenures supported for installment plans, in months.
var Tenures = []int{3, 6, 9, 12}

var (
	// ErrNonPositivePrincipal rejects schedules for a zero or negative amount.
	ErrNonPositivePrincipal = errors.New("principal must be positive")
	// ErrNegativeRate rejects negative annual interest rates.
	ErrNegativeRate = errors.New("annual rate must not be negative")
)

// InvalidTenureError indicates a tenure outside the supported set.
type InvalidTenureError struct {
	Tenure int
}

func (e *InvalidTenureError) Error() string {
	return fmt.Sprintf("invalid tenure %d: must be one of %v", e.Tenure, Tenures)
}

// ValidTenure reports whether t is a supported tenure.
func ValidTenure(t int) bool {
	for _, v := range Tenures {
		if v == t {
			return true
		}
	}
	return false
}

// Schedule is the result of an amortization computation: the fixed periodic
// installment and the full per-period breakdown. The installment amounts sum
// exactly to TotalAmount and the principal portions sum exactly to the
// principal; any rounding residue is reconciled into the final period.
type Schedule struct {
	Periodic      decimal.Decimal
	TotalAmount   decimal.Decimal
	TotalInterest decimal.Decimal
	Installments  []Installment
}

var (
	twelve     = decimal.NewFromInt(12)
	decHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// ComputeSchedule computes an amortization schedule for the given principal,
// annual interest rate (percent), and tenure in months, with due dates one
// calendar month apart starting one month after startDate.
//
// A zero rate splits the principal evenly across periods. A positive rate
// uses the standard amortizing-loan formula with monthly rate
// r = annualRatePercent/12/100:
//
//	installment = principal * r * (1+r)^tenure / ((1+r)^tenure - 1)
//
// Every monetary value is rounded to 2 decimal places at the point of
// computation rather than accumulated in un-rounded form across periods.
// The function is pure: it performs no I/O and cannot fail partially.
func ComputeSchedule(principal, annualRatePercent decimal.Decimal, tenure int, startDate time.Time) (*Schedule, error) {
	if !ValidTenure(tenure) {
		return nil, &InvalidTenureError{Tenure: tenure}
	}
	if !principal.IsPositive() {
		return nil, ErrNonPositivePrincipal
	}
	if annualRatePercent.IsNegative() {
		return nil, ErrNegativeRate
	}

	principal = principal.Round(2)
	if annualRatePercent.IsZero() {
		return zeroRateSchedule(principal, tenure, startDate), nil
	}

	n := decimal.NewFromInt(int64(tenure))
	r := annualRatePercent.Div(twelve).Div(decHundred)
	compound := one.Add(r).Pow(n)
	periodic := principal.Mul(r).Mul(compound).Div(compound.Sub(one)).Round(2)

	totalAmount := periodic.Mul(n)
	sched := &Schedule{
		Periodic:      periodic,
		TotalAmount:   totalAmount,
		TotalInterest: totalAmount.Sub(principal),
		Installments:  make([]Installment, tenure),
	}

	remaining := principal
	for i := 1; i <= tenure; i++ {
		var interest, principalPortion decimal.Decimal
		if i == tenure {
			// Final period absorbs the rounding drift: the principal portion
			// is the entire remaining balance and the interest portion is
			// back-solved, so the schedule sums exactly.
			principalPortion = remaining
			interest = periodic.Sub(remaining)
		} else {
			interest = remaining.Mul(r).Round(2)
			principalPortion = periodic.Sub(interest)
		}
		remaining = remaining.Sub(principalPortion)

		sched.Installments[i-1] = Installment{
			SequenceNumber:   i,
			DueDate:          startDate.AddDate(0, i, 0),
			Amount:           periodic,
			PrincipalPortion: principalPortion,
			InterestPortion:  interest,
			Status:           StatusPending,
		}
	}

	return sched, nil
}

// zeroRateSchedule splits the principal evenly, reconciling the division
// remainder into the final period.
func zeroRateSchedule(principal decimal.Decimal, tenure int, startDate time.Time) *Schedule {
	n := decimal.NewFromInt(int64(tenure))
	periodic := principal.Div(n).Round(2)

	sched := &Schedule{
		Periodic:      periodic,
		TotalAmount:   principal,
		TotalInterest: decimal.Zero,
		Installments:  make([]Installment, tenure),
	}

	for i := 1; i <= tenure; i++ {
		amount := periodic
		if i == tenure {
			amount = principal.Sub(periodic.Mul(decimal.NewFromInt(int64(tenure - 1))))
		}
		sched.Installments[i-1] = Installment{
			SequenceNumber:   i,
			DueDate:          startDate.AddDate(0, i, 0),
			Amount:           amount,
			PrincipalPortion: amount,
			InterestPortion:  decimal.Zero,
			Status:           StatusPending,
		}
	}

	return sched
}
