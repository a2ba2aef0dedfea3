package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Guard performs coupon redemption: the ordered eligibility checks followed
// by the usage-counter reservation. It must only be invoked with a
// transaction-scoped Repository: the usage increment and the redemption
// record have to commit or roll back together with the enclosing order.
type Guard struct {
	now func() time.Time
}

// NewGuard creates a Guard using the wall clock.
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// NewGuardAt creates a Guard with a fixed clock, for tests.
func NewGuardAt(now func() time.Time) *Guard {
	return &Guard{now: now}
}

// Redeem validates the coupon code against the order subtotal and customer,
// reserves one use, and returns the computed discount. Checks run in a fixed
// order and the first failure wins: existence/active, validity window, usage
// cap, minimum order amount, per-customer single use.
func (g *Guard) Redeem(ctx context.Context, repo Repository, code, customerID string, subtotal decimal.Decimal) (*Redemption, error) {
	// The locking lookup serializes same-coupon redemptions: a second
	// transaction blocks here until the first commits, so the single-use
	// read below always sees that commit's redemption row.
	c, err := repo.FindByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, ErrInvalidCoupon
	}

	now := g.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrExpired
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return nil, ErrBelowMinimum
	}

	if c.SingleUsePerCustomer {
		used, err := repo.HasRedemption(ctx, customerID, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "check prior redemption")
		}
		if used {
			return nil, ErrAlreadyUsed
		}
	}

	// The read above is racy under concurrency; the conditional update is
	// what actually enforces the usage limit.
	if err := repo.IncrementUsage(ctx, c.ID); err != nil {
		return nil, err
	}

	return &Redemption{
		CouponID: c.ID,
		Code:     c.Code,
		Discount: ComputeDiscount(c, subtotal),
	}, nil
}

// ComputeDiscount returns the discount amount for the coupon against the
// given subtotal, rounded to 2 decimal places and never exceeding the
// subtotal.
func ComputeDiscount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
	case DiscountFlat:
		amount = c.DiscountValue
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
