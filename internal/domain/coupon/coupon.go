package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the order subtotal,
	// optionally capped at MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat applies a fixed monetary discount capped at the subtotal.
	DiscountFlat DiscountType = "flat"
)

// Rejection reasons, checked in order; the first failure wins.
var (
	// ErrInvalidCoupon is returned when a coupon code is not found or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is outside its valid time window.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrBelowMinimum is returned when the order subtotal does not reach the
	// coupon's minimum order amount.
	ErrBelowMinimum = errors.New("order amount below coupon minimum")
	// ErrAlreadyUsed is returned when a single-use coupon was already
	// redeemed by this customer.
	ErrAlreadyUsed = errors.New("coupon already used by this customer")
)

// Coupon defines a discount code's behaviour and eligibility constraints.
// UsedCount only ever increases during redemption and must never exceed
// UsageLimit when one is configured.
type Coupon struct {
	ID                   string
	Code                 string
	DiscountType         DiscountType
	DiscountValue        decimal.Decimal
	MaxDiscount          *decimal.Decimal
	MinOrderAmount       *decimal.Decimal
	UsageLimit           *int
	UsedCount            int
	SingleUsePerCustomer bool
	Active               bool
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	Description          string
}

// Redemption is the reserved use of a coupon, produced by the guard and
// recorded against the order in the same transaction.
type Redemption struct {
	CouponID string
	Code     string
	Discount decimal.Decimal
}

// Repository provides coupon lookup and the transactional mutations the
// guard relies on. FindByCodeForUpdate must lock the coupon row for the
// rest of the transaction: the per-customer single-use check is a read
// followed by an insert, and without the lock two concurrent redemptions
// by the same customer would both see no prior redemption. IncrementUsage
// must be a conditional update that fails with ErrUsageLimitReached
// instead of exceeding the limit, so that two concurrent redemptions of
// the last allowed use cannot both succeed.
type Repository interface {
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	HasRedemption(ctx context.Context, customerID, couponID string) (bool, error)
	IncrementUsage(ctx context.Context, couponID string) error
	DecrementUsage(ctx context.Context, couponID string) error
	RecordRedemption(ctx context.Context, customerID, couponID, orderID string) error
	VoidRedemption(ctx context.Context, orderID string) error
}
