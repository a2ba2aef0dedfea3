package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shopledger/internal/domain/coupon"
)

const (
	// The lookup locks the coupon row so concurrent redemptions of the
	// same coupon run one at a time; the redemption-existence read that
	// follows then sees any row committed by the transaction it waited
	// on.
	getCouponForUpdateSQL = `SELECT id, code, discount_type, discount_value, max_discount,
		min_order_amount, usage_limit, used_count, single_use_per_customer,
		active, valid_from, valid_until, description
		FROM coupons WHERE UPPER(code) = UPPER($1) FOR UPDATE`

	// Conditional increment: refuses to move used_count past usage_limit
	// even when two redemptions race on the last allowed use.
	incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	decrementUsageSQL = `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0)
		WHERE id = $1`

	hasRedemptionSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_redemptions
		WHERE customer_id = $1 AND coupon_id = $2 AND NOT voided)`

	recordRedemptionSQL = `INSERT INTO coupon_redemptions (id, coupon_id, customer_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)`

	voidRedemptionSQL = `UPDATE coupon_redemptions SET voided = TRUE
		WHERE order_id = $1 AND NOT voided`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DB
}

// NewCouponRepository returns a CouponRepository over the given DB.
func NewCouponRepository(db DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCodeForUpdate looks up a coupon by its code (case-insensitive)
// and locks its row for the rest of the transaction. Returns
// coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, getCouponForUpdateSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// HasRedemption reports whether the customer holds a non-voided redemption
// of the coupon.
func (r *CouponRepository) HasRedemption(ctx context.Context, customerID, couponID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, hasRedemptionSQL, customerID, couponID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking redemption for coupon %q: %w", couponID, err)
	}
	return exists, nil
}

// IncrementUsage reserves one use of the coupon; it fails with
// coupon.ErrUsageLimitReached when the limit is already exhausted.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	tag, err := r.db.Exec(ctx, incrementUsageSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

// DecrementUsage returns one use to the coupon, used on order cancellation.
func (r *CouponRepository) DecrementUsage(ctx context.Context, couponID string) error {
	_, err := r.db.Exec(ctx, decrementUsageSQL, couponID)
	if err != nil {
		return fmt.Errorf("decrementing usage for coupon %q: %w", couponID, err)
	}
	return nil
}

// RecordRedemption writes the redemption row that makes per-customer
// single-use enforcement possible.
func (r *CouponRepository) RecordRedemption(ctx context.Context, customerID, couponID, orderID string) error {
	_, err := r.db.Exec(ctx, recordRedemptionSQL,
		uuid.New().String(), couponID, customerID, orderID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording redemption of coupon %q: %w", couponID, err)
	}
	return nil
}

// VoidRedemption marks the order's redemption as voided. The row is kept,
// not deleted, so the redemption history stays auditable.
func (r *CouponRepository) VoidRedemption(ctx context.Context, orderID string) error {
	_, err := r.db.Exec(ctx, voidRedemptionSQL, orderID)
	if err != nil {
		return fmt.Errorf("voiding redemption for order %q: %w", orderID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c              coupon.Coupon
		discountType   string
		value          decimal.Decimal
		maxDiscount    decimal.NullDecimal
		minOrderAmount decimal.NullDecimal
		usageLimit     *int32
		usedCount      int32
		validFrom      *time.Time
		validUntil     *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &value, &maxDiscount,
		&minOrderAmount, &usageLimit, &usedCount, &c.SingleUsePerCustomer,
		&c.Active, &validFrom, &validUntil, &c.Description,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.DiscountValue = value
	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Decimal
	}
	if minOrderAmount.Valid {
		c.MinOrderAmount = &minOrderAmount.Decimal
	}
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.UsedCount = int(usedCount)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
