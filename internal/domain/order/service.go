package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shopledger/internal/domain/cart"
	"shopledger/internal/domain/coupon"
	"shopledger/internal/domain/installment"
)

// Config holds pricing knobs for the coordinator.
type Config struct {
	// ShippingFee is a flat per-order shipping cost. Zero disables shipping
	// charges entirely.
	ShippingFee decimal.Decimal
	// FreeShippingThreshold waives the shipping fee once the subtotal
	// reaches it. Zero means the fee always applies.
	FreeShippingThreshold decimal.Decimal
	// DefaultAnnualRate is the installment interest rate used when the
	// request does not carry one.
	DefaultAnnualRate decimal.Decimal
}

// Service coordinates order placement and cancellation. Each operation runs
// as one atomic unit: stock reservation, coupon redemption, order and plan
// persistence all commit or roll back together. Cart clearing and event
// publishing happen after a successful commit and are never allowed to fail
// the order.
type Service struct {
	uow    UnitOfWork
	carts  cart.Provider
	guard  *coupon.Guard
	events EventPublisher
	cfg    Config
	lg     *zap.Logger
	now    func() time.Time
}

// NewService creates the order coordinator.
func NewService(uow UnitOfWork, carts cart.Provider, guard *coupon.Guard, events EventPublisher, cfg Config, lg *zap.Logger) *Service {
	return &Service{
		uow:    uow,
		carts:  carts,
		guard:  guard,
		events: events,
		cfg:    cfg,
		lg:     lg,
		now:    time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlaceOrderRequest holds the validated input for placing an order.
type PlaceOrderRequest struct {
	CustomerID        string
	ShippingAddress   Address
	BillingAddress    Address
	PaymentMethod     PaymentMethod
	CouponCode        string
	InstallmentTenure int
	InstallmentRate   *decimal.Decimal
}

// PlaceOrderResult is the outcome of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	Plan  *installment.Plan
}

// PlaceOrder converts the customer's cart into a durable order: it validates
// the request, reserves stock for every line, applies a coupon when a code
// was supplied, computes the final amount, creates the installment plan for
// deferred payment, and persists everything in one transaction. On success
// the cart is cleared and an OrderPlaced event is published.
//
// There is no idempotency key: a client retry of a timed-out call may place
// a second order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	items, err := s.carts.Snapshot(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "cart snapshot")
	}
	if len(items) == 0 {
		return nil, cart.ErrEmpty
	}

	billing := req.BillingAddress
	if billing.Empty() {
		billing = req.ShippingAddress
	}

	createdAt := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(createdAt),
		CustomerID:      req.CustomerID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		CreatedAt:       createdAt,
	}

	var (
		plan      *installment.Plan
		planItems []installment.Installment
	)

	err = s.uow.InTx(ctx, func(tx TxRepos) error {
		subtotal := decimal.Zero
		taxAmount := decimal.Zero
		o.LineItems = make([]LineItem, 0, len(items))

		// Reserve stock line by line under row locks; the first shortage
		// aborts the whole transaction so no partial reservation survives.
		for _, item := range items {
			if item.Quantity <= 0 {
				return &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
			}

			p, err := tx.Products.GetForUpdate(ctx, item.ProductID)
			if err != nil {
				return errors.Wrapf(err, "load product %s", item.ProductID)
			}
			if err := tx.Products.ReserveStock(ctx, p.ID, item.Quantity); err != nil {
				return err
			}

			unitPrice := p.UnitPrice()
			lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
			subtotal = subtotal.Add(lineTotal)
			taxAmount = taxAmount.Add(lineTotal.Mul(p.TaxPercent).Div(decHundred).Round(2))

			o.LineItems = append(o.LineItems, LineItem{
				ProductID: p.ID,
				Name:      p.Name,
				UnitPrice: unitPrice,
				Quantity:  item.Quantity,
				Variant:   item.Variant,
				LineTotal: lineTotal,
			})
		}

		// A bad coupon is a hard failure, not a silent skip.
		var redemption *coupon.Redemption
		o.DiscountAmount = decimal.Zero
		if req.CouponCode != "" {
			red, err := s.guard.Redeem(ctx, tx.Coupons, req.CouponCode, req.CustomerID, subtotal)
			if err != nil {
				return err
			}
			redemption = red
			o.CouponID = &red.CouponID
			o.DiscountAmount = red.Discount
		}

		o.Subtotal = subtotal
		o.TaxAmount = taxAmount
		o.ShippingCost = s.shippingCost(subtotal)
		o.FinalAmount = subtotal.Add(o.ShippingCost).Add(taxAmount).Sub(o.DiscountAmount)

		if req.PaymentMethod == PaymentInstallment {
			tenure := req.InstallmentTenure
			o.InstallmentTenure = &tenure

			rate := s.cfg.DefaultAnnualRate
			if req.InstallmentRate != nil {
				rate = *req.InstallmentRate
			}
			sched, err := installment.ComputeSchedule(o.FinalAmount, rate, tenure, createdAt)
			if err != nil {
				return err
			}
			plan, planItems = buildPlan(o, rate, tenure, sched, createdAt)
		}

		if err := tx.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if redemption != nil {
			if err := tx.Coupons.RecordRedemption(ctx, req.CustomerID, redemption.CouponID, o.ID); err != nil {
				return errors.Wrap(err, "record coupon redemption")
			}
		}
		if plan != nil {
			if err := tx.Plans.CreatePlan(ctx, plan, planItems); err != nil {
				return errors.Wrap(err, "create installment plan")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit effects: best-effort only, the order is already durable.
	if err := s.carts.Clear(ctx, req.CustomerID); err != nil {
		s.lg.Warn("clearing cart failed",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err))
	}
	s.publishPlaced(ctx, o, plan)

	return &PlaceOrderResult{Order: o, Plan: plan}, nil
}

// CancelOrder reverses a placed order while it is still cancellable:
// restores stock for every line item, voids the coupon redemption and
// returns the coupon use, cancels an active installment plan, and flips the
// order's statuses. One atomic unit, mirroring PlaceOrder.
func (s *Service) CancelOrder(ctx context.Context, orderID, customerID string) (*Order, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "required"}
	}
	if customerID == "" {
		return nil, &ValidationError{Field: "customer_id", Reason: "required"}
	}

	var cancelled *Order
	err := s.uow.InTx(ctx, func(tx TxRepos) error {
		o, err := tx.Orders.GetForUpdate(ctx, orderID, customerID)
		if err != nil {
			return err
		}
		if !o.Status.Cancellable() {
			return &StateError{OrderNumber: o.OrderNumber, Status: o.Status}
		}

		for _, li := range o.LineItems {
			if err := tx.Products.RestoreStock(ctx, li.ProductID, li.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock for %s", li.ProductID)
			}
		}

		if o.CouponID != nil {
			if err := tx.Coupons.VoidRedemption(ctx, o.ID); err != nil {
				return errors.Wrap(err, "void coupon redemption")
			}
			if err := tx.Coupons.DecrementUsage(ctx, *o.CouponID); err != nil {
				return errors.Wrap(err, "return coupon use")
			}
		}

		if o.PaymentMethod == PaymentInstallment {
			if err := tx.Plans.CancelPlanByOrder(ctx, o.ID); err != nil {
				return errors.Wrap(err, "cancel installment plan")
			}
		}

		o.Status = StatusCancelled
		if o.PaymentStatus == PaymentPaid {
			o.PaymentStatus = PaymentRefunded
		} else {
			o.PaymentStatus = PaymentFailed
		}
		if err := tx.Orders.UpdateStatus(ctx, o.ID, o.Status, o.PaymentStatus); err != nil {
			return errors.Wrap(err, "update order status")
		}

		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishOrderCancelled(ctx, CancelledEvent{
		OrderID:       cancelled.ID,
		OrderNumber:   cancelled.OrderNumber,
		CustomerID:    cancelled.CustomerID,
		PaymentStatus: cancelled.PaymentStatus,
		OccurredAt:    s.now(),
	}); err != nil {
		s.lg.Warn("publishing OrderCancelled failed",
			zap.String("order_number", cancelled.OrderNumber),
			zap.Error(err))
	}

	return cancelled, nil
}

// GetOrder returns a single order scoped to its owning customer.
func (s *Service) GetOrder(ctx context.Context, orderID, customerID string) (*Order, error) {
	var o *Order
	err := s.uow.InTx(ctx, func(tx TxRepos) error {
		var err error
		o, err = tx.Orders.GetByID(ctx, orderID, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if req.CustomerID == "" {
		return &ValidationError{Field: "customer_id", Reason: "required"}
	}
	if req.ShippingAddress.Empty() {
		return &ValidationError{Field: "shipping_address", Reason: "required"}
	}
	if req.ShippingAddress.Name == "" || req.ShippingAddress.Line1 == "" || req.ShippingAddress.City == "" {
		return &ValidationError{Field: "shipping_address", Reason: "name, line1 and city are required"}
	}
	if !req.PaymentMethod.Valid() {
		return &ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}
	if req.PaymentMethod == PaymentInstallment && !installment.ValidTenure(req.InstallmentTenure) {
		return &installment.InvalidTenureError{Tenure: req.InstallmentTenure}
	}
	if req.InstallmentRate != nil && req.InstallmentRate.IsNegative() {
		return &ValidationError{Field: "installment_rate", Reason: "must not be negative"}
	}
	return nil
}

func (s *Service) shippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if !s.cfg.ShippingFee.IsPositive() {
		return decimal.Zero
	}
	if s.cfg.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.ShippingFee
}

func (s *Service) publishPlaced(ctx context.Context, o *Order, plan *installment.Plan) {
	ev := PlacedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		FinalAmount:   o.FinalAmount,
		PaymentMethod: o.PaymentMethod,
		OccurredAt:    s.now(),
	}
	if plan != nil {
		ev.Installment = &InstallmentSummary{
			PlanID:       plan.ID,
			Tenure:       plan.Tenure,
			Periodic:     plan.Periodic,
			FirstDueDate: plan.StartDate.AddDate(0, 1, 0),
		}
	}
	if err := s.events.PublishOrderPlaced(ctx, ev); err != nil {
		s.lg.Warn("publishing OrderPlaced failed",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}
}

// buildPlan materializes a computed schedule as a persistable plan with its
// installment rows.
func buildPlan(o *Order, rate decimal.Decimal, tenure int, sched *installment.Schedule, createdAt time.Time) (*installment.Plan, []installment.Installment) {
	plan := &installment.Plan{
		ID:                 uuid.New().String(),
		OrderID:            o.ID,
		CustomerID:         o.CustomerID,
		Principal:          o.FinalAmount,
		AnnualInterestRate: rate,
		Tenure:             tenure,
		Periodic:           sched.Periodic,
		TotalAmount:        sched.TotalAmount,
		TotalInterest:      sched.TotalInterest,
		StartDate:          createdAt,
		Status:             installment.PlanActive,
		PaidCount:          0,
		RemainingCount:     tenure,
		CreatedAt:          createdAt,
	}

	items := make([]installment.Installment, len(sched.Installments))
	for i, inst := range sched.Installments {
		inst.ID = uuid.New().String()
		inst.PlanID = plan.ID
		items[i] = inst
	}
	firstDue := items[0].DueDate
	plan.NextDueDate = &firstDue

	return plan, items
}

var decHundred = decimal.NewFromInt(100)

// newOrderNumber generates a human-readable unique order number, e.g.
// ORD-20250114-3F2A9C1B.
func newOrderNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return "ORD-" + t.UTC().Format("20060102") + "-" + suffix
}
