package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"shopledger/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, customer_id, line_items,
		shipping_address, billing_address, payment_method, payment_status, order_status,
		subtotal, shipping_cost, tax_amount, discount_amount, final_amount,
		coupon_id, installment_tenure, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	orderColumns = `id, order_number, customer_id, line_items, shipping_address, billing_address,
		payment_method, payment_status, order_status, subtotal, shipping_cost, tax_amount,
		discount_amount, final_amount, coupon_id, installment_tenure, created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND customer_id = $2`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	updateOrderStatusSQL = `UPDATE orders SET order_status = $2, payment_status = $3 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items and addresses are stored as JSONB snapshots: they are immutable
// point-in-time data, never queried relationally.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository over the given DB.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.LineItems)
	if err != nil {
		return fmt.Errorf("marshaling line items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	_, err = r.db.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.CustomerID, itemsJSON,
		shippingJSON, billingJSON, string(o.PaymentMethod), string(o.PaymentStatus), string(o.Status),
		o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.FinalAmount,
		o.CouponID, o.InstallmentTenure, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.OrderNumber, err)
	}
	return nil
}

// GetByID returns the order scoped to its owning customer.
func (r *OrderRepository) GetByID(ctx context.Context, orderID, customerID string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, orderID, customerID)
}

// GetForUpdate returns the order with its row locked for the duration of the
// enclosing transaction.
func (r *OrderRepository) GetForUpdate(ctx context.Context, orderID, customerID string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, orderID, customerID)
}

func (r *OrderRepository) get(ctx context.Context, query, orderID, customerID string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, query, orderID, customerID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	return &o, nil
}

// UpdateStatus applies a status transition.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status, paymentStatus order.PaymentStatus) error {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, orderID, string(status), string(paymentStatus))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		shippingJSON  []byte
		billingJSON   []byte
		paymentMethod string
		paymentStatus string
		orderStatus   string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &itemsJSON, &shippingJSON, &billingJSON,
		&paymentMethod, &paymentStatus, &orderStatus, &o.Subtotal, &o.ShippingCost, &o.TaxAmount,
		&o.DiscountAmount, &o.FinalAmount, &o.CouponID, &o.InstallmentTenure, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(orderStatus)

	if err := json.Unmarshal(itemsJSON, &o.LineItems); err != nil {
		return o, fmt.Errorf("unmarshaling line items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	return o, nil
}
