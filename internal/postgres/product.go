package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shopledger/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, price, discount_price, tax_percent, stock, available
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, discount_price, tax_percent, stock, available
		FROM products WHERE id = $1`

	getProductForUpdateSQL = getProductByIDSQL + ` FOR UPDATE`

	// Conditional decrement: the WHERE clause is what keeps stock from ever
	// going negative under concurrent reservations. Availability is derived
	// from the new stock value in the same statement.
	reserveStockSQL = `UPDATE products
		SET stock = stock - $2, available = (stock - $2) > 0
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products
		SET stock = stock + $2, available = (stock + $2) > 0
		WHERE id = $1`

	getStockSQL = `SELECT name, stock FROM products WHERE id = $1`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository over the given DB.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	return r.get(ctx, getProductByIDSQL, id)
}

// GetForUpdate returns the product with its row locked for the duration of
// the enclosing transaction.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*catalog.Product, error) {
	return r.get(ctx, getProductForUpdateSQL, id)
}

func (r *ProductRepository) get(ctx context.Context, query, id string) (*catalog.Product, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// ReserveStock decrements the product's stock by quantity, failing with
// *catalog.InsufficientStockError when fewer units remain.
func (r *ProductRepository) ReserveStock(ctx context.Context, id string, quantity int) error {
	tag, err := r.db.Exec(ctx, reserveStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("reserving stock for %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// The guarded update matched nothing: either the product is gone or
	// stock is short. Distinguish for the caller's error message.
	var (
		name  string
		stock int
	)
	err = r.db.QueryRow(ctx, getStockSQL, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("checking stock for %q: %w", id, err)
	}
	return &catalog.InsufficientStockError{
		ProductID: id,
		Name:      name,
		Requested: quantity,
		Available: stock,
	}
}

// RestoreStock returns quantity units to the product's stock, re-deriving
// availability from the new value.
func (r *ProductRepository) RestoreStock(ctx context.Context, id string, quantity int) error {
	tag, err := r.db.Exec(ctx, restoreStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("restoring stock for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p             catalog.Product
		price         decimal.Decimal
		discountPrice decimal.NullDecimal
		taxPercent    decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &discountPrice, &taxPercent, &p.Stock, &p.Available)
	p.Price = price
	p.TaxPercent = taxPercent
	if discountPrice.Valid {
		p.DiscountPrice = &discountPrice.Decimal
	}
	return p, err
}
