// Command seed-db loads demo products and coupons into the database.
// It is intended for local development and integration test setups.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"shopledger/internal/postgres"
)

type productJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	TaxPercent    decimal.Decimal  `json:"tax_percent"`
	Stock         int32            `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, discount_price, tax_percent, stock, available)
VALUES ($1, $2, $3, $4, $5, $6, $6 > 0)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    price = EXCLUDED.price,
    discount_price = EXCLUDED.discount_price,
    tax_percent = EXCLUDED.tax_percent,
    stock = EXCLUDED.stock,
    available = EXCLUDED.available`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		var discount decimal.NullDecimal
		if p.DiscountPrice != nil {
			discount = decimal.NullDecimal{Decimal: *p.DiscountPrice, Valid: true}
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, discount, p.TaxPercent, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (
    id, code, discount_type, discount_value, max_discount, min_order_amount,
    usage_limit, single_use_per_customer, active, valid_from, valid_until, description
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value,
    max_discount = EXCLUDED.max_discount,
    min_order_amount = EXCLUDED.min_order_amount,
    usage_limit = EXCLUDED.usage_limit,
    single_use_per_customer = EXCLUDED.single_use_per_customer,
    active = EXCLUDED.active,
    valid_from = EXCLUDED.valid_from,
    valid_until = EXCLUDED.valid_until,
    description = EXCLUDED.description`

type couponSeed struct {
	code           string
	discountType   string
	value          decimal.Decimal
	maxDiscount    decimal.NullDecimal
	minOrderAmount decimal.NullDecimal
	usageLimit     *int32
	singleUse      bool
	validFrom      *time.Time
	validUntil     *time.Time
	description    string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	hundredUses := int32(100)
	yearEnd := time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC)

	coupons := []couponSeed{
		{
			code:         "SAVE10",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			description:  "10% off entire order",
		},
		{
			code:           "WELCOME50",
			discountType:   "flat",
			value:          decimal.NewFromInt(50),
			minOrderAmount: decimal.NullDecimal{Decimal: decimal.NewFromInt(200), Valid: true},
			singleUse:      true,
			description:    "First order: flat 50 off orders above 200",
		},
		{
			code:         "FESTIVE25",
			discountType: "percentage",
			value:        decimal.NewFromInt(25),
			maxDiscount:  decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true},
			usageLimit:   &hundredUses,
			validUntil:   &yearEnd,
			description:  "Festive sale: 25% off, capped at 100",
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			uuid.NewString(), c.code, c.discountType, c.value,
			c.maxDiscount, c.minOrderAmount, c.usageLimit, c.singleUse,
			true, c.validFrom, c.validUntil, c.description,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}
