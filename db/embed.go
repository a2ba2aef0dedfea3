// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema contains the DDL for the ledger tables: products, coupons,
// coupon_redemptions, orders, installment_plans and installments.
//
//go:embed migrations/001_schema.sql
var Schema string
