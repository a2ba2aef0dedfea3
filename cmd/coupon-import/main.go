// Command coupon-import loads promo codes from large gzipped code dumps.
// A code counts as valid only when it appears in at least two of the
// three dump files; the cross-check uses one bloom filter per dump so the
// full code sets never have to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"shopledger/internal/postgres"
)

const (
	dumpCount      = 3
	filterCapacity = 120_000_000
	filterFPR      = 0.001
	logEvery       = 10_000_000
	minCodeLen     = 8
	maxCodeLen     = 10
	insertBatch    = 500
)

// codeRule describes the discount to attach to a known promo code.
type codeRule struct {
	discountType string
	value        string
	maxDiscount  string
	description  string
}

var codeRules = map[string]codeRule{
	"FIFTYOFF": {discountType: "percentage", value: "50", description: "50% off entire order"},
	"SIXTYOFF": {discountType: "percentage", value: "60", description: "60% off entire order"},
	"GNULINUX": {discountType: "percentage", value: "15", description: "Open source discount: 15% off"},
	"OVER9000": {discountType: "flat", value: "9", description: "9 off your order"},
	"HAPPYHRS": {discountType: "percentage", value: "18", description: "Happy Hours: 18% off"},
	"BIGSPEND": {discountType: "percentage", value: "30", maxDiscount: "150", description: "30% off, capped at 150"},
}

var defaultRule = codeRule{
	discountType: "percentage",
	value:        "10",
	description:  "Valid promo code: 10% off",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	dumps := make([]string, dumpCount)
	for i := range dumps {
		dumps[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, d := range dumps {
		if _, err := os.Stat(d); err != nil {
			return errors.Wrapf(err, "stat %s", d)
		}
	}

	slog.Info("indexing code dumps", slog.Int("dumps", dumpCount))
	filters, err := indexDumps(ctx, dumps)
	if err != nil {
		return errors.Wrap(err, "index dumps")
	}

	slog.Info("matching codes across dumps")
	codes, err := matchCodes(ctx, dumps, filters)
	if err != nil {
		return errors.Wrap(err, "match codes")
	}
	slog.Info("codes matched", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := importCodes(ctx, pool, codes); err != nil {
		return errors.Wrap(err, "import codes")
	}
	return nil
}

func codeLenOK(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// indexDumps streams every dump once and folds its codes into a per-dump
// bloom filter. Dumps are processed in parallel; each is tens of millions
// of lines, so progress is logged along the way.
func indexDumps(ctx context.Context, dumps []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, dump := range dumps {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(filterCapacity, filterFPR)
			var n uint64

			err := eachLine(ctx, dump, func(code string) {
				if !codeLenOK(code) {
					return
				}
				filter.AddString(code)
				if n++; n%logEvery == 0 {
					slog.Info("indexing", slog.Int("dump", i+1), slog.Uint64("codes", n))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index dump %d", i+1)
			}

			slog.Info("dump indexed", slog.Int("dump", i+1), slog.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// matchCodes streams every dump a second time and keeps the codes that
// another dump's filter also claims to contain. Each worker records hits
// as a per-code bit set (bit i = seen in dump i); after the merge, codes
// with two or more bits set survive. Bloom false positives can only add
// codes that were one dump short, never drop a real match.
func matchCodes(ctx context.Context, dumps []string, filters []*bloom.BloomFilter) ([]string, error) {
	hits := make([]map[string]uint, len(dumps))

	g, ctx := errgroup.WithContext(ctx)
	for i, dump := range dumps {
		g.Go(func() error {
			mine := make(map[string]uint)
			bit := uint(1) << uint(i)
			var n uint64

			err := eachLine(ctx, dump, func(code string) {
				if !codeLenOK(code) {
					return
				}
				if n++; n%logEvery == 0 {
					slog.Info("matching", slog.Int("dump", i+1), slog.Uint64("codes", n))
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						mine[code] |= bit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "match dump %d", i+1)
			}

			slog.Info("dump matched",
				slog.Int("dump", i+1),
				slog.Uint64("codes", n),
				slog.Int("hits", len(mine)),
			)
			hits[i] = mine
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, mine := range hits {
		for code, mask := range mine {
			merged[code] |= mask
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// eachLine calls fn for every line of a gzipped file. Decompression goes
// through pgzip, which splits the work across cores.
func eachLine(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gunzip %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

const upsertCodeSQL = `
INSERT INTO coupons (id, code, discount_type, discount_value, max_discount, active, description)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value,
    max_discount = EXCLUDED.max_discount,
    active = TRUE,
    description = EXCLUDED.description`

// importCodes upserts the matched codes in batches, attaching the rule
// for recognized codes and the default 10% rule for the rest.
func importCodes(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("importing codes", slog.Int("count", len(codes)))

	batch := &pgx.Batch{}
	written := 0

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "send coupon batch")
		}
		written += batch.Len()
		slog.Info("import progress", slog.Int("written", written), slog.Int("total", len(codes)))
		batch = &pgx.Batch{}
		return nil
	}

	for _, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}

		value, err := decimal.NewFromString(rule.value)
		if err != nil {
			return errors.Wrapf(err, "parse discount value for code %s", code)
		}

		var maxDiscount decimal.NullDecimal
		if rule.maxDiscount != "" {
			d, err := decimal.NewFromString(rule.maxDiscount)
			if err != nil {
				return errors.Wrapf(err, "parse max discount for code %s", code)
			}
			maxDiscount = decimal.NullDecimal{Decimal: d, Valid: true}
		}

		batch.Queue(upsertCodeSQL,
			uuid.NewString(), code, rule.discountType, value, maxDiscount, rule.description,
		)

		if batch.Len() >= insertBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
