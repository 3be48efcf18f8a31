// Package ratetable loads zip-to-rate tables from CSV files and serves them
// over the same plain-text protocol the gateway's tax client speaks.
package ratetable

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-gateway/internal/domain/taxrate"
)

var _ taxrate.Lookup = (*Table)(nil)

// Table maps postal codes to sales tax rates. It is immutable once built.
type Table struct {
	rates map[string]decimal.Decimal
}

// New returns a Table holding a copy of rates.
func New(rates map[string]decimal.Decimal) *Table {
	t := &Table{rates: make(map[string]decimal.Decimal, len(rates))}
	for zip, rate := range rates {
		t.rates[strings.TrimSpace(zip)] = rate
	}
	return t
}

// Len returns the number of zip codes in the table.
func (t *Table) Len() int { return len(t.rates) }

// Find returns the rate for zip.
func (t *Table) Find(zip string) (decimal.Decimal, bool) {
	rate, ok := t.rates[strings.TrimSpace(zip)]
	return rate, ok
}

// Rate implements taxrate.Lookup in process.
func (t *Table) Rate(_ context.Context, zip string) (decimal.Decimal, error) {
	rate, ok := t.Find(zip)
	if !ok {
		return decimal.Zero, &taxrate.LookupError{Zip: zip, Kind: taxrate.KindNoRateForZip}
	}
	return rate, nil
}

// ParseError points at the offending CSV record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads "zip,rate" records. A first record whose rate column is not a
// number is taken as a header and skipped. Blank lines are ignored; a zip
// repeated later in the input overrides the earlier rate.
func Parse(r io.Reader) (map[string]decimal.Decimal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	rates := make(map[string]decimal.Decimal)
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rates, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		zip := strings.TrimSpace(rec[0])
		rate, err := taxrate.ParseRate(strings.TrimSpace(rec[1]))
		if err != nil {
			if first {
				continue
			}
			return nil, &ParseError{Line: line, Err: errors.Wrapf(err, "rate for %q", zip)}
		}
		if zip == "" {
			return nil, &ParseError{Line: line, Err: errors.New("empty zip")}
		}
		if rate.IsNegative() {
			return nil, &ParseError{Line: line, Err: errors.Errorf("negative rate %s for %q", rate, zip)}
		}
		rates[zip] = rate
	}
}

// LoadFile parses one table file. Files ending in .gz are decompressed.
func LoadFile(ctx context.Context, path string) (map[string]decimal.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	rates, err := Parse(ctxReader{ctx: ctx, r: r})
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return rates, nil
}

// Load parses every file concurrently and merges them in argument order, so
// a zip present in several files takes the rate from the last one.
func Load(ctx context.Context, paths ...string) (*Table, error) {
	if len(paths) == 0 {
		return nil, errors.New("no rate table files given")
	}

	parsed := make([]map[string]decimal.Decimal, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			rates, err := LoadFile(gctx, path)
			if err != nil {
				return err
			}
			parsed[i] = rates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := &Table{rates: make(map[string]decimal.Decimal)}
	for _, rates := range parsed {
		for zip, rate := range rates {
			t.rates[zip] = rate
		}
	}
	return t, nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
