// Package taxclient implements taxrate.Lookup against the external sales-tax
// rate service: the zip code is POSTed as a plain-text body and the rate
// comes back as a plain-text decimal.
package taxclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/order-gateway/internal/domain/taxrate"
)

// maxBodySize bounds how much of a rate response is read.
const maxBodySize = 64 << 10

var _ taxrate.Lookup = (*Client)(nil)

// Config holds the rate service endpoint and call bounds.
type Config struct {
	URL     string
	Timeout time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client looks up rates with a single attempt per call: no retry, no cache.
type Client struct {
	url  string
	http *http.Client
}

// New returns a Client for cfg. A zero Timeout leaves calls bounded only by
// the caller's context.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("tax rate service URL is required")
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		url: cfg.URL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}, nil
}

// Rate returns the sales-tax rate for zip. Every failure is a
// *taxrate.LookupError.
func (c *Client) Rate(ctx context.Context, zip string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(zip))
	if err != nil {
		return decimal.Zero, &taxrate.LookupError{Zip: zip, Kind: taxrate.KindUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, &taxrate.LookupError{Zip: zip, Kind: taxrate.KindUnreachable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, &taxrate.LookupError{
			Zip: zip, Kind: taxrate.KindNoRateForZip, StatusCode: resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return decimal.Zero, &taxrate.LookupError{
			Zip: zip, Kind: taxrate.KindUpstream, StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return decimal.Zero, &taxrate.LookupError{
			Zip: zip, Kind: taxrate.KindUnreachable, StatusCode: resp.StatusCode,
			Err: errors.Wrap(err, "read body"),
		}
	}

	rate, err := taxrate.ParseRate(strings.TrimSpace(string(body)))
	if err != nil {
		return decimal.Zero, &taxrate.LookupError{
			Zip: zip, Kind: taxrate.KindMalformedRate, StatusCode: resp.StatusCode,
			Err: errors.Wrapf(err, "parse rate %q", truncate(string(body), 64)),
		}
	}
	return rate, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
