package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-gateway/internal/domain/taxrate"
)

const instrumentationName = "github.com/xenking/order-gateway/internal/domain/order"

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the provider for intake metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the provider for intake spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service runs the intake pipeline: validate, look up the tax rate,
// compute the total, persist. It holds no per-order state and is safe for
// concurrent use.
type Service struct {
	rates  taxrate.Lookup
	orders Repository

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	rejected       metric.Int64Counter
	lookupDuration metric.Float64Histogram
}

// NewService creates an intake Service over the given rate lookup and
// order store.
func NewService(rates taxrate.Lookup, orders Repository, opts ...Option) *Service {
	s := &Service{
		rates:          rates,
		orders:         orders,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted by the intake pipeline"),
	); err != nil {
		otel.Handle(err)
	}
	if s.rejected, err = meter.Int64Counter("orders.rejected",
		metric.WithDescription("Orders rejected by the intake pipeline, by reason"),
	); err != nil {
		otel.Handle(err)
	}
	if s.lookupDuration, err = meter.Float64Histogram("tax.lookup.duration",
		metric.WithDescription("Duration of sales tax rate lookups"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}

	return s
}

// Create runs the intake pipeline for a single order and returns it with
// Total set. No insert is attempted unless the rate lookup succeeded.
func (s *Service) Create(ctx context.Context, o Order) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(
			attribute.Int("order.id", int(o.OrderID)),
			attribute.String("order.shipping_zip", o.ShippingZip),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.reject(ctx, rerr)
		}
		span.End()
	}()

	o.normalize()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	rate, err := s.lookupRate(ctx, o.ShippingZip)
	if err != nil {
		return nil, err
	}
	o.Total = TotalWithTax(o.Subtotal, rate)
	if err := checkTotal(o.Total); err != nil {
		return nil, err
	}

	if err := s.orders.Insert(ctx, &o); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if s.created != nil {
		s.created.Add(ctx, 1)
	}

	return &o, nil
}

func (s *Service) lookupRate(ctx context.Context, zip string) (decimal.Decimal, error) {
	start := time.Now()
	rate, err := s.rates.Rate(ctx, zip)
	if s.lookupDuration != nil {
		s.lookupDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err == nil {
		if scaleErr := checkScale(rate); scaleErr != nil {
			return decimal.Zero, fmt.Errorf("%w: %w", ErrRateLookupUnavailable, &taxrate.LookupError{
				Zip: zip, Kind: taxrate.KindMalformedRate, Err: scaleErr,
			})
		}
		return rate, nil
	}

	if kind, ok := taxrate.KindOf(err); ok && kind == taxrate.KindNoRateForZip {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrNoRateForZip, err)
	}
	return decimal.Zero, fmt.Errorf("%w: %w", ErrRateLookupUnavailable, err)
}

// List returns every stored order in storage order.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.List")
	defer span.End()

	orders, err := s.orders.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// InitSchema creates the orders table if it does not exist yet.
func (s *Service) InitSchema(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "order.InitSchema")
	defer span.End()

	if err := s.orders.EnsureSchema(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, err error) {
	if s.rejected == nil {
		return
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", Reason(err))))
}

// Reason returns a stable machine-readable code for an intake error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrNoRateForZip):
		return "no_rate_for_zip"
	case errors.Is(err, ErrRateLookupUnavailable):
		return "rate_lookup_unavailable"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	default:
		return "internal"
	}
}
