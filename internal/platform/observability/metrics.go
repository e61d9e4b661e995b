package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dmu-smartstyle/storefront/internal/platform/observability"

// CartMetrics records cart mutation outcomes as OpenTelemetry instruments.
type CartMetrics struct {
	mutations metric.Int64Counter
	items     metric.Int64Histogram
}

// NewCartMetrics registers the cart instruments on provider. A nil provider uses the
// global meter provider.
func NewCartMetrics(provider metric.MeterProvider) (*CartMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	mutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome."),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}
	items, err := meter.Int64Histogram("storefront.cart.items",
		metric.WithDescription("Total item quantity in the cart after a successful mutation."),
		metric.WithUnit("{item}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10, 20, 50),
	)
	if err != nil {
		return nil, err
	}
	return &CartMetrics{mutations: mutations, items: items}, nil
}

// RecordMutation counts one mutation attempt.
func (m *CartMetrics) RecordMutation(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordItemCount observes the cart size.
func (m *CartMetrics) RecordItemCount(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.items.Record(ctx, int64(count))
}
