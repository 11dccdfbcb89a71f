package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Additional-Code/tabula"

// Instruments holds the counters recorded across request handling.
//
// They are created on the global meter provider, which forwards to the
// provider Manager installs on start.
type Instruments struct {
	requests        metric.Int64Counter
	decodeFallbacks metric.Int64Counter
	syncedRecords   metric.Int64Counter
}

// NewInstruments registers the counters.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(meterName)

	requests, err := meter.Int64Counter("tabula.requests",
		metric.WithDescription("Dispatched actions by outcome"))
	if err != nil {
		return nil, err
	}
	decodeFallbacks, err := meter.Int64Counter("tabula.decode_fallbacks",
		metric.WithDescription("Nested fields left as raw text because they were not valid JSON"))
	if err != nil {
		return nil, err
	}
	syncedRecords, err := meter.Int64Counter("tabula.synced_records",
		metric.WithDescription("Records saved through syncAll"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		requests:        requests,
		decodeFallbacks: decodeFallbacks,
		syncedRecords:   syncedRecords,
	}, nil
}

// Request counts one dispatched action.
func (i *Instruments) Request(ctx context.Context, action, outcome string) {
	if i == nil {
		return
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

// DecodeFallback counts one nested field kept as raw text.
func (i *Instruments) DecodeFallback(ctx context.Context, table, field string) {
	if i == nil {
		return
	}
	i.decodeFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("field", field),
	))
}

// Synced counts records of kind saved by one syncAll call.
func (i *Instruments) Synced(ctx context.Context, kind string, n int) {
	if i == nil || n == 0 {
		return
	}
	i.syncedRecords.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
