package token

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry instruments for the token lifecycle engine.
type Metrics struct {
	ValidationsTotal   metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	TokensCreated      metric.Int64Counter
	TokensDeleted      metric.Int64Counter
	SyncEntries        metric.Int64Counter
	SnapshotFailures   metric.Int64Counter
}

// NewMetrics creates token metrics on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ValidationsTotal, err = meter.Int64Counter(
		"token_validations_total",
		metric.WithDescription("Token validation attempts by result"),
	); err != nil {
		return nil, err
	}
	if m.ValidationDuration, err = meter.Float64Histogram(
		"token_validation_duration_seconds",
		metric.WithDescription("Token validation latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.TokensCreated, err = meter.Int64Counter(
		"tokens_created_total",
		metric.WithDescription("Tokens created"),
	); err != nil {
		return nil, err
	}
	if m.TokensDeleted, err = meter.Int64Counter(
		"tokens_deleted_total",
		metric.WithDescription("Tokens deleted"),
	); err != nil {
		return nil, err
	}
	if m.SyncEntries, err = meter.Int64Counter(
		"token_sync_entries_total",
		metric.WithDescription("Sync batch entries by outcome"),
	); err != nil {
		return nil, err
	}
	if m.SnapshotFailures, err = meter.Int64Counter(
		"token_snapshot_failures_total",
		metric.WithDescription("Failed snapshot writes"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordValidation(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.ValidationsTotal.Add(ctx, 1, attrs)
	m.ValidationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordSnapshotFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.SnapshotFailures.Add(ctx, 1)
}

func (m *Metrics) recordCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokensCreated.Add(ctx, 1)
}

func (m *Metrics) recordDeleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokensDeleted.Add(ctx, 1)
}

func (m *Metrics) recordSyncEntry(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.SyncEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
