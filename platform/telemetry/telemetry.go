// Package telemetry initializes the OpenTelemetry meter provider and the
// follow-up engine's instruments.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"leadflow_backend/platform/config"
)

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Init configures the global meter provider. With no endpoint configured the
// global no-op provider stays in place.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceName string) (Shutdown, error) {
	endpoint := cfg.GetOTELEndpoint()
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if cfg.GetOTELInsecure() {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Metrics holds the follow-up engine instruments.
type Metrics struct {
	remindersCreated   metric.Int64Counter
	remindersEscalated metric.Int64Counter
	remindersWoken     metric.Int64Counter
	dispatchFailures   metric.Int64Counter
	degradedContent    metric.Int64Counter
	sweepDuration      metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.GetMeterProvider().Meter("leadflow/followup"))
}

// NewMetricsWithMeter registers instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.remindersCreated, err = meter.Int64Counter("followup.reminders.created"); err != nil {
		return nil, err
	}
	if m.remindersEscalated, err = meter.Int64Counter("followup.reminders.escalated"); err != nil {
		return nil, err
	}
	if m.remindersWoken, err = meter.Int64Counter("followup.reminders.woken"); err != nil {
		return nil, err
	}
	if m.dispatchFailures, err = meter.Int64Counter("followup.dispatch.failures"); err != nil {
		return nil, err
	}
	if m.degradedContent, err = meter.Int64Counter("followup.recommendation.degraded"); err != nil {
		return nil, err
	}
	if m.sweepDuration, err = meter.Float64Histogram("followup.sweep.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// ReminderCreated counts a new reminder for method.
func (m *Metrics) ReminderCreated(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.remindersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RemindersEscalated counts n escalations.
func (m *Metrics) RemindersEscalated(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.remindersEscalated.Add(ctx, int64(n))
}

// RemindersWoken counts n snooze wake-ups.
func (m *Metrics) RemindersWoken(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.remindersWoken.Add(ctx, int64(n))
}

// DispatchFailed counts a failed channel send.
func (m *Metrics) DispatchFailed(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.dispatchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// ContentDegraded counts a recommendation fallback.
func (m *Metrics) ContentDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	m.degradedContent.Add(ctx, 1)
}

// SweepFinished records how long a company sweep took.
func (m *Metrics) SweepFinished(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Record(ctx, d.Seconds())
}
