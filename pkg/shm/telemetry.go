package shm

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shmqueue/pkg/shm"

// telemetry carries the OpenTelemetry instruments of the lifecycle calls.
// The data path is measured by the prometheus counters in metrics.go.
type telemetry struct {
	tracer trace.Tracer
	open   metric.Int64UpDownCounter
}

func newTelemetry(config *Config) telemetry {
	tracer := config.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := config.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	open, err := meter.Int64UpDownCounter("shmq.segments.open",
		metric.WithDescription("Queue handles currently attached to a segment."),
		metric.WithUnit("{handle}"))
	if err != nil {
		internalLogger.warnf("shmq.segments.open instrument unavailable: %v", err)
		open = metricnoop.Int64UpDownCounter{}
	}
	return telemetry{tracer: tracer, open: open}
}

func queueAttributes(name string, role Role) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("shm.queue", name),
		attribute.String("shm.role", role.String()),
	}
}

func (t telemetry) start(ctx context.Context, op, name string, role Role) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, op, trace.WithAttributes(queueAttributes(name, role)...))
}

func (t telemetry) handleOpened(ctx context.Context, name string, role Role) {
	t.open.Add(ctx, 1, metric.WithAttributes(queueAttributes(name, role)...))
}

func (t telemetry) handleClosed(ctx context.Context, name string, role Role) {
	t.open.Add(ctx, -1, metric.WithAttributes(queueAttributes(name, role)...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
