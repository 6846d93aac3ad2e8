package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "workflow-orchestrator/backend/internal/engine"

type instruments struct {
	tracer       trace.Tracer
	runs         metric.Int64Counter
	stepDuration metric.Float64Histogram
	retries      metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	runs, err := meter.Int64Counter("workflow.runs",
		metric.WithDescription("Finished runs by terminal status"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("workflow.step.duration",
		metric.WithDescription("Step execution time including retries"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("workflow.step.retries",
		metric.WithDescription("Adapter invocations retried after a transient failure"))
	if err != nil {
		return nil, err
	}

	return &instruments{
		tracer:       tp.Tracer(instrumentationName),
		runs:         runs,
		stepDuration: stepDuration,
		retries:      retries,
	}, nil
}
