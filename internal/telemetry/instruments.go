package telemetry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments records per-stage and per-run metrics.
type Instruments struct {
	stageDuration metric.Float64Histogram
	stageCount    metric.Int64Counter
	runCount      metric.Int64Counter
}

// NewInstruments registers the pipeline instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	stageDuration, err := meter.Float64Histogram("persona.stage.duration",
		metric.WithDescription("Wall time spent in a pipeline stage"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: stage duration histogram")
	}
	stageCount, err := meter.Int64Counter("persona.stage.count",
		metric.WithDescription("Pipeline stages finished, by status"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: stage counter")
	}
	runCount, err := meter.Int64Counter("persona.run.count",
		metric.WithDescription("Runs finished, by outcome"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: run counter")
	}
	return &Instruments{stageDuration: stageDuration, stageCount: stageCount, runCount: runCount}, nil
}

// RecordStage records one finished stage.
func (i *Instruments) RecordStage(ctx context.Context, stage, status string, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	)
	i.stageDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
	i.stageCount.Add(ctx, 1, attrs)
}

// RecordRun records one finished run with its outcome (done, error, reset).
func (i *Instruments) RecordRun(ctx context.Context, outcome string, live bool) {
	if i == nil {
		return
	}
	i.runCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("live", live),
	))
}
