// Package metrics records pull counters and export latency as OpenTelemetry
// instruments. With no meter provider configured the instruments are no-ops.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Failure kinds recorded by RecordFailure.
const (
	FailureNotFound     = "phenotype_not_found"
	FailureRead         = "read"
	FailureProject      = "project"
	FailureExport       = "export"
	FailureVerification = "verification"
)

// Recorder holds the instruments for one process.
type Recorder struct {
	pulls          metric.Int64Counter
	failures       metric.Int64Counter
	exportDuration metric.Float64Histogram
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	pulls, err := meter.Int64Counter("gwaspull.pulls",
		metric.WithDescription("Completed pull invocations by outcome."))
	if err != nil {
		return nil, fmt.Errorf("creating pulls counter: %w", err)
	}
	failures, err := meter.Int64Counter("gwaspull.failures",
		metric.WithDescription("Failed pulls by stage."))
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	exportDuration, err := meter.Float64Histogram("gwaspull.export.duration",
		metric.WithDescription("Time spent materializing and writing the TSV."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating export histogram: %w", err)
	}
	return &Recorder{pulls: pulls, failures: failures, exportDuration: exportDuration}, nil
}

// RecordPull counts a finished run.
func (r *Recorder) RecordPull(ctx context.Context, pop string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.pulls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("pop", pop),
	))
}

// RecordFailure counts a failure at the given stage.
func (r *Recorder) RecordFailure(ctx context.Context, kind string) {
	r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordExport observes an export's wall time.
func (r *Recorder) RecordExport(ctx context.Context, d time.Duration) {
	r.exportDuration.Record(ctx, d.Seconds())
}
