// Package pipeline runs one phenotype pull: existence check, projection,
// export and verification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/gwaspull/internal/engine"
	"github.com/dwsmith1983/gwaspull/internal/metrics"
	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// Dispatcher receives user-facing outcome messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, o types.Outcome)
}

// Result describes a verified export.
type Result struct {
	Source      string
	Destination string
	Columns     []string
}

// Runner executes pulls against one dataset and workspace.
type Runner struct {
	cfg        *types.Config
	probe      remote.Probe
	reader     engine.Reader
	dispatcher Dispatcher
	metrics    *metrics.Recorder
	tracer     trace.Tracer
	logger     *slog.Logger
	runID      string
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithDispatcher routes outcome messages to d.
func WithDispatcher(d Dispatcher) Option {
	return func(r *Runner) { r.dispatcher = d }
}

// WithMetrics records pull counters on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRunID tags every outcome with id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a Runner. cfg must already be validated.
func NewRunner(cfg *types.Config, probe remote.Probe, reader engine.Reader, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		probe:  probe,
		reader: reader,
		tracer: otel.Tracer("github.com/dwsmith1983/gwaspull/internal/pipeline"),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run pulls the result set for p into the workspace bucket. The first failing
// stage aborts the run; nothing after it touches remote storage.
func (r *Runner) Run(ctx context.Context, p types.Params) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "pull", trace.WithAttributes(
		attribute.String("phenotype_id", p.PhenotypeID),
		attribute.String("pop", p.Pop),
	))
	defer span.End()

	res, err := r.run(ctx, p)
	if r.metrics != nil {
		r.metrics.RecordPull(ctx, p.Pop, err == nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("pull failed", "phenotype_id", p.PhenotypeID, "pop", p.Pop, "error", err)
		return nil, err
	}
	r.logger.Info("pull complete", "destination", res.Destination, "columns", res.Columns)
	return res, nil
}

func (r *Runner) run(ctx context.Context, p types.Params) (*Result, error) {
	if err := ValidateParams(p); err != nil {
		return nil, err
	}
	src := SourcePath(r.cfg.Dataset.Root, p)
	dest := DestinationPath(r.cfg.WorkspaceBucket, p)
	dataset := r.cfg.Dataset.Name

	if err := r.validate(ctx, p, src, dataset); err != nil {
		return nil, err
	}

	t, err := r.reader.Open(ctx, engine.Source{URI: src, Params: p})
	if err != nil {
		r.fail(ctx, metrics.FailureRead)
		return nil, fmt.Errorf("opening %s: %w", src, err)
	}
	projected, cols, err := Project(t)
	if err != nil {
		r.fail(ctx, metrics.FailureProject)
		return nil, fmt.Errorf("projecting %s: %w", src, err)
	}
	r.logger.Debug("projected table", "source", src, "key", t.Schema().Key, "columns", cols)

	started := r.now()
	if err := r.export(ctx, projected, dest); err != nil {
		r.fail(ctx, metrics.FailureExport)
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordExport(ctx, r.now().Sub(started))
	}

	if err := r.verify(ctx, p, dest, cols); err != nil {
		return nil, err
	}
	return &Result{Source: src, Destination: dest, Columns: cols}, nil
}

// validate checks the source table exists. Probe errors count as absence.
func (r *Runner) validate(ctx context.Context, p types.Params, src, dataset string) error {
	ctx, span := r.tracer.Start(ctx, "validate")
	defer span.End()

	ok, err := r.probe.ObjectExists(ctx, src)
	if err != nil {
		r.logger.Debug("existence probe failed", "source", src, "error", err)
	}
	if err != nil || !ok {
		msg := fmt.Sprintf("Phenotype %s is not in the %s database; enter valid phenotype ID", p.PhenotypeID, dataset)
		r.notify(ctx, types.OutcomeError, p, msg, src, "", nil)
		r.fail(ctx, metrics.FailureNotFound)
		return &ReportedError{Message: msg, Err: fmt.Errorf("%w: %s", types.ErrPhenotypeNotFound, src)}
	}
	r.notify(ctx, types.OutcomeInfo, p, fmt.Sprintf("Phenotype %s is in the %s database", p.PhenotypeID, dataset), src, "", nil)
	return nil
}

func (r *Runner) export(ctx context.Context, t table.Table, dest string) error {
	ctx, span := r.tracer.Start(ctx, "export", trace.WithAttributes(attribute.String("destination", dest)))
	defer span.End()

	r.logger.Info("exporting table", "destination", dest)
	if err := t.Export(ctx, dest); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// verify re-lists the destination directory once. A miss fails the run even
// if the write itself succeeded.
func (r *Runner) verify(ctx context.Context, p types.Params, dest string, cols []string) error {
	ctx, span := r.tracer.Start(ctx, "verify")
	defer span.End()

	dir := DestinationDir(r.cfg.WorkspaceBucket)
	ok, err := r.probe.DirContains(ctx, dir, dest)
	if err != nil {
		r.logger.Debug("verification probe failed", "dir", dir, "error", err)
	}
	if err != nil || !ok {
		msg := fmt.Sprintf("ERROR: File '%s' was not found in %s/data/.", dest, r.cfg.WorkspaceBucket)
		r.notify(ctx, types.OutcomeError, p, msg, "", dest, cols)
		r.fail(ctx, metrics.FailureVerification)
		return &ReportedError{Message: msg, Err: fmt.Errorf("%w: %s", types.ErrExportVerificationFailed, dest)}
	}
	r.notify(ctx, types.OutcomeSuccess, p, "Full file successfully saved to bucket.", "", dest, cols)
	return nil
}

func (r *Runner) notify(ctx context.Context, level types.OutcomeLevel, p types.Params, msg, src, dest string, cols []string) {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.Dispatch(ctx, types.Outcome{
		RunID:       r.runID,
		Level:       level,
		PhenotypeID: p.PhenotypeID,
		Pop:         p.Pop,
		Message:     msg,
		Source:      src,
		Destination: dest,
		Columns:     cols,
		Timestamp:   r.now().UTC(),
	})
}

func (r *Runner) fail(ctx context.Context, kind string) {
	if r.metrics != nil {
		r.metrics.RecordFailure(ctx, kind)
	}
}

// ReportedError is a failure whose message has already been shown to the
// user through the dispatcher.
type ReportedError struct {
	Message string
	Err     error
}

func (e *ReportedError) Error() string { return e.Err.Error() }

func (e *ReportedError) Unwrap() error { return e.Err }

// Reported reports whether err was already shown to the user.
func Reported(err error) bool {
	var re *ReportedError
	return errors.As(err, &re)
}
