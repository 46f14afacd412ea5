// Package engine opens GWAS result tables on the configured compute backend.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// Source identifies the table to open.
type Source struct {
	// URI is the canonical .ht location of the result set.
	URI    string
	Params types.Params
}

// Reader opens a remote table for projection and export.
type Reader interface {
	Open(ctx context.Context, src Source) (table.Table, error)
}

// New builds the Reader selected by cfg.Engine.Type.
func New(ctx context.Context, cfg *types.Config, store remote.Store, logger *slog.Logger) (Reader, error) {
	switch cfg.Engine.Type {
	case types.EngineHail:
		if cfg.Engine.Hail == nil {
			return nil, fmt.Errorf("hail engine requires engine.hail config")
		}
		return NewHailReader(ctx, *cfg.Engine.Hail, store, WithLogger(logger), WithWorkspace(cfg.WorkspaceBucket))
	case types.EngineBigQuery:
		if cfg.Engine.BigQuery == nil {
			return nil, fmt.Errorf("bigquery engine requires engine.bigquery config")
		}
		return NewBigQueryReader(ctx, *cfg.Engine.BigQuery, store, WithLogger(logger))
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine.Type)
	}
}

// Option configures a Reader.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	dataproc  DataprocAPI
	bigquery  BigQueryAPI
	jobID     func() string
	workspace string
}

// WithLogger sets the logger used for job progress.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDataprocClient sets a custom Dataproc client (useful for testing).
func WithDataprocClient(c DataprocAPI) Option {
	return func(o *options) { o.dataproc = c }
}

// WithBigQueryClient sets a custom BigQuery client (useful for testing).
func WithBigQueryClient(c BigQueryAPI) Option {
	return func(o *options) { o.bigquery = c }
}

// WithJobID overrides Dataproc job ID generation.
func WithJobID(f func() string) Option {
	return func(o *options) { o.jobID = f }
}

// WithWorkspace sets the bucket the Hail driver is staged to.
func WithWorkspace(bucket string) Option {
	return func(o *options) { o.workspace = bucket }
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
