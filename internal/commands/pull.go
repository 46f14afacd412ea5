// Package commands implements the CLI for the gwaspull binary.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/dwsmith1983/gwaspull/internal/config"
	"github.com/dwsmith1983/gwaspull/internal/engine"
	"github.com/dwsmith1983/gwaspull/internal/metrics"
	"github.com/dwsmith1983/gwaspull/internal/notify"
	"github.com/dwsmith1983/gwaspull/internal/pipeline"
	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/telemetry"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

type pullFlags struct {
	phecode    string
	pop        string
	configPath string
}

// deps are the collaborators a pull is built from. Tests replace the
// constructors that would reach remote services.
type deps struct {
	newStore  func(cfg *types.Config) remote.Store
	newProbe  func(cfg *types.Config, store remote.Store) remote.Probe
	newReader func(ctx context.Context, cfg *types.Config, store remote.Store, logger *slog.Logger) (engine.Reader, error)
}

func defaultDeps() deps {
	return deps{
		newStore:  newStore,
		newProbe:  newProbe,
		newReader: engine.New,
	}
}

// NewPullCmd creates the root gwaspull command, which performs one pull.
func NewPullCmd(version string) *cobra.Command {
	return newPullCmd(version, defaultDeps())
}

func newPullCmd(version string, d deps) *cobra.Command {
	var f pullFlags
	cmd := &cobra.Command{
		Use:   "gwaspull --phecode <id> --pop <pop>",
		Short: "Export one phenotype's GWAS results to the workspace bucket",
		Long: `gwaspull checks that a phenotype's ACAF results table exists in the source
dataset, projects it onto the canonical GWAS columns and writes it as TSV to
$WORKSPACE_BUCKET/data/<pop>_full_<phecode>.tsv.`,
		Version:       version,
		Args:          noArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return pipeline.ValidateParams(f.params())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPull(ctx, f, version, d, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&f.phecode, "phecode", "", "phenotype ID, e.g. 250.2 (required)")
	cmd.Flags().StringVar(&f.pop, "pop", "", "population code, e.g. eur (required)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to config file (default ./"+config.DefaultFile+" if present)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", types.ErrInvalidArguments, err)
	})
	return cmd
}

func (f pullFlags) params() types.Params {
	return types.Params{PhenotypeID: strings.TrimSpace(f.phecode), Pop: strings.TrimSpace(f.pop)}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected argument %q", types.ErrInvalidArguments, args[0])
	}
	return nil
}

func runPull(ctx context.Context, f pullFlags, version string, d deps, stdout, stderr io.Writer) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	runID := newRunID()
	logger := newLogger(stderr, cfg.LogLevel).With("run_id", runID)

	shutdown, err := telemetry.Setup(ctx, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	rec, err := metrics.New(otel.Meter("github.com/dwsmith1983/gwaspull"))
	if err != nil {
		return err
	}

	dispatcher, err := notify.NewDispatcher(ctx, cfg.Notify, logger, notify.WithConsoleWriters(stdout, stderr))
	if err != nil {
		return fmt.Errorf("configuring notifications: %w", err)
	}

	store := d.newStore(cfg)
	// The engine is only configured once the phenotype is known to exist.
	reader := engine.Lazy(func(ctx context.Context) (engine.Reader, error) {
		r, err := d.newReader(ctx, cfg, store, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring %s engine: %w", cfg.Engine.Type, err)
		}
		return r, nil
	})

	runner := pipeline.NewRunner(cfg, d.newProbe(cfg, store), reader,
		pipeline.WithDispatcher(dispatcher),
		pipeline.WithMetrics(rec),
		pipeline.WithLogger(logger),
		pipeline.WithRunID(runID),
	)
	_, err = runner.Run(ctx, f.params())
	return err
}

// newStore routes gs:// and s3:// locations to their SDK stores. Clients are
// dialed on first use so a local-only run never needs cloud credentials.
func newStore(cfg *types.Config) remote.Store {
	return remote.NewMux(
		remote.WithFactory(remote.SchemeGCS, func(ctx context.Context) (remote.Store, error) {
			s, err := remote.NewGCSStore(ctx, remote.WithUserProject(cfg.BillingProject))
			if err != nil {
				return nil, err
			}
			return s, nil
		}),
		remote.WithFactory(remote.SchemeS3, func(ctx context.Context) (remote.Store, error) {
			s, err := remote.NewS3Store(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		}),
	)
}

func newProbe(cfg *types.Config, store remote.Store) remote.Probe {
	if cfg.Probe.Type == types.ProbeGsutil {
		return remote.NewGsutilProbe(
			remote.WithGsutilBinary(cfg.Probe.GsutilPath),
			remote.WithGsutilUserProject(cfg.BillingProject),
		)
	}
	return store
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newRunID() string {
	return strings.ToLower(ulid.Make().String())
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, types.ErrInvalidArguments):
		return 2
	default:
		return 1
	}
}

// Reported reports whether err's message was already printed for the user.
func Reported(err error) bool {
	return pipeline.Reported(err)
}

// PrintError writes err to w unless it was already reported.
func PrintError(w io.Writer, err error) {
	if err == nil || Reported(err) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}
