// Package notify reports pull outcomes to the terminal and optional remote sinks.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// Sink is an outcome destination.
type Sink interface {
	Send(ctx context.Context, o types.Outcome) error
	Name() string
}

// Dispatcher routes outcomes to configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConsoleWriters redirects console sinks away from the process streams.
func WithConsoleWriters(stdout, stderr io.Writer) DispatcherOption {
	return func(d *Dispatcher) {
		d.stdout = stdout
		d.stderr = stderr
	}
}

// NewDispatcher creates a dispatcher from notify configs. The console sink is
// always first, so pull messages reach the terminal whatever else is listed.
func NewDispatcher(ctx context.Context, configs []types.NotifyConfig, logger *slog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, o := range opts {
		o(d)
	}
	d.sinks = append(d.sinks, d.console())
	for _, cfg := range configs {
		if cfg.Type == types.NotifyConsole {
			continue
		}
		sink, err := d.newSink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// AddSink appends a sink after construction.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Dispatch sends an outcome to every sink. Sink failures are logged and never
// change the outcome of the run.
func (d *Dispatcher) Dispatch(ctx context.Context, o types.Outcome) {
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, o); err != nil {
			d.logger.Warn("notification failed", "sink", sink.Name(), "run_id", o.RunID, "error", err)
		}
	}
}

func (d *Dispatcher) newSink(ctx context.Context, cfg types.NotifyConfig) (Sink, error) {
	switch cfg.Type {
	case types.NotifyWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.NotifyPubSub:
		return NewPubSubSink(ctx, cfg.ProjectID, cfg.TopicID)
	case types.NotifySQS:
		return NewSQSSink(ctx, cfg.QueueURL)
	case types.NotifyEvents:
		return NewEventBridgeSink(ctx, cfg.EventBus)
	case types.NotifyFile:
		return NewFileSink(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown notify type %q", cfg.Type)
	}
}

func (d *Dispatcher) console() Sink {
	if d.stdout != nil || d.stderr != nil {
		return NewConsoleSinkTo(d.stdout, d.stderr)
	}
	return NewConsoleSink()
}

// terminal reports whether o ends a run; remote sinks skip progress messages.
func terminal(o types.Outcome) bool {
	return o.Level == types.OutcomeSuccess || o.Level == types.OutcomeError
}
