package notify

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// ConsoleSink prints outcome messages; errors go to stderr.
type ConsoleSink struct {
	stdout io.Writer
	stderr io.Writer
}

// NewConsoleSink creates a console sink on the process streams.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{stdout: color.Output, stderr: color.Error}
}

// NewConsoleSinkTo creates a console sink on the given writers.
func NewConsoleSinkTo(stdout, stderr io.Writer) *ConsoleSink {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ConsoleSink{stdout: stdout, stderr: stderr}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes the message color-coded by level.
func (s *ConsoleSink) Send(_ context.Context, o types.Outcome) error {
	var err error
	switch o.Level {
	case types.OutcomeError:
		_, err = color.New(color.FgRed).Fprintln(s.stderr, o.Message)
	case types.OutcomeSuccess:
		_, err = color.New(color.FgGreen).Fprintln(s.stdout, o.Message)
	default:
		_, err = color.New(color.FgCyan).Fprintln(s.stdout, o.Message)
	}
	return err
}
