package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// gsutil diagnostics are suppressed; only the exit status matters.
	cmd.Stderr = nil
	err := cmd.Run()
	return stdout.Bytes(), err
}

// GsutilProbe checks remote state by shelling out to gsutil.
type GsutilProbe struct {
	bin         string
	userProject string
	run         CommandRunner
}

// GsutilOption configures a GsutilProbe.
type GsutilOption func(*GsutilProbe)

// WithGsutilBinary overrides the gsutil executable.
func WithGsutilBinary(path string) GsutilOption {
	return func(p *GsutilProbe) {
		if path != "" {
			p.bin = path
		}
	}
}

// WithGsutilUserProject passes -u project to every invocation.
func WithGsutilUserProject(project string) GsutilOption {
	return func(p *GsutilProbe) { p.userProject = project }
}

// WithCommandRunner replaces process execution (useful for testing).
func WithCommandRunner(r CommandRunner) GsutilOption {
	return func(p *GsutilProbe) { p.run = r }
}

// NewGsutilProbe creates a GsutilProbe.
func NewGsutilProbe(opts ...GsutilOption) *GsutilProbe {
	p := &GsutilProbe{bin: "gsutil", run: execRunner}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *GsutilProbe) ls(ctx context.Context, path string) ([]byte, error) {
	var args []string
	if p.userProject != "" {
		args = append(args, "-u", p.userProject)
	}
	args = append(args, "ls", path)
	return p.run(ctx, p.bin, args...)
}

// exitFailure separates "command ran and failed" from "could not run".
func exitFailure(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ObjectExists is true when `gsutil ls path` exits zero.
func (p *GsutilProbe) ObjectExists(ctx context.Context, path string) (bool, error) {
	if _, err := p.ls(ctx, path); err != nil {
		if exitFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("running gsutil: %w", err)
	}
	return true, nil
}

// DirContains is `gsutil ls dir | grep pattern` with a literal pattern.
func (p *GsutilProbe) DirContains(ctx context.Context, dir, pattern string) (bool, error) {
	out, err := p.ls(ctx, dir)
	if err != nil {
		if exitFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("running gsutil: %w", err)
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if strings.Contains(sc.Text(), pattern) {
			return true, nil
		}
	}
	return false, sc.Err()
}
