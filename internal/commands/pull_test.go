package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/gwaspull/internal/config"
	"github.com/dwsmith1983/gwaspull/internal/engine"
	"github.com/dwsmith1983/gwaspull/internal/pipeline"
	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/internal/telemetry"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

type memReader struct {
	store  remote.Store
	opened int
}

func (r *memReader) Open(_ context.Context, src engine.Source) (table.Table, error) {
	r.opened++
	s := table.Schema{
		Fields: []table.Field{
			{Name: "locus", Type: "Locus(GRCh38)"},
			{Name: "alleles", Type: "Array[String]"},
			{Name: "BETA", Type: table.TypeFloat64},
			{Name: "Pvalue", Type: table.TypeFloat64},
		},
		Key: []string{"locus", "alleles"},
	}
	rows := []table.Row{
		{"locus": table.Locus{Contig: "chr1", Position: 5}, "alleles": []string{"A", "T"}, "BETA": 0.5, "Pvalue": 0.01},
	}
	return table.NewMemory(src.URI, s, rows, r.store)
}

type testEnv struct {
	dir    string
	reader *memReader
	deps   deps
}

func setup(t *testing.T, present bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvWorkspaceBucket, filepath.Join(dir, "ws"))
	t.Setenv(config.EnvBillingProject, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(telemetry.EnvEndpoint, "")

	root := filepath.Join(dir, "ht")
	cfg := "dataset:\n  root: " + root + "\n" +
		"engine:\n  type: hail\n  hail:\n    projectId: p\n    region: us-central1\n    clusterName: c\n    driverUri: gs://b/driver.py\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte(cfg), 0o644))

	if present {
		src := pipeline.SourcePath(root, types.Params{PhenotypeID: "250.2", Pop: "eur"})
		require.NoError(t, os.MkdirAll(src, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src, table.HailMetadataFile), []byte("x"), 0o644))
	}

	env := &testEnv{dir: dir, reader: &memReader{}}
	env.deps = deps{
		newStore: newStore,
		newProbe: newProbe,
		newReader: func(_ context.Context, _ *types.Config, store remote.Store, _ *slog.Logger) (engine.Reader, error) {
			env.reader.store = store
			return env.reader, nil
		},
	}
	return env
}

func execute(d deps, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newPullCmd("test", d)
	cmd.AddCommand(NewVersionCmd("test"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPull_Success(t *testing.T) {
	env := setup(t, true)

	stdout, _, err := execute(env.deps, "--phecode", "250.2", "--pop", "eur")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Phenotype 250.2 is in the All of Us database")
	assert.Contains(t, stdout, "Full file successfully saved to bucket.")

	data, err := os.ReadFile(filepath.Join(env.dir, "ws", "data", "eur_full_250.2.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "BETA\tHet_Q\tPvalue\n0.5\tNA\t0.01\n", string(data))
}

func TestPull_NotFound(t *testing.T) {
	env := setup(t, false)

	_, stderr, err := execute(env.deps, "--phecode", "999.9", "--pop", "eur")
	require.ErrorIs(t, err, types.ErrPhenotypeNotFound)
	assert.Equal(t, 1, ExitCode(err))
	assert.True(t, Reported(err))
	assert.Contains(t, stderr, "Phenotype 999.9 is not in the All of Us database; enter valid phenotype ID")
	assert.Zero(t, env.reader.opened)

	var buf bytes.Buffer
	PrintError(&buf, err)
	assert.Empty(t, buf.String())
}

func TestPull_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no flags", nil},
		{"missing pop", []string{"--phecode", "250.2"}},
		{"missing phecode", []string{"--pop", "eur"}},
		{"empty phecode", []string{"--phecode", "", "--pop", "eur"}},
		{"unknown flag", []string{"--phecode", "250.2", "--pop", "eur", "--chrom", "1"}},
		{"positional", []string{"--phecode", "250.2", "--pop", "eur", "extra"}},
		{"glob", []string{"--phecode", "250*", "--pop", "eur"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, true)
			// Arguments are rejected before configuration is read.
			t.Setenv(config.EnvWorkspaceBucket, "")

			_, _, err := execute(env.deps, tt.args...)
			require.ErrorIs(t, err, types.ErrInvalidArguments)
			assert.Equal(t, 2, ExitCode(err))
			assert.Zero(t, env.reader.opened)
		})
	}
}

func TestPull_MissingWorkspace(t *testing.T) {
	env := setup(t, true)
	t.Setenv(config.EnvWorkspaceBucket, "")

	_, _, err := execute(env.deps, "--phecode", "250.2", "--pop", "eur")
	require.ErrorIs(t, err, types.ErrMissingWorkspace)
	assert.Equal(t, 1, ExitCode(err))
	assert.False(t, Reported(err))
	assert.Zero(t, env.reader.opened)

	var buf bytes.Buffer
	PrintError(&buf, err)
	assert.Contains(t, buf.String(), "WORKSPACE_BUCKET")
}

func TestPull_ReaderConfigError(t *testing.T) {
	env := setup(t, true)
	env.deps.newReader = func(context.Context, *types.Config, remote.Store, *slog.Logger) (engine.Reader, error) {
		return nil, errors.New("no credentials")
	}

	_, _, err := execute(env.deps, "--phecode", "250.2", "--pop", "eur")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuring hail engine")
	assert.Contains(t, err.Error(), "no credentials")
	assert.Equal(t, 1, ExitCode(err))
}

func TestPull_NoConfigFileReachesExistenceCheck(t *testing.T) {
	env := setup(t, false)
	require.NoError(t, os.Remove(filepath.Join(env.dir, config.DefaultFile)))

	built := false
	env.deps.newReader = func(context.Context, *types.Config, remote.Store, *slog.Logger) (engine.Reader, error) {
		built = true
		return nil, errors.New("engine.hail config is required")
	}
	env.deps.newProbe = func(*types.Config, remote.Store) remote.Probe {
		return absentStore{}
	}

	_, stderr, err := execute(env.deps, "--phecode", "999.9", "--pop", "eur")
	require.ErrorIs(t, err, types.ErrPhenotypeNotFound)
	assert.Contains(t, stderr, "Phenotype 999.9 is not in the")
	assert.False(t, built)
}

func TestPull_MessagesPrintWithFileSinkOnly(t *testing.T) {
	env := setup(t, false)
	log := filepath.Join(env.dir, "outcomes.jsonl")
	cfg, err := os.ReadFile(filepath.Join(env.dir, config.DefaultFile))
	require.NoError(t, err)
	cfg = append(cfg, []byte("notify:\n  - type: file\n    path: "+log+"\n")...)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, config.DefaultFile), cfg, 0o644))

	_, stderr, err := execute(env.deps, "--phecode", "999.9", "--pop", "eur")
	require.ErrorIs(t, err, types.ErrPhenotypeNotFound)
	assert.True(t, Reported(err))
	assert.Contains(t, stderr, "Phenotype 999.9 is not in the All of Us database; enter valid phenotype ID")

	written, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Contains(t, string(written), "enter valid phenotype ID")
}

func TestVersionCmd(t *testing.T) {
	env := setup(t, true)

	stdout, _, err := execute(env.deps, "version")
	require.NoError(t, err)
	assert.Equal(t, "gwaspull test\n", stdout)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(types.ErrInvalidArguments))
	assert.Equal(t, 1, ExitCode(types.ErrExportVerificationFailed))
	assert.Equal(t, 1, ExitCode(errors.New("other")))
}

func TestNewProbe(t *testing.T) {
	store := newStore(&types.Config{})

	assert.Same(t, store, newProbe(&types.Config{Probe: types.ProbeConfig{Type: types.ProbeAPI}}, store))
	_, ok := newProbe(&types.Config{Probe: types.ProbeConfig{Type: types.ProbeGsutil}}, store).(*remote.GsutilProbe)
	assert.True(t, ok)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

type absentStore struct{}

func (absentStore) ObjectExists(context.Context, string) (bool, error) { return false, nil }

func (absentStore) DirContains(context.Context, string, string) (bool, error) { return false, nil }
