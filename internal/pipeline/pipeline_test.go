package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/gwaspull/internal/engine"
	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// countingProbe wraps a LocalStore and records calls.
type countingProbe struct {
	*remote.LocalStore
	exists     []string
	contains   []string
	existsErr  error
	missVerify bool
}

func (p *countingProbe) ObjectExists(ctx context.Context, path string) (bool, error) {
	p.exists = append(p.exists, path)
	if p.existsErr != nil {
		return false, p.existsErr
	}
	return p.LocalStore.ObjectExists(ctx, path)
}

func (p *countingProbe) DirContains(ctx context.Context, dir, pattern string) (bool, error) {
	p.contains = append(p.contains, dir+"|"+pattern)
	if p.missVerify {
		return false, nil
	}
	return p.LocalStore.DirContains(ctx, dir, pattern)
}

type fakeReader struct {
	schema table.Schema
	rows   []table.Row
	sink   table.Sink
	opened []engine.Source
}

func (r *fakeReader) Open(_ context.Context, src engine.Source) (table.Table, error) {
	r.opened = append(r.opened, src)
	return table.NewMemory(src.URI, r.schema, r.rows, r.sink)
}

type recordingDispatcher struct {
	outcomes []types.Outcome
}

func (d *recordingDispatcher) Dispatch(_ context.Context, o types.Outcome) {
	d.outcomes = append(d.outcomes, o)
}

func (d *recordingDispatcher) messages() []string {
	out := make([]string, len(d.outcomes))
	for i, o := range d.outcomes {
		out[i] = o.Message
	}
	return out
}

type fixture struct {
	cfg        *types.Config
	probe      *countingProbe
	reader     *fakeReader
	dispatcher *recordingDispatcher
	runner     *Runner
	params     types.Params
}

func newFixture(t *testing.T, present bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &types.Config{
		WorkspaceBucket: filepath.Join(dir, "workspace"),
		Dataset:         types.DatasetConfig{Root: filepath.Join(dir, "ht"), Name: "All of Us"},
	}
	params := types.Params{PhenotypeID: "250.2", Pop: "eur"}
	if present {
		src := SourcePath(cfg.Dataset.Root, params)
		require.NoError(t, os.MkdirAll(src, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src, table.HailMetadataFile), []byte("x"), 0o644))
	}

	store := remote.NewLocalStore()
	f := &fixture{
		cfg:   cfg,
		probe: &countingProbe{LocalStore: store},
		reader: &fakeReader{
			schema: table.Schema{
				Fields: []table.Field{
					{Name: "locus", Type: "Locus(GRCh38)"},
					{Name: "alleles", Type: "Array[String]"},
					{Name: "BETA", Type: table.TypeFloat64},
					{Name: "SE", Type: table.TypeFloat64},
					{Name: "Pvalue", Type: table.TypeFloat64},
					{Name: "CHR", Type: table.TypeString},
					{Name: "POS", Type: table.TypeInt32},
					{Name: "AF", Type: table.TypeFloat64},
				},
				Key: []string{"locus", "alleles"},
			},
			rows: []table.Row{
				{"locus": table.Locus{Contig: "chr1", Position: 1000}, "alleles": []string{"A", "G"},
					"BETA": 0.12, "SE": 0.03, "Pvalue": 2.5e-5, "CHR": "1", "POS": int32(1000), "AF": 0.4},
				{"locus": table.Locus{Contig: "chr2", Position: 20}, "alleles": []string{"C", "T"},
					"BETA": -0.5, "SE": 0.2, "Pvalue": nil, "CHR": "2", "POS": int32(20), "AF": 0.1},
			},
			sink: store,
		},
		dispatcher: &recordingDispatcher{},
		params:     params,
	}
	f.runner = NewRunner(cfg, f.probe, f.reader,
		WithDispatcher(f.dispatcher),
		WithRunID("run-1"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

const wantTSV = "BETA\tSE\tHet_Q\tPvalue\tCHR\tPOS\n" +
	"0.12\t0.03\tNA\t2.5e-05\t1\t1000\n" +
	"-0.5\t0.2\tNA\tNA\t2\t20\n"

func TestRun_Success(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.runner.Run(context.Background(), f.params)
	require.NoError(t, err)

	dest := filepath.Join(f.cfg.WorkspaceBucket, "data", "eur_full_250.2.tsv")
	assert.Equal(t, dest, res.Destination)
	assert.Equal(t, []string{"BETA", "SE", "Het_Q", "Pvalue", "CHR", "POS"}, res.Columns)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, wantTSV, string(data))

	assert.Equal(t, []string{
		"Phenotype 250.2 is in the All of Us database",
		"Full file successfully saved to bucket.",
	}, f.dispatcher.messages())
	assert.Equal(t, types.OutcomeSuccess, f.dispatcher.outcomes[1].Level)
	assert.Equal(t, "run-1", f.dispatcher.outcomes[1].RunID)
	require.Len(t, f.reader.opened, 1)
	assert.Equal(t, f.params, f.reader.opened[0].Params)
}

func TestRun_NotFoundStopsBeforeRead(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.runner.Run(context.Background(), f.params)
	require.ErrorIs(t, err, types.ErrPhenotypeNotFound)
	assert.True(t, Reported(err))

	assert.Len(t, f.probe.exists, 1)
	assert.Empty(t, f.reader.opened)
	assert.Empty(t, f.probe.contains)
	_, statErr := os.Stat(filepath.Join(f.cfg.WorkspaceBucket, "data"))
	assert.True(t, os.IsNotExist(statErr))

	assert.Equal(t, []string{"Phenotype 250.2 is not in the All of Us database; enter valid phenotype ID"}, f.dispatcher.messages())
	assert.Equal(t, types.OutcomeError, f.dispatcher.outcomes[0].Level)
}

func TestRun_ProbeErrorTreatedAsNotFound(t *testing.T) {
	f := newFixture(t, true)
	f.probe.existsErr = errors.New("permission denied")

	_, err := f.runner.Run(context.Background(), f.params)
	require.ErrorIs(t, err, types.ErrPhenotypeNotFound)
	assert.Empty(t, f.reader.opened)
}

func TestRun_VerificationMiss(t *testing.T) {
	f := newFixture(t, true)
	f.probe.missVerify = true

	_, err := f.runner.Run(context.Background(), f.params)
	require.ErrorIs(t, err, types.ErrExportVerificationFailed)
	assert.True(t, Reported(err))

	// The write itself went through.
	dest := DestinationPath(f.cfg.WorkspaceBucket, f.params)
	_, statErr := os.Stat(dest)
	require.NoError(t, statErr)

	require.Len(t, f.probe.contains, 1)
	msgs := f.dispatcher.messages()
	assert.Equal(t, "ERROR: File '"+dest+"' was not found in "+f.cfg.WorkspaceBucket+"/data/.", msgs[len(msgs)-1])
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, true)
	dest := DestinationPath(f.cfg.WorkspaceBucket, f.params)

	_, err := f.runner.Run(context.Background(), f.params)
	require.NoError(t, err)
	first, err := os.ReadFile(dest)
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background(), f.params)
	require.NoError(t, err)
	second, err := os.ReadFile(dest)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_InvalidParams(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.runner.Run(context.Background(), types.Params{PhenotypeID: "250*", Pop: "eur"})
	require.ErrorIs(t, err, types.ErrInvalidArguments)
	assert.Empty(t, f.probe.exists)
}

func TestRun_ExportError(t *testing.T) {
	f := newFixture(t, true)
	f.reader.sink = failingSink{}

	_, err := f.runner.Run(context.Background(), f.params)
	require.Error(t, err)
	assert.False(t, Reported(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, f.probe.contains)
}

type failingSink struct{}

func (failingSink) Create(context.Context, string) (io.WriteCloser, error) {
	return nil, errors.New("disk full")
}
