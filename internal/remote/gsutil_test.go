package remote

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

func fakeRunner(out string, err error, calls *[]recordedCall) CommandRunner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return []byte(out), err
	}
}

func TestGsutilProbe_ObjectExists(t *testing.T) {
	var calls []recordedCall
	p := NewGsutilProbe(
		WithGsutilUserProject("billing-1"),
		WithCommandRunner(fakeRunner("gs://b/x.ht/metadata.json.gz\n", nil, &calls)),
	)

	ok, err := p.ObjectExists(context.Background(), "gs://b/x.ht")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "gsutil", calls[0].name)
	assert.Equal(t, []string{"-u", "billing-1", "ls", "gs://b/x.ht"}, calls[0].args)
}

func TestGsutilProbe_NonZeroExitIsAbsent(t *testing.T) {
	var calls []recordedCall
	p := NewGsutilProbe(WithCommandRunner(fakeRunner("", &exec.ExitError{}, &calls)))

	ok, err := p.ObjectExists(context.Background(), "gs://b/missing.ht")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"ls", "gs://b/missing.ht"}, calls[0].args)

	ok, err = p.DirContains(context.Background(), "gs://b/data/", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGsutilProbe_RunError(t *testing.T) {
	var calls []recordedCall
	p := NewGsutilProbe(
		WithGsutilBinary("/opt/google-cloud-sdk/bin/gsutil"),
		WithCommandRunner(fakeRunner("", errors.New("executable file not found"), &calls)),
	)

	_, err := p.ObjectExists(context.Background(), "gs://b/x")
	assert.ErrorContains(t, err, "running gsutil")
	assert.Equal(t, "/opt/google-cloud-sdk/bin/gsutil", calls[0].name)
}

func TestGsutilProbe_DirContains(t *testing.T) {
	var calls []recordedCall
	listing := "gs://ws/data/afr_full_250.2.tsv\ngs://ws/data/eur_full_250.2.tsv\n"
	p := NewGsutilProbe(WithCommandRunner(fakeRunner(listing, nil, &calls)))

	ok, err := p.DirContains(context.Background(), "gs://ws/data/", "gs://ws/data/eur_full_250.2.tsv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.DirContains(context.Background(), "gs://ws/data/", "gs://ws/data/amr_full_250.2.tsv")
	require.NoError(t, err)
	assert.False(t, ok)
}
