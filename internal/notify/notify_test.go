package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

func testOutcome(level types.OutcomeLevel) types.Outcome {
	return types.Outcome{
		RunID:       "01J0000000000000000000TEST",
		Level:       level,
		PhenotypeID: "250.2",
		Pop:         "eur",
		Message:     "Full file successfully saved to bucket.",
		Destination: "gs://bucket/data/eur_full_250.2.tsv",
		Timestamp:   time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	sent []types.Outcome
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, o types.Outcome) error {
	s.sent = append(s.sent, o)
	return s.err
}

func TestConsoleSink_Send(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sink := NewConsoleSinkTo(&stdout, &stderr)
	assert.Equal(t, "console", sink.Name())

	ctx := context.Background()
	info := testOutcome(types.OutcomeInfo)
	info.Message = "Phenotype 250.2 is in the All of Us database"
	require.NoError(t, sink.Send(ctx, info))
	require.NoError(t, sink.Send(ctx, testOutcome(types.OutcomeSuccess)))

	failed := testOutcome(types.OutcomeError)
	failed.Message = "ERROR: File 'x' was not found in gs://bucket/data/."
	require.NoError(t, sink.Send(ctx, failed))

	assert.Contains(t, stdout.String(), "Phenotype 250.2 is in the All of Us database")
	assert.Contains(t, stdout.String(), "Full file successfully saved to bucket.")
	assert.NotContains(t, stdout.String(), "ERROR")
	assert.Contains(t, stderr.String(), "ERROR: File 'x' was not found in gs://bucket/data/.")
}

func TestWebhookSink_Send_Success(t *testing.T) {
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	assert.Equal(t, "webhook", sink.Name())
	o := testOutcome(types.OutcomeSuccess)

	require.NoError(t, sink.Send(context.Background(), o))

	var got types.Outcome
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, o.Message, got.Message)
	assert.Equal(t, o.Destination, got.Destination)
	assert.Equal(t, types.OutcomeSuccess, got.Level)
}

func TestWebhookSink_Send_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL).Send(context.Background(), testOutcome(types.OutcomeError))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookSink_SkipsInfo(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	require.NoError(t, NewWebhookSink(ts.URL).Send(context.Background(), testOutcome(types.OutcomeInfo)))
	assert.False(t, called)
}

type mockPubSub struct {
	published []*pubsub.Message
	err       error
}

func (m *mockPubSub) Publish(_ context.Context, msg *pubsub.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.published = append(m.published, msg)
	return "msg-123", nil
}

func TestPubSubSink_Send(t *testing.T) {
	mock := &mockPubSub{}
	sink, err := NewPubSubSink(context.Background(), "", "gwas-exports", WithPubSubClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "pubsub", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testOutcome(types.OutcomeSuccess)))

	require.Len(t, mock.published, 1)
	msg := mock.published[0]
	assert.Equal(t, "success", msg.Attributes["level"])
	assert.Equal(t, "250.2", msg.Attributes["phenotypeId"])
	assert.Equal(t, "eur", msg.Attributes["pop"])

	var decoded types.Outcome
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "gs://bucket/data/eur_full_250.2.tsv", decoded.Destination)
}

func TestPubSubSink_SkipsInfo(t *testing.T) {
	mock := &mockPubSub{}
	sink, err := NewPubSubSink(context.Background(), "", "gwas-exports", WithPubSubClient(mock))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), testOutcome(types.OutcomeInfo)))
	assert.Empty(t, mock.published)
}

func TestPubSubSink_PublishError(t *testing.T) {
	mock := &mockPubSub{err: errors.New("unavailable")}
	sink, err := NewPubSubSink(context.Background(), "", "gwas-exports", WithPubSubClient(mock))
	require.NoError(t, err)

	err = sink.Send(context.Background(), testOutcome(types.OutcomeError))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing to Pub/Sub")
}

func TestPubSubSink_EmptyTopicID(t *testing.T) {
	_, err := NewPubSubSink(context.Background(), "project", "")
	assert.Error(t, err)
}

func TestDispatcher_SinkErrorsDoNotStopOthers(t *testing.T) {
	first := &recordingSink{err: errors.New("boom")}
	second := &recordingSink{}

	d, err := NewDispatcher(context.Background(), nil, discardLogger(), WithConsoleWriters(io.Discard, io.Discard))
	require.NoError(t, err)
	d.AddSink(first)
	d.AddSink(second)

	d.Dispatch(context.Background(), testOutcome(types.OutcomeError))

	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)
}

func TestNewDispatcher_FromConfig(t *testing.T) {
	d, err := NewDispatcher(context.Background(), []types.NotifyConfig{
		{Type: types.NotifyConsole},
		{Type: types.NotifyWebhook, URL: "http://localhost:1"},
	}, discardLogger())
	require.NoError(t, err)
	require.Len(t, d.sinks, 2)
	assert.Equal(t, "console", d.sinks[0].Name())
	assert.Equal(t, "webhook", d.sinks[1].Name())
}

func TestNewDispatcher_ConsoleWithoutConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	d, err := NewDispatcher(context.Background(), []types.NotifyConfig{{Type: types.NotifyFile, Path: path}},
		discardLogger(), WithConsoleWriters(&stdout, &stderr))
	require.NoError(t, err)
	require.Len(t, d.sinks, 2)
	assert.Equal(t, "console", d.sinks[0].Name())

	o := testOutcome(types.OutcomeError)
	o.Message = "Phenotype 999 is not in the ACAF database; enter valid phenotype ID"
	d.Dispatch(context.Background(), o)

	assert.Contains(t, stderr.String(), o.Message)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "enter valid phenotype ID")
}

func TestNewDispatcher_NoConfigStillPrints(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d, err := NewDispatcher(context.Background(), nil, discardLogger(), WithConsoleWriters(&stdout, &stderr))
	require.NoError(t, err)

	info := testOutcome(types.OutcomeInfo)
	info.Message = "Exporting file; this may take a while."
	d.Dispatch(context.Background(), info)
	assert.Contains(t, stdout.String(), info.Message)
}

func TestNewDispatcher_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.NotifyConfig
		want string
	}{
		{"webhook without url", types.NotifyConfig{Type: types.NotifyWebhook}, "webhook URL required"},
		{"pubsub without topic", types.NotifyConfig{Type: types.NotifyPubSub, ProjectID: "p"}, "topic ID required"},
		{"unknown", types.NotifyConfig{Type: "pager"}, "unknown notify type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(context.Background(), []types.NotifyConfig{tt.cfg}, discardLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewDispatcher_ConsoleWriters(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d, err := NewDispatcher(context.Background(), []types.NotifyConfig{{Type: types.NotifyConsole}},
		discardLogger(), WithConsoleWriters(&stdout, &stderr))
	require.NoError(t, err)

	d.Dispatch(context.Background(), testOutcome(types.OutcomeSuccess))

	assert.Contains(t, stdout.String(), "Full file successfully saved to bucket.")
	assert.Empty(t, stderr.String())
}
