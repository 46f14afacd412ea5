package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dataproc "cloud.google.com/go/dataproc/v2/apiv1"
	dataprocpb "cloud.google.com/go/dataproc/v2/apiv1/dataprocpb"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/option"

	"github.com/dwsmith1983/gwaspull/internal/remote"
	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// DataprocAPI is the subset of the Dataproc JobController client used here.
type DataprocAPI interface {
	SubmitJob(ctx context.Context, req *dataprocpb.SubmitJobRequest) (*dataprocpb.Job, error)
	GetJob(ctx context.Context, req *dataprocpb.GetJobRequest) (*dataprocpb.Job, error)
}

// dataprocClientWrapper wraps the real Dataproc client to satisfy DataprocAPI.
type dataprocClientWrapper struct {
	client *dataproc.JobControllerClient
}

func (w *dataprocClientWrapper) SubmitJob(ctx context.Context, req *dataprocpb.SubmitJobRequest) (*dataprocpb.Job, error) {
	return w.client.SubmitJob(ctx, req)
}

func (w *dataprocClientWrapper) GetJob(ctx context.Context, req *dataprocpb.GetJobRequest) (*dataprocpb.Job, error) {
	return w.client.GetJob(ctx, req)
}

// HailPlan is the document handed to the driver script. The driver reads the
// source table, replays Ops in order and exports the result to Destination.
type HailPlan struct {
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Ops         []table.Op `json:"ops"`
	Header      []string   `json:"header"`
}

// HailReader reads Hail table schemas from object storage and exports them by
// submitting a PySpark job to a Dataproc cluster running Hail.
type HailReader struct {
	cfg       types.HailConfig
	poll      time.Duration
	store     remote.Store
	client    DataprocAPI
	jobID     func() string
	workspace string
	logger    *slog.Logger
}

// NewHailReader creates a HailReader, dialing Dataproc unless a client is given.
func NewHailReader(ctx context.Context, cfg types.HailConfig, store remote.Store, opts ...Option) (*HailReader, error) {
	if cfg.ProjectID == "" || cfg.Region == "" || cfg.ClusterName == "" {
		return nil, fmt.Errorf("hail engine: projectId, region and clusterName are required")
	}
	o := newOptions(opts)
	if cfg.DriverURI == "" && o.workspace == "" {
		return nil, fmt.Errorf("hail engine: driverUri is required without a workspace bucket to stage the driver")
	}
	pollSpec := cfg.PollInterval
	if pollSpec == "" {
		pollSpec = types.DefaultHailPollInterval
	}
	poll, err := time.ParseDuration(pollSpec)
	if err != nil || poll <= 0 {
		return nil, fmt.Errorf("hail engine: invalid pollInterval %q", cfg.PollInterval)
	}

	if o.dataproc == nil {
		client, err := dataproc.NewJobControllerClient(ctx,
			option.WithEndpoint(cfg.Region+"-dataproc.googleapis.com:443"))
		if err != nil {
			return nil, fmt.Errorf("creating Dataproc client: %w", err)
		}
		o.dataproc = &dataprocClientWrapper{client: client}
	}
	if o.jobID == nil {
		o.jobID = func() string { return "gwaspull-" + strings.ToLower(ulid.Make().String()) }
	}
	return &HailReader{
		cfg:       cfg,
		poll:      poll,
		store:     store,
		client:    o.dataproc,
		jobID:     o.jobID,
		workspace: o.workspace,
		logger:    o.logger,
	}, nil
}

// Open reads <uri>/metadata.json.gz to learn the row fields and key.
func (r *HailReader) Open(ctx context.Context, src Source) (table.Table, error) {
	metaURI := strings.TrimSuffix(src.URI, "/") + "/" + table.HailMetadataFile
	rc, err := r.store.Open(ctx, metaURI)
	if err != nil {
		return nil, fmt.Errorf("opening hail table %s: %w", src.URI, err)
	}
	defer func() { _ = rc.Close() }()

	schema, err := table.ReadHailMetadata(rc)
	if err != nil {
		return nil, fmt.Errorf("reading hail table %s: %w", src.URI, err)
	}
	r.logger.Debug("opened hail table", "source", src.URI, "fields", len(schema.Fields), "key", schema.Key)
	return table.New(src.URI, schema, r)
}

// Materialize submits the plan to Dataproc and waits for the job to finish.
// Without a configured driverUri the embedded driver is staged first.
func (r *HailReader) Materialize(ctx context.Context, p *table.Plan, dest string) error {
	driver := r.cfg.DriverURI
	if driver == "" {
		var err error
		if driver, err = r.stageDriver(ctx); err != nil {
			return err
		}
	}
	doc := HailPlan{
		Source:      p.Source(),
		Destination: dest,
		Ops:         p.Ops(),
		Header:      p.Schema().Names(),
	}
	planJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}

	jobID := r.jobID()
	job := &dataprocpb.Job{
		Placement: &dataprocpb.JobPlacement{ClusterName: r.cfg.ClusterName},
		Reference: &dataprocpb.JobReference{ProjectId: r.cfg.ProjectID, JobId: jobID},
		Labels:    map[string]string{"app": "gwaspull"},
		TypeJob: &dataprocpb.Job_PysparkJob{
			PysparkJob: &dataprocpb.PySparkJob{
				MainPythonFileUri: driver,
				Args:              []string{"--plan", string(planJSON)},
			},
		},
	}
	out, err := r.client.SubmitJob(ctx, &dataprocpb.SubmitJobRequest{
		ProjectId: r.cfg.ProjectID,
		Region:    r.cfg.Region,
		Job:       job,
		RequestId: jobID,
	})
	if err != nil {
		return fmt.Errorf("dataproc: SubmitJob failed: %w", err)
	}
	if out.GetReference().GetJobId() != "" {
		jobID = out.GetReference().GetJobId()
	}
	r.logger.Info("submitted hail export", "job", jobID, "cluster", r.cfg.ClusterName, "destination", dest)
	return r.wait(ctx, jobID)
}

func (r *HailReader) wait(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		job, err := r.client.GetJob(ctx, &dataprocpb.GetJobRequest{
			ProjectId: r.cfg.ProjectID,
			Region:    r.cfg.Region,
			JobId:     jobID,
		})
		if err != nil {
			return fmt.Errorf("dataproc: GetJob %s failed: %w", jobID, err)
		}
		state := job.GetStatus().GetState()
		switch state {
		case dataprocpb.JobStatus_DONE:
			r.logger.Info("hail export finished", "job", jobID)
			return nil
		case dataprocpb.JobStatus_ERROR, dataprocpb.JobStatus_CANCELLED:
			return fmt.Errorf("dataproc job %s %s: %s", jobID, state, job.GetStatus().GetDetails())
		}
		r.logger.Debug("waiting for hail export", "job", jobID, "state", state.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
