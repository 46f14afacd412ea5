package types

// Default dataset location and label.
const (
	DefaultDatasetRoot = "gs://fc-aou-datasets-controlled/AllxAll/v1/ht"
	DefaultDatasetName = "All of Us"
)

// DefaultBigQueryTableTemplate maps a pull onto a BigQuery table name.
const DefaultBigQueryTableTemplate = "{pop}_phenotype_{phecode}"

// DefaultHailPollInterval is how often a submitted Dataproc job is polled.
const DefaultHailPollInterval = "15s"

// Config is the resolved gwaspull configuration (gwaspull.yaml plus environment).
type Config struct {
	WorkspaceBucket string         `yaml:"workspaceBucket" json:"workspaceBucket"`
	BillingProject  string         `yaml:"billingProject,omitempty" json:"billingProject,omitempty"`
	Dataset         DatasetConfig  `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	Probe           ProbeConfig    `yaml:"probe,omitempty" json:"probe,omitempty"`
	Engine          EngineConfig   `yaml:"engine,omitempty" json:"engine,omitempty"`
	Notify          []NotifyConfig `yaml:"notify,omitempty" json:"notify,omitempty"`
	LogLevel        string         `yaml:"logLevel,omitempty" json:"logLevel,omitempty"`
}

// DatasetConfig locates the read-only source dataset.
type DatasetConfig struct {
	Root string `yaml:"root,omitempty" json:"root,omitempty"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"` // shown in user messages
}

// ProbeConfig selects the remote probe implementation.
type ProbeConfig struct {
	Type ProbeType `yaml:"type,omitempty" json:"type,omitempty"`
	// GsutilPath overrides the gsutil binary when Type is gsutil.
	GsutilPath string `yaml:"gsutilPath,omitempty" json:"gsutilPath,omitempty"`
}

// EngineConfig selects and configures the table engine.
type EngineConfig struct {
	Type     EngineType      `yaml:"type,omitempty" json:"type,omitempty"`
	Hail     *HailConfig     `yaml:"hail,omitempty" json:"hail,omitempty"`
	BigQuery *BigQueryConfig `yaml:"bigquery,omitempty" json:"bigquery,omitempty"`
}

// HailConfig points at a Dataproc cluster with Hail installed and the driver
// script that replays a projection plan against a Hail table.
type HailConfig struct {
	ProjectID    string `yaml:"projectId" json:"projectId"`
	Region       string `yaml:"region" json:"region"`
	ClusterName  string `yaml:"clusterName" json:"clusterName"`
	DriverURI    string `yaml:"driverUri" json:"driverUri"`
	PollInterval string `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`
}

// BigQueryConfig locates GWAS tables mirrored into BigQuery.
type BigQueryConfig struct {
	ProjectID     string `yaml:"projectId" json:"projectId"`
	DatasetID     string `yaml:"datasetId" json:"datasetId"`
	TableTemplate string `yaml:"tableTemplate,omitempty" json:"tableTemplate,omitempty"`
}

// NotifyConfig configures one notification sink.
type NotifyConfig struct {
	Type      NotifyType `yaml:"type" json:"type"`
	URL       string     `yaml:"url,omitempty" json:"url,omitempty"`
	ProjectID string     `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	TopicID   string     `yaml:"topicId,omitempty" json:"topicId,omitempty"`
	QueueURL  string     `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
	EventBus  string     `yaml:"eventBus,omitempty" json:"eventBus,omitempty"`
	Path      string     `yaml:"path,omitempty" json:"path,omitempty"` // file sink, JSON lines
}
