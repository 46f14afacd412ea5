// Package config handles loading and validation of gwaspull configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dwsmith1983/gwaspull/pkg/types"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "gwaspull.yaml"

// Environment variables consulted after the YAML file.
const (
	EnvWorkspaceBucket = "WORKSPACE_BUCKET"
	EnvBillingProject  = "GOOGLE_PROJECT"
	EnvLogLevel        = "GWASPULL_LOG_LEVEL"
)

// Load reads the YAML config at path, overlays the environment and validates
// the result. An empty path falls back to DefaultFile, which may be absent.
func Load(path string) (*types.Config, error) {
	var cfg types.Config

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *types.Config) {
	if v := os.Getenv(EnvWorkspaceBucket); v != "" {
		cfg.WorkspaceBucket = v
	}
	if v := os.Getenv(EnvBillingProject); v != "" {
		cfg.BillingProject = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *types.Config) {
	cfg.WorkspaceBucket = strings.TrimRight(strings.TrimSpace(cfg.WorkspaceBucket), "/")
	if cfg.Dataset.Root == "" {
		cfg.Dataset.Root = types.DefaultDatasetRoot
	}
	cfg.Dataset.Root = strings.TrimRight(cfg.Dataset.Root, "/")
	if cfg.Dataset.Name == "" {
		cfg.Dataset.Name = types.DefaultDatasetName
	}
	if cfg.Probe.Type == "" {
		cfg.Probe.Type = types.ProbeAPI
	}
	if cfg.Engine.Type == "" {
		cfg.Engine.Type = types.EngineHail
	}
	if cfg.Engine.Hail != nil && cfg.Engine.Hail.PollInterval == "" {
		cfg.Engine.Hail.PollInterval = types.DefaultHailPollInterval
	}
	if cfg.Engine.BigQuery != nil && cfg.Engine.BigQuery.TableTemplate == "" {
		cfg.Engine.BigQuery.TableTemplate = types.DefaultBigQueryTableTemplate
	}
	if len(cfg.Notify) == 0 {
		cfg.Notify = []types.NotifyConfig{{Type: types.NotifyConsole}}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *types.Config) error {
	if cfg.WorkspaceBucket == "" {
		return fmt.Errorf("%w: %s is not set", types.ErrMissingWorkspace, EnvWorkspaceBucket)
	}

	switch cfg.Probe.Type {
	case types.ProbeAPI, types.ProbeGsutil:
	default:
		return fmt.Errorf("unknown probe type %q", cfg.Probe.Type)
	}

	// Engine sections are checked when the engine is first used, so a pull
	// for a missing phenotype never needs one.
	switch cfg.Engine.Type {
	case types.EngineHail, types.EngineBigQuery:
	default:
		return fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}

	for i, n := range cfg.Notify {
		switch n.Type {
		case types.NotifyConsole:
		case types.NotifyWebhook:
			if n.URL == "" {
				return fmt.Errorf("notify[%d]: webhook url is required", i)
			}
		case types.NotifyPubSub:
			if n.TopicID == "" {
				return fmt.Errorf("notify[%d]: pubsub topicId is required", i)
			}
		case types.NotifySQS:
			if n.QueueURL == "" {
				return fmt.Errorf("notify[%d]: sqs queueUrl is required", i)
			}
		case types.NotifyEvents:
		case types.NotifyFile:
			if n.Path == "" {
				return fmt.Errorf("notify[%d]: file path is required", i)
			}
		default:
			return fmt.Errorf("notify[%d]: unknown type %q", i, n.Type)
		}
	}
	return nil
}
