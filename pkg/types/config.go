// Copyright Dasan Software Lab, 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network
// requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// CatalogConfig holds settings for the catalog (ISBN resolution) stage.
type CatalogConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// TTBKey is the Aladin API credential. Its absence is the only
	// process-fatal condition, checked once before any row is processed.
	TTBKey string `json:"ttb_key,omitempty" yaml:"ttb_key,omitempty" mapstructure:"ttb_key"`

	// MaxResults is how many candidates one search requests (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Threshold is the composite-score match threshold in [0,1] (default 0.6).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// MaxAttempts bounds retries of transient failures (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// HoldingsConfig holds settings for the holdings aggregation stage.
type HoldingsConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PageSize is the number of records per holdings page (default 100).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// PageDelay is the pause between consecutive page requests within one
	// partition (default 100ms).
	PageDelay time.Duration `json:"page_delay" yaml:"page_delay" mapstructure:"page_delay"`

	// Partitions is the ordered, deduplicated list of partition codes to
	// query. Empty means all known partitions, home region first.
	Partitions []string `json:"partitions,omitempty" yaml:"partitions,omitempty" mapstructure:"partitions"`

	// Concurrency bounds how many partitions are queried at once
	// (default 1, sequential).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// MaxAttempts bounds retries of transient page-request failures
	// (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// BatchConfig holds settings for the batch orchestration stage.
type BatchConfig struct {
	// CheckpointEvery triggers a durable partial-output write every N rows
	// (default 10). Zero disables checkpointing.
	CheckpointEvery int `json:"checkpoint_every" yaml:"checkpoint_every" mapstructure:"checkpoint_every"`

	// Region is the home region name used to order partitions.
	Region string `json:"region" yaml:"region" mapstructure:"region"`
}

// ServerConfig holds settings for the job API front-end.
type ServerConfig struct {
	// Addr is the listen address (default ":8300").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// UploadDir receives uploaded input spreadsheets.
	UploadDir string `json:"upload_dir" yaml:"upload_dir" mapstructure:"upload_dir"`

	// OutputDir receives result spreadsheets for download.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// JobsDSN is the SQLite DSN for the job store. The default keeps jobs
	// in memory so nothing outlives the process.
	JobsDSN string `json:"jobs_dsn" yaml:"jobs_dsn" mapstructure:"jobs_dsn"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Catalog  CatalogConfig  `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	Holdings HoldingsConfig `json:"holdings" yaml:"holdings" mapstructure:"holdings"`
	Batch    BatchConfig    `json:"batch" yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
}
