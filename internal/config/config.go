// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML file -> environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// Config is the root configuration structure for the shipper.
type Config struct {
	LogLevel   string           `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Ingestors  IngestorConfig   `koanf:"ingestors"`
	Parser     ParserConfig     `koanf:"parser"`
	Enricher   EnricherConfig   `koanf:"enricher"`
	Azure      AzureConfig      `koanf:"azure"`
	Transform  TransformConfig  `koanf:"transform"`
	Batch      BatchConfig      `koanf:"batch"`
	Request    RequestConfig    `koanf:"request"`
	DeadLetter DeadLetterConfig `koanf:"deadletter" yaml:"dead_letter" json:"dead_letter"`
}

// PipelineConfig controls the pipeline behavior.
type PipelineConfig struct {
	BufferSize       int           `koanf:"buffersize" yaml:"buffer_size" json:"buffer_size"`
	ShutdownTimeout  time.Duration `koanf:"shutdowntimeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	DropOnFullBuffer bool          `koanf:"droponbufferfull" yaml:"drop_on_full_buffer" json:"drop_on_full_buffer"`
}

// IngestorConfig holds configuration for all ingestors.
type IngestorConfig struct {
	File    FileIngestorConfig    `koanf:"file"`
	Journal JournalIngestorConfig `koanf:"journal"`
	Stdin   StdinIngestorConfig   `koanf:"stdin"`
}

// FileIngestorConfig configures the file tailing ingestor.
type FileIngestorConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Paths         []string `koanf:"paths"`
	Exclude       []string `koanf:"exclude"`
	ReadFromStart bool     `koanf:"readfromstart" yaml:"read_from_start" json:"read_from_start"`
}

// JournalIngestorConfig configures the systemd journal ingestor.
type JournalIngestorConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Units       []string `koanf:"units"`
	Identifiers []string `koanf:"identifiers"`
}

// StdinIngestorConfig configures the stdin ingestor.
type StdinIngestorConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ParserConfig configures the parsing processor.
type ParserConfig struct {
	Enabled        bool     `koanf:"enabled"`
	JSONAutoDetect bool     `koanf:"jsonautodetect" yaml:"json_auto_detect" json:"json_auto_detect"`
	Patterns       []string `koanf:"patterns"` // Named pattern ("combined", "syslog", ...) or regex with named groups
}

// EnricherConfig configures the enrichment processor.
type EnricherConfig struct {
	Enabled      bool              `koanf:"enabled"`
	AddHostname  bool              `koanf:"addhostname" yaml:"add_hostname" json:"add_hostname"`
	AddTimestamp bool              `koanf:"addtimestamp" yaml:"add_timestamp" json:"add_timestamp"`
	StaticLabels map[string]string `koanf:"staticlabels" yaml:"static_labels" json:"static_labels"`
}

// AzureConfig identifies the Data Collection Rule ingestion endpoint and the
// credentials used against it. Leaving the tenant/client/secret triple empty
// selects ambient identity (managed identity, workload identity, az login).
type AzureConfig struct {
	EndpointHost         string        `koanf:"endpointhost" yaml:"endpoint_host" json:"endpoint_host"`
	ImmutableID          string        `koanf:"immutableid" yaml:"immutable_id" json:"immutable_id"`
	StreamName           string        `koanf:"streamname" yaml:"stream_name" json:"stream_name"`
	TenantID             string        `koanf:"tenantid" yaml:"tenant_id" json:"tenant_id"`
	ClientID             string        `koanf:"clientid" yaml:"client_id" json:"client_id"`
	ClientSecret         string        `koanf:"clientsecret" yaml:"client_secret" json:"client_secret"`
	TokenRefreshInterval time.Duration `koanf:"tokenrefreshinterval" yaml:"token_refresh_interval" json:"token_refresh_interval"`
}

// HasClientSecret reports whether the explicit service-principal triple is set.
func (a AzureConfig) HasClientSecret() bool {
	return a.TenantID != "" && a.ClientID != "" && a.ClientSecret != ""
}

// partialClientSecret reports whether only some of the triple is set.
func (a AzureConfig) partialClientSecret() bool {
	any := a.TenantID != "" || a.ClientID != "" || a.ClientSecret != ""
	return any && !a.HasClientSecret()
}

// TransformConfig shapes the records sent upstream.
type TransformConfig struct {
	OnlyFields      []string `koanf:"onlyfields" yaml:"only_fields" json:"only_fields"`
	ExceptFields    []string `koanf:"exceptfields" yaml:"except_fields" json:"except_fields"`
	TimestampFormat string   `koanf:"timestampformat" yaml:"timestamp_format" json:"timestamp_format"` // "rfc3339" or "unix"
}

// BatchConfig controls how events accumulate before delivery.
type BatchConfig struct {
	MaxBytes  int           `koanf:"maxbytes" yaml:"max_bytes" json:"max_bytes"`
	MaxEvents int           `koanf:"maxevents" yaml:"max_events" json:"max_events"` // 0 = no event-count limit
	Timeout   time.Duration `koanf:"timeout"`
}

// RequestConfig controls the delivery drivers.
type RequestConfig struct {
	Concurrency         int           `koanf:"concurrency"`
	Timeout             time.Duration `koanf:"timeout"`
	RetryInitialBackoff time.Duration `koanf:"retryinitialbackoff" yaml:"retry_initial_backoff" json:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `koanf:"retrymaxbackoff" yaml:"retry_max_backoff" json:"retry_max_backoff"`
	MaxRetries          int           `koanf:"maxretries" yaml:"max_retries" json:"max_retries"` // 0 = retry until canceled
}

// DeadLetterConfig configures the rotating file for batches given up on.
type DeadLetterConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"maxsizemb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `koanf:"maxbackups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `koanf:"maxagedays" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			BufferSize:       1000,
			ShutdownTimeout:  30 * time.Second,
			DropOnFullBuffer: false,
		},
		Ingestors: IngestorConfig{
			File:    FileIngestorConfig{Enabled: false},
			Journal: JournalIngestorConfig{Enabled: false},
			Stdin:   StdinIngestorConfig{Enabled: false},
		},
		Parser: ParserConfig{
			Enabled:        true,
			JSONAutoDetect: true,
		},
		Enricher: EnricherConfig{
			Enabled:      true,
			AddHostname:  true,
			AddTimestamp: false,
		},
		Azure: AzureConfig{
			TokenRefreshInterval: time.Hour,
		},
		Transform: TransformConfig{
			TimestampFormat: "rfc3339",
		},
		Batch: BatchConfig{
			MaxBytes:  1_000_000,
			MaxEvents: 0,
			Timeout:   10 * time.Second,
		},
		Request: RequestConfig{
			Concurrency:         4,
			Timeout:             30 * time.Second,
			RetryInitialBackoff: time.Second,
			RetryMaxBackoff:     60 * time.Second,
			MaxRetries:          0,
		},
		DeadLetter: DeadLetterConfig{
			Enabled:    false,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	// Add file source if path provided or if default config exists
	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		// Try default config locations
		for _, path := range []string{"./config.yaml", "/etc/azmon-shipper/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	// Add environment variable support
	opts = append(opts, configloader.WithEnv[Config]("AZMON_SHIPPER_"))

	// Load configuration
	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. It performs
// no network I/O so it is safe for the validate subcommand.
func (c *Config) Validate() error {
	if !c.Ingestors.File.Enabled && !c.Ingestors.Journal.Enabled && !c.Ingestors.Stdin.Enabled {
		return errors.New("no ingestors enabled")
	}
	if c.Ingestors.File.Enabled && len(c.Ingestors.File.Paths) == 0 {
		return errors.New("file ingestor enabled but no paths configured")
	}

	if c.Azure.EndpointHost == "" {
		return errors.New("azure.endpoint_host is required")
	}
	if c.Azure.ImmutableID == "" {
		return errors.New("azure.immutable_id is required")
	}
	if c.Azure.StreamName == "" {
		return errors.New("azure.stream_name is required")
	}
	if c.Azure.partialClientSecret() {
		return errors.New("azure credentials: tenant_id, client_id and client_secret must be set together")
	}
	if c.Azure.TokenRefreshInterval <= 0 {
		return errors.New("azure.token_refresh_interval must be positive")
	}

	switch c.Transform.TimestampFormat {
	case "rfc3339", "unix":
	default:
		return fmt.Errorf("transform.timestamp_format: unknown format %q", c.Transform.TimestampFormat)
	}

	if c.Batch.MaxBytes <= 0 {
		return errors.New("batch.max_bytes must be positive")
	}
	if c.Batch.Timeout <= 0 {
		return errors.New("batch.timeout must be positive")
	}

	if c.Request.Concurrency < 1 {
		return errors.New("request.concurrency must be at least 1")
	}
	if c.Request.Timeout <= 0 {
		return errors.New("request.timeout must be positive")
	}
	if c.Request.RetryInitialBackoff <= 0 || c.Request.RetryMaxBackoff < c.Request.RetryInitialBackoff {
		return errors.New("request retry backoff bounds are invalid")
	}

	if c.DeadLetter.Enabled && c.DeadLetter.Path == "" {
		return errors.New("dead_letter.path is required when dead_letter.enabled is true")
	}

	return nil
}
