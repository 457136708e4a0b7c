package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Vertexflow VertexflowConfig `yaml:"vertexflow"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Window     WindowConfig     `yaml:"window"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Report     ReportConfig     `yaml:"report"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type VertexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type IndexerConfig struct {
	AssetsURL      string               `yaml:"assets_url"`
	ArchiveURL     string               `yaml:"archive_url"`
	UserAgent      string               `yaml:"user_agent"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// WindowConfig describes the snapshot window requested from the archive:
// Count buckets of Granularity seconds each, with the cutoff pushed
// CutoffSlack past the hour boundary so the snapshot written just after a
// funding event is included.
type WindowConfig struct {
	Count       int           `yaml:"count"`
	Granularity int64         `yaml:"granularity"`
	CutoffSlack time.Duration `yaml:"cutoff_slack"`
}

type FetchConfig struct {
	MaxWorkers int             `yaml:"max_workers"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ReportConfig controls the ranked output file. MinSamples is the minimum
// number of hourly snapshots a ticker needs before it appears in the
// report; tickers below it are dropped, tickers at or above it are
// averaged over whatever is available up to Window.Count.
type ReportConfig struct {
	Path       string `yaml:"path"`
	Precision  int    `yaml:"precision"`
	MinSamples int    `yaml:"min_samples"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	defaultWindowCount = 72
	defaultGranularity = 3600
	defaultCutoffSlack = 5 * time.Second
	defaultTimeout     = 10 * time.Second
	defaultMaxWorkers  = 4
	defaultRPS         = 2
	defaultBurst       = 1
	defaultReportPath  = "vertexrates.txt"
	defaultPrecision   = 6
	defaultMinSamples  = 1
)

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Window.Count == 0 {
		cfg.Window.Count = defaultWindowCount
	}
	if cfg.Window.Granularity == 0 {
		cfg.Window.Granularity = defaultGranularity
	}
	if cfg.Window.CutoffSlack == 0 {
		cfg.Window.CutoffSlack = defaultCutoffSlack
	}
	if cfg.Indexer.Timeout == 0 {
		cfg.Indexer.Timeout = defaultTimeout
	}
	if cfg.Fetch.MaxWorkers == 0 {
		cfg.Fetch.MaxWorkers = defaultMaxWorkers
	}
	if cfg.Fetch.RateLimit.RequestsPerSecond == 0 {
		cfg.Fetch.RateLimit.RequestsPerSecond = defaultRPS
	}
	if cfg.Fetch.RateLimit.BurstSize == 0 {
		cfg.Fetch.RateLimit.BurstSize = defaultBurst
	}
	if cfg.Report.Path == "" {
		cfg.Report.Path = defaultReportPath
	}
	if cfg.Report.Precision == 0 {
		cfg.Report.Precision = defaultPrecision
	}
	if cfg.Report.MinSamples == 0 {
		cfg.Report.MinSamples = defaultMinSamples
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Vertexflow.Name == "" {
		return fmt.Errorf("vertexflow.name is required")
	}

	if cfg.Vertexflow.Version == "" {
		return fmt.Errorf("vertexflow.version is required")
	}

	if cfg.Indexer.AssetsURL == "" {
		return fmt.Errorf("indexer.assets_url is required")
	}

	if cfg.Indexer.ArchiveURL == "" {
		return fmt.Errorf("indexer.archive_url is required")
	}

	if cfg.Window.Count <= 0 {
		return fmt.Errorf("window.count must be greater than 0")
	}

	if cfg.Window.Granularity <= 0 {
		return fmt.Errorf("window.granularity must be greater than 0")
	}

	if cfg.Fetch.MaxWorkers <= 0 {
		return fmt.Errorf("fetch.max_workers must be greater than 0")
	}

	if cfg.Fetch.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetch.rate_limit.requests_per_second must be greater than 0")
	}

	if cfg.Report.MinSamples < 1 {
		return fmt.Errorf("report.min_samples must be at least 1")
	}

	if cfg.Report.MinSamples > cfg.Window.Count {
		return fmt.Errorf("report.min_samples cannot exceed window.count")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when s3 is enabled")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when s3 is enabled")
		}
		if IsProductionLike(AppEnvironment()) && cfg.Storage.S3.AccessKeyID == "" && cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3 credentials are required in %s", AppEnvironment())
		}
	}

	return nil
}
