// Package config loads DriftWatch's TOML configuration, following
// internal/agent's config.go: a Duration wrapper for human-readable TOML
// durations, setDefaults/validate run after decode.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML string parsing ("10s", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	return nil
}

// Config is DriftWatch's top-level configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	HTTP      HTTPConfig      `toml:"http"`
	Baseline  BaselineConfig  `toml:"baseline"`
	Detect    DetectConfig    `toml:"detect"`
	Ingest    IngestConfig    `toml:"ingest"`
	Retention RetentionConfig `toml:"retention"`
}

// StorageConfig names the embedded database file.
type StorageConfig struct {
	Path string `toml:"path"`
}

// HTTPConfig controls the api.Server listener and request-rate limiting.
type HTTPConfig struct {
	ListenAddr        string  `toml:"listen_addr"`
	RateLimitPerSec   float64 `toml:"rate_limit_per_sec"`
	RateLimitBurst    int     `toml:"rate_limit_burst"`
	DrainTimeout      Duration `toml:"drain_timeout"`
}

// BaselineConfig mirrors spec §4.2's named constants.
type BaselineConfig struct {
	MinSamplesForBaseline int  `toml:"min_samples_for_baseline"`
	WindowSize            int  `toml:"window_size"`
	RefreshEvery          int  `toml:"refresh_every"`
	ComputePercentiles    bool `toml:"compute_percentiles"`
}

// DetectConfig mirrors spec §4.4's named constants.
type DetectConfig struct {
	Zsev  float64 `toml:"zsev"`
	Ksev  int     `toml:"ksev"`
	Zmod  float64 `toml:"zmod"`
	Wmod  int     `toml:"wmod"`
	Kmod  int     `toml:"kmod"`
	Znorm float64 `toml:"znorm"`
	Krec  int     `toml:"krec"`
}

// IngestConfig controls queue capacity (spec §4.5) plus the StoreTransient
// retry policy of spec §7 (K_RETRY with exponential backoff before a sample
// is dropped). Nworkers is read, defaulted and validated but does not size
// the worker pool: ingest.WorkerPool always runs one worker per queue shard.
type IngestConfig struct {
	QueueCapacity  int      `toml:"queue_capacity"`
	Nworkers       int      `toml:"nworkers"`
	MaxRetries     int      `toml:"max_retries"`
	RetryBaseDelay Duration `toml:"retry_base_delay"`
}

// RetentionConfig mirrors spec §4.6's two independent windows.
type RetentionConfig struct {
	TelemetryRetention  Duration `toml:"telemetry_retention"`
	DriftEventRetention Duration `toml:"drift_event_retention"`
	SweepInterval       Duration `toml:"sweep_interval"`
}

// Load reads, decodes, defaults, and validates a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "/var/lib/driftwatch/driftwatch.db"
	}
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}
	if cfg.HTTP.RateLimitPerSec == 0 {
		cfg.HTTP.RateLimitPerSec = 1000
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 200
	}
	if cfg.HTTP.DrainTimeout.Duration == 0 {
		cfg.HTTP.DrainTimeout.Duration = 30 * time.Second
	}

	if cfg.Baseline.MinSamplesForBaseline == 0 {
		cfg.Baseline.MinSamplesForBaseline = 100
	}
	if cfg.Baseline.WindowSize == 0 {
		cfg.Baseline.WindowSize = 1000
	}
	if cfg.Baseline.RefreshEvery == 0 {
		cfg.Baseline.RefreshEvery = 50
	}

	if cfg.Detect.Zsev == 0 {
		cfg.Detect.Zsev = 3.0
	}
	if cfg.Detect.Ksev == 0 {
		cfg.Detect.Ksev = 5
	}
	if cfg.Detect.Zmod == 0 {
		cfg.Detect.Zmod = 2.5
	}
	if cfg.Detect.Wmod == 0 {
		cfg.Detect.Wmod = 20
	}
	if cfg.Detect.Kmod == 0 {
		cfg.Detect.Kmod = 10
	}
	if cfg.Detect.Znorm == 0 {
		cfg.Detect.Znorm = 2.0
	}
	if cfg.Detect.Krec == 0 {
		cfg.Detect.Krec = 50
	}

	if cfg.Ingest.QueueCapacity == 0 {
		cfg.Ingest.QueueCapacity = 10000
	}
	if cfg.Ingest.Nworkers == 0 {
		cfg.Ingest.Nworkers = 64
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryBaseDelay.Duration == 0 {
		cfg.Ingest.RetryBaseDelay.Duration = 100 * time.Millisecond
	}

	if cfg.Retention.TelemetryRetention.Duration == 0 {
		cfg.Retention.TelemetryRetention.Duration = 7 * 24 * time.Hour
	}
	if cfg.Retention.DriftEventRetention.Duration == 0 {
		cfg.Retention.DriftEventRetention.Duration = 90 * 24 * time.Hour
	}
	if cfg.Retention.SweepInterval.Duration == 0 {
		cfg.Retention.SweepInterval.Duration = 1 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Baseline.MinSamplesForBaseline < 1 {
		return fmt.Errorf("baseline.min_samples_for_baseline must be >= 1, got %d", cfg.Baseline.MinSamplesForBaseline)
	}
	if cfg.Baseline.WindowSize < cfg.Baseline.MinSamplesForBaseline {
		return fmt.Errorf("baseline.window_size (%d) must be >= min_samples_for_baseline (%d)",
			cfg.Baseline.WindowSize, cfg.Baseline.MinSamplesForBaseline)
	}
	if cfg.Baseline.RefreshEvery < 1 {
		return fmt.Errorf("baseline.refresh_every must be >= 1, got %d", cfg.Baseline.RefreshEvery)
	}

	if cfg.Detect.Zsev <= cfg.Detect.Zmod {
		return fmt.Errorf("detect.zsev (%v) must be > detect.zmod (%v)", cfg.Detect.Zsev, cfg.Detect.Zmod)
	}
	if cfg.Detect.Zmod <= cfg.Detect.Znorm {
		return fmt.Errorf("detect.zmod (%v) must be > detect.znorm (%v)", cfg.Detect.Zmod, cfg.Detect.Znorm)
	}
	if cfg.Detect.Ksev < 1 || cfg.Detect.Kmod < 1 || cfg.Detect.Krec < 1 {
		return fmt.Errorf("detect.ksev, kmod, krec must all be >= 1")
	}
	if cfg.Detect.Wmod < cfg.Detect.Kmod {
		return fmt.Errorf("detect.wmod (%d) must be >= kmod (%d)", cfg.Detect.Wmod, cfg.Detect.Kmod)
	}

	if cfg.Ingest.QueueCapacity < 1 {
		return fmt.Errorf("ingest.queue_capacity must be >= 1, got %d", cfg.Ingest.QueueCapacity)
	}
	if cfg.Ingest.Nworkers < 1 {
		return fmt.Errorf("ingest.nworkers must be >= 1, got %d", cfg.Ingest.Nworkers)
	}
	if cfg.Ingest.MaxRetries < 0 {
		return fmt.Errorf("ingest.max_retries must be >= 0, got %d", cfg.Ingest.MaxRetries)
	}
	if cfg.Ingest.RetryBaseDelay.Duration <= 0 {
		return fmt.Errorf("ingest.retry_base_delay must be > 0")
	}

	if cfg.HTTP.RateLimitPerSec <= 0 {
		return fmt.Errorf("http.rate_limit_per_sec must be > 0, got %v", cfg.HTTP.RateLimitPerSec)
	}
	if cfg.HTTP.DrainTimeout.Duration < 0 {
		return fmt.Errorf("http.drain_timeout must not be negative")
	}

	if cfg.Retention.TelemetryRetention.Duration <= 0 {
		return fmt.Errorf("retention.telemetry_retention must be > 0")
	}
	if cfg.Retention.DriftEventRetention.Duration <= 0 {
		return fmt.Errorf("retention.drift_event_retention must be > 0")
	}
	if cfg.Retention.SweepInterval.Duration <= 0 {
		return fmt.Errorf("retention.sweep_interval must be > 0")
	}

	return nil
}
