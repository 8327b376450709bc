package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"api"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Workers struct {
		Count             int `yaml:"count"`
		JobTimeoutSeconds int `yaml:"job_timeout_seconds"`
		MaxRetries        int `yaml:"max_retries"`
		BackoffBaseMillis int `yaml:"backoff_base_millis"`
	} `yaml:"workers"`

	Generation struct {
		HorizonDays            int `yaml:"horizon_days"`
		ChunkDays              int `yaml:"chunk_days"`
		FallbackDurationMinute int `yaml:"fallback_duration_minutes"`
		SnapshotTTLHours       int `yaml:"snapshot_ttl_hours"`
	} `yaml:"generation"`

	Dispatch struct {
		ReferenceTimezone    string  `yaml:"reference_timezone"`
		FullHorizonHour      int     `yaml:"full_horizon_hour"`
		FullHorizonMinute    int     `yaml:"full_horizon_minute"`
		CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
		SubmitRatePerSecond  float64 `yaml:"submit_rate_per_second"`
		SubmitBurst          int     `yaml:"submit_burst"`
	} `yaml:"dispatch"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/slotforge.db"
	}
	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Workers.MaxRetries <= 0 {
		cfg.Workers.MaxRetries = 3
	}
	if cfg.Generation.HorizonDays <= 0 {
		cfg.Generation.HorizonDays = 60
	}
	if cfg.Generation.ChunkDays <= 0 {
		cfg.Generation.ChunkDays = 3
	}
	if cfg.Generation.FallbackDurationMinute <= 0 {
		cfg.Generation.FallbackDurationMinute = 60
	}
	if cfg.Dispatch.ReferenceTimezone == "" {
		cfg.Dispatch.ReferenceTimezone = "UTC"
	}
	if cfg.Dispatch.CheckIntervalSeconds <= 0 {
		cfg.Dispatch.CheckIntervalSeconds = 60
	}
	if cfg.Dispatch.SubmitRatePerSecond <= 0 {
		cfg.Dispatch.SubmitRatePerSecond = 20
	}
	if cfg.Dispatch.SubmitBurst <= 0 {
		cfg.Dispatch.SubmitBurst = 30
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// JobTimeout is the wall-clock budget for a single job execution.
func (c *Config) JobTimeout() time.Duration {
	if c.Workers.JobTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Workers.JobTimeoutSeconds) * time.Second
}

// BackoffBase is the first retry delay; each retry doubles it.
func (c *Config) BackoffBase() time.Duration {
	if c.Workers.BackoffBaseMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Workers.BackoffBaseMillis) * time.Millisecond
}

// SnapshotTTL is how long cached availability snapshots live in Redis.
// Zero config means no expiry, matching a daily full regeneration cycle.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Generation.SnapshotTTLHours) * time.Hour
}
