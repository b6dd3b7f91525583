package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Graph         Graph         `toml:"graph"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Patterns      Patterns      `toml:"patterns"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	CacheDir    string `toml:"cache_dir"`
	OutputDir   string `toml:"output_dir"`
}

type Graph struct {
	Source        string        `toml:"source"`
	FanoutLimit   int           `toml:"fanout_limit"`
	Watch         bool          `toml:"watch"`
	WatchDebounce time.Duration `toml:"watch_debounce"`
}

type Pipeline struct {
	MaxRetries       int           `toml:"max_retries"`
	RetryBaseDelay   time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `toml:"retry_max_delay"`
	CacheEnabled     *bool         `toml:"cache_enabled"`
	CachePath        string        `toml:"cache_path"`
	CacheMemoryItems int           `toml:"cache_memory_items"`
	ParallelWorkers  int           `toml:"parallel_workers"`
	BatchSize        int           `toml:"batch_size"`
	ItemTimeout      time.Duration `toml:"item_timeout"`
	SubmitRate       float64       `toml:"submit_rate"`
	SubmitBurst      int           `toml:"submit_burst"`
}

type Patterns struct {
	ConfigGlobs []string `toml:"config_globs"`
}

type Observability struct {
	MetricsEnabled bool   `toml:"metrics_enabled"`
	MetricsAddr    string `toml:"metrics_addr"`
	OTLPEndpoint   string `toml:"otlp_endpoint"`
}

func (p Pipeline) CacheOn() bool {
	if p.CacheEnabled == nil {
		return true
	}
	return *p.CacheEnabled
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateGraph(&cfg); err != nil {
		return nil, err
	}
	if err := validatePipeline(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a usable config without reading any file. One-shot CLI
// modes use it when no gapscan.toml is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = "data/cache"
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		cfg.Paths.OutputDir = "out"
	}

	if cfg.Graph.FanoutLimit == 0 {
		cfg.Graph.FanoutLimit = 5
	}
	if cfg.Graph.WatchDebounce == 0 {
		cfg.Graph.WatchDebounce = 500 * time.Millisecond
	}

	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.RetryBaseDelay <= 0 {
		cfg.Pipeline.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Pipeline.RetryMaxDelay <= 0 {
		cfg.Pipeline.RetryMaxDelay = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Pipeline.CachePath) == "" {
		cfg.Pipeline.CachePath = "stage_cache.db"
	}
	if cfg.Pipeline.CacheMemoryItems == 0 {
		cfg.Pipeline.CacheMemoryItems = 256
	}
	if cfg.Pipeline.ParallelWorkers == 0 {
		cfg.Pipeline.ParallelWorkers = 4
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 10
	}
	if cfg.Pipeline.ItemTimeout <= 0 {
		cfg.Pipeline.ItemTimeout = 5 * time.Minute
	}
	if cfg.Pipeline.SubmitBurst <= 0 {
		cfg.Pipeline.SubmitBurst = 1
	}

	if strings.TrimSpace(cfg.Observability.MetricsAddr) == "" {
		cfg.Observability.MetricsAddr = "127.0.0.1:9190"
	}
}

// StageCachePath resolves the stage cache file under the cache dir unless an
// absolute path was configured.
func (c *Config) StageCachePath() string {
	if filepath.IsAbs(c.Pipeline.CachePath) {
		return c.Pipeline.CachePath
	}
	return filepath.Join(c.Paths.CacheDir, c.Pipeline.CachePath)
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; only version 1 is supported", cfg.Version)
	}
	return nil
}

func validateGraph(cfg *Config) error {
	if cfg.Graph.FanoutLimit < 1 {
		return fmt.Errorf("graph.fanout_limit must be >= 1, got %d", cfg.Graph.FanoutLimit)
	}
	if cfg.Graph.Watch && strings.TrimSpace(cfg.Graph.Source) == "" {
		return fmt.Errorf("graph.watch=true requires graph.source")
	}
	return nil
}

func validatePipeline(cfg *Config) error {
	p := cfg.Pipeline
	if p.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.RetryMaxDelay < p.RetryBaseDelay {
		return fmt.Errorf("pipeline.retry_max_delay must be >= retry_base_delay")
	}
	if p.ParallelWorkers < 1 {
		return fmt.Errorf("pipeline.parallel_workers must be >= 1, got %d", p.ParallelWorkers)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be >= 1, got %d", p.BatchSize)
	}
	if p.SubmitRate < 0 {
		return fmt.Errorf("pipeline.submit_rate must be >= 0, got %f", p.SubmitRate)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.MetricsEnabled && strings.TrimSpace(cfg.Observability.MetricsAddr) == "" {
		return fmt.Errorf("observability.metrics_addr must not be empty when metrics are enabled")
	}
	return nil
}
