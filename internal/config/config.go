// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	URL           string        `yaml:"url"`
	Exchange      string        `yaml:"exchange"`
	WorkQueue     string        `yaml:"work_queue"`
	DelayQueue    string        `yaml:"delay_queue"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Prefetch      int           `yaml:"prefetch"`
	ConsumerTag   string        `yaml:"consumer_tag"`
}

type GenerationConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type OrchestratorConfig struct {
	PollCountdown  time.Duration `yaml:"poll_countdown"`
	MaxPolls       int           `yaml:"max_polls"`
	AdHocExpiry    time.Duration `yaml:"ad_hoc_expiry"`
	PeriodicExpiry time.Duration `yaml:"periodic_expiry"`
	Workers        int           `yaml:"workers"` // consumer worker pool size
}

type SchedulerConfig struct {
	BatchType       string `yaml:"batch_type"`
	Angle           string `yaml:"angle"`
	Quality         string `yaml:"quality"`
	BatchSize       int    `yaml:"batch_size"`
	MaxBatches      int    `yaml:"max_batches"`
	IncludeInactive bool   `yaml:"include_inactive"`
	RateLimit       int    `yaml:"rate_limit"` // generation calls per minute, 0 disables
}

type OpsConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	Generation   GenerationConfig   `yaml:"generation"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Ops          OpsConfig          `yaml:"ops"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	return loadFrom(configPath, dev)
}

func loadFrom(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Queue.URL == "" {
		return nil, errors.New("queue.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 8
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Queue.Exchange == "" {
		cfg.Queue.Exchange = "avisflow"
	}
	if cfg.Queue.WorkQueue == "" {
		cfg.Queue.WorkQueue = "avisflow.tasks"
	}
	if cfg.Queue.DelayQueue == "" {
		cfg.Queue.DelayQueue = "avisflow.tasks.delay"
	}
	if cfg.Queue.Prefetch <= 0 {
		cfg.Queue.Prefetch = 8
	}
	if cfg.Generation.ConnectTimeout <= 0 {
		cfg.Generation.ConnectTimeout = 5 * time.Second
	}
	if cfg.Generation.ReadTimeout <= 0 {
		cfg.Generation.ReadTimeout = 60 * time.Second
	}
	if cfg.Orchestrator.Workers <= 0 {
		cfg.Orchestrator.Workers = 8
	}
	if cfg.Scheduler.BatchType == "" {
		cfg.Scheduler.BatchType = "description_generation"
	}
	if cfg.Ops.Port <= 0 {
		cfg.Ops.Port = 8090
	}
}
