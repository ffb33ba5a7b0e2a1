package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Site       SiteConfig       `yaml:"site"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds the bearer-token settings used to identify workers.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SiteConfig describes the site the service keeps attendance for.
type SiteConfig struct {
	// Timezone defines the site-local calendar day that attendance
	// sessions are keyed by.
	Timezone string `yaml:"timezone"`
}

// ScannerConfig holds the kiosk scan pipeline configuration.
type ScannerConfig struct {
	SpoolDir           string        `yaml:"spool_dir"`
	SampleIntervalMS   int           `yaml:"sample_interval_ms"`
	SampleInterval     time.Duration `yaml:"-"` // Ignored by YAML parser
	DecoderCommand     string        `yaml:"decoder_command"`
	DecoderArgs        []string      `yaml:"decoder_args"`
	DecoderTimeoutSecs int           `yaml:"decoder_timeout_seconds"`
	ServerURL          string        `yaml:"server_url"`
	ProjectID          string        `yaml:"project_id"`
	// AreaID is the work area this kiosk stands in; scanned badges are
	// checked in against it.
	AreaID string `yaml:"area_id"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Site.Timezone == "" {
		cfg.Site.Timezone = "UTC"
	}

	if cfg.Scanner.SampleIntervalMS <= 0 {
		cfg.Scanner.SampleIntervalMS = 150
	}
	cfg.Scanner.SampleInterval = time.Duration(cfg.Scanner.SampleIntervalMS) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
