package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultPath is the project-local configuration file name.
const DefaultPath = "asinpusher.toml"

// Queue selects where normalized tokens are pushed.
type Queue struct {
	Backend string `toml:"backend"` // "redis" or "kafka"
}

// Redis contains the crawler queue connection.
type Redis struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	Key       string `toml:"key"`
	UseTunnel bool   `toml:"use_tunnel"`
}

// Kafka contains the alternative queue connection.
type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Database contains the crawler result database and how completion is detected.
type Database struct {
	Driver             string `toml:"driver"` // mysql, postgres or sqlite
	DSN                string `toml:"dsn"`    // optional; built from the fields below when empty
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	User               string `toml:"user"`
	Password           string `toml:"password"`
	Name               string `toml:"database"`
	StatusTable        string `toml:"status_table"`
	ASINField          string `toml:"asin_field"`
	SiteField          string `toml:"site_field"`
	UpdateTimeField    string `toml:"update_time_field"`
	StatusField        string `toml:"status_field"`
	DoneValue          string `toml:"done_value"`
	VerificationMethod string `toml:"verification_method"` // existence, freshness or status
	FreshnessWindow    int    `toml:"freshness_window"`    // seconds
	MaxOpenConns       int    `toml:"max_open_conns"`
	UseTunnel          bool   `toml:"use_tunnel"`
}

// SSH contains the bastion used to reach private database and Redis endpoints.
type SSH struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	PrivateKey     string `toml:"private_key"`
	KnownHostsFile string `toml:"known_hosts_file"`
}

// OSS contains the object storage bucket holding crawled images.
type OSS struct {
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	AccessKeyID      string `toml:"access_key_id"`
	AccessKeySecret  string `toml:"access_key_secret"`
	Bucket           string `toml:"bucket"`
	UsePathStyle     bool   `toml:"use_path_style"`
	MainImagePattern string `toml:"main_image_pattern"`
	SubImagePattern  string `toml:"sub_image_pattern"`
	SubImageCount    int    `toml:"sub_image_count"`
	ImageMode        string `toml:"image_verification_mode"` // main_only, all_images or any_image
}

// Verification contains poll loop timing. All durations are seconds.
type Verification struct {
	DBTimeout     int `toml:"db_timeout"`
	OSSTimeout    int `toml:"oss_timeout"`
	CheckInterval int `toml:"check_interval"`
	MaxRetries    int `toml:"max_retries"`
	Workers       int `toml:"workers"`
	ProbeTimeout  int `toml:"probe_timeout"`
}

// Export contains artifact output settings.
type Export struct {
	Dir string `toml:"dir"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - Queue/Redis/Kafka: where identifiers are pushed
//   - Database/SSH: crawler result rows and the optional bastion in front of them
//   - OSS: crawled image objects
//   - Verification: poll loop timing and retries
//   - Export/Logging: local output
type Config struct {
	Queue        Queue        `toml:"queue"`
	Redis        Redis        `toml:"redis"`
	Kafka        Kafka        `toml:"kafka"`
	Database     Database     `toml:"database"`
	SSH          SSH          `toml:"ssh"`
	OSS          OSS          `toml:"oss"`
	Verification Verification `toml:"verification"`
	Export       Export       `toml:"export"`
	Logging      Logging      `toml:"logging"`
}

// Load parses the configuration file at path (or DefaultPath when empty), applies
// environment overrides and validates the result. A missing file is not an error;
// defaults and environment values are used instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve config path: %w", err)
	}

	exists := true
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, &ConfigError{Field: "file", Err: fmt.Errorf("parse %s: %w", resolved, err)}
		}
	}

	applyEnv(&cfg, os.Getenv)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// DBTimeout returns the database backend polling ceiling.
func (c *Config) DBTimeout() time.Duration {
	return seconds(c.Verification.DBTimeout)
}

// OSSTimeout returns the object storage backend polling ceiling.
func (c *Config) OSSTimeout() time.Duration {
	return seconds(c.Verification.OSSTimeout)
}

// CheckInterval returns the spacing between poll ticks.
func (c *Config) CheckInterval() time.Duration {
	return seconds(c.Verification.CheckInterval)
}

// ProbeTimeout returns the per-call deadline for backend probes.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Verification.ProbeTimeout)
}

// FreshnessWindow returns how recent an update time must be to count as done.
func (c *Config) FreshnessWindow() time.Duration {
	return seconds(c.Database.FreshnessWindow)
}

// TunnelRequired reports whether any backend is configured behind the SSH bastion.
func (c *Config) TunnelRequired() bool {
	return c.Database.UseTunnel || c.Redis.UseTunnel
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}
