package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is matched by every ConfigError.
var ErrInvalid = errors.New("invalid configuration")

// ConfigError is a fatal configuration problem. It aborts a run before any network I/O.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalid) true for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalid }

var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name can be interpolated into a query as a table or
// column name. Optional schema qualification is allowed.
func ValidIdentifier(name string) bool {
	return sqlIdentifier.MatchString(name)
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func (c *Config) normalize() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pgx" {
		c.Database.Driver = "postgres"
	}
	c.Database.VerificationMethod = strings.ToLower(strings.TrimSpace(c.Database.VerificationMethod))
	c.OSS.ImageMode = strings.ToLower(strings.TrimSpace(c.OSS.ImageMode))
	c.OSS.Endpoint = strings.TrimSpace(c.OSS.Endpoint)
	if c.OSS.Endpoint != "" && !strings.HasPrefix(c.OSS.Endpoint, "http") {
		c.OSS.Endpoint = "https://" + c.OSS.Endpoint
	}
	c.Export.Dir = strings.TrimSpace(c.Export.Dir)
	if c.Export.Dir == "" {
		c.Export.Dir = ResultDir
	}
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateOSS(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	if c.TunnelRequired() {
		if err := c.validateSSH(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return invalid("redis.addr", "must be set")
		}
		if strings.TrimSpace(c.Redis.Key) == "" {
			return invalid("redis.key", "must be set")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers", "at least one broker is required")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return invalid("kafka.topic", "must be set")
		}
	default:
		return invalid("queue.backend", "unsupported value %q (want redis or kafka)", c.Queue.Backend)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	d := c.Database
	switch d.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return invalid("database.driver", "unsupported value %q (want mysql, postgres or sqlite)", d.Driver)
	}
	if d.DSN == "" && d.Driver != "sqlite" && d.Host == "" {
		return invalid("database.host", "must be set when database.dsn is empty")
	}
	if d.DSN == "" && d.Driver == "sqlite" && d.Name == "" {
		return invalid("database.database", "sqlite requires a file path or dsn")
	}
	for _, f := range []struct{ field, value string }{
		{"database.status_table", d.StatusTable},
		{"database.asin_field", d.ASINField},
		{"database.site_field", d.SiteField},
	} {
		if strings.TrimSpace(f.value) == "" {
			return invalid(f.field, "must be set")
		}
		if !ValidIdentifier(f.value) {
			return invalid(f.field, "%q is not a valid SQL identifier", f.value)
		}
	}
	if d.UpdateTimeField != "" && !ValidIdentifier(d.UpdateTimeField) {
		return invalid("database.update_time_field", "%q is not a valid SQL identifier", d.UpdateTimeField)
	}
	if d.StatusField != "" && !ValidIdentifier(d.StatusField) {
		return invalid("database.status_field", "%q is not a valid SQL identifier", d.StatusField)
	}
	switch d.VerificationMethod {
	case "existence":
	case "freshness":
		if d.UpdateTimeField == "" {
			return invalid("database.update_time_field", "required for freshness verification")
		}
		if d.FreshnessWindow <= 0 {
			return invalid("database.freshness_window", "must be positive")
		}
	case "status":
		if d.StatusField == "" || d.DoneValue == "" {
			return invalid("database.status_field", "status verification requires status_field and done_value")
		}
	default:
		return invalid("database.verification_method", "unsupported value %q", d.VerificationMethod)
	}
	return nil
}

func (c *Config) validateOSS() error {
	o := c.OSS
	if o.Bucket == "" {
		return invalid("oss.bucket", "must be set")
	}
	if o.MainImagePattern == "" {
		return invalid("oss.main_image_pattern", "must be set")
	}
	switch o.ImageMode {
	case "main_only":
	case "all_images", "any_image":
		if o.SubImageCount < 0 {
			return invalid("oss.sub_image_count", "must not be negative")
		}
		if o.SubImageCount > 0 && !strings.Contains(o.SubImagePattern, "{index}") {
			return invalid("oss.sub_image_pattern", "must contain {index}")
		}
	default:
		return invalid("oss.image_verification_mode", "unsupported value %q", o.ImageMode)
	}
	return nil
}

func (c *Config) validateVerification() error {
	v := c.Verification
	if v.DBTimeout <= 0 {
		return invalid("verification.db_timeout", "must be positive")
	}
	if v.OSSTimeout <= 0 {
		return invalid("verification.oss_timeout", "must be positive")
	}
	if v.CheckInterval <= 0 {
		return invalid("verification.check_interval", "must be positive")
	}
	if v.MaxRetries < 0 {
		return invalid("verification.max_retries", "must not be negative")
	}
	if v.Workers <= 0 {
		return invalid("verification.workers", "must be positive")
	}
	if v.ProbeTimeout <= 0 {
		return invalid("verification.probe_timeout", "must be positive")
	}
	return nil
}

func (c *Config) validateSSH() error {
	if c.SSH.Host == "" {
		return invalid("ssh.host", "required when a backend uses the tunnel")
	}
	if c.SSH.Username == "" {
		return invalid("ssh.username", "required when a backend uses the tunnel")
	}
	if c.SSH.PrivateKey == "" {
		return invalid("ssh.private_key", "required when a backend uses the tunnel")
	}
	return nil
}
