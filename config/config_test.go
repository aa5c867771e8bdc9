package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalConfig = `
[database]
driver = "sqlite"
database = "crawl.db"

[oss]
bucket = "asin-images"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asinpusher.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("Load reported exists=%v path=%q; want true %q", exists, resolved, path)
	}

	if cfg.DBTimeout() != 300*time.Second || cfg.OSSTimeout() != 300*time.Second {
		t.Fatalf("timeouts = %v/%v; want 300s/300s", cfg.DBTimeout(), cfg.OSSTimeout())
	}
	if cfg.CheckInterval() != 30*time.Second {
		t.Fatalf("check interval = %v; want 30s", cfg.CheckInterval())
	}
	if cfg.Verification.MaxRetries != 3 {
		t.Fatalf("max retries = %d; want 3", cfg.Verification.MaxRetries)
	}
	if cfg.Redis.Key != DefaultRedisKey {
		t.Fatalf("redis key = %q; want %q", cfg.Redis.Key, DefaultRedisKey)
	}
	if cfg.Export.Dir != ResultDir {
		t.Fatalf("export dir = %q; want %q", cfg.Export.Dir, ResultDir)
	}
}

func TestLoadNormalizesValues(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[queue]
backend = " Redis "

[verification]
check_interval = 5
`)
	t.Setenv(EnvRedisPassword, "s3cret")

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Queue.Backend != "redis" {
		t.Fatalf("queue backend = %q; want redis", cfg.Queue.Backend)
	}
	if cfg.CheckInterval() != 5*time.Second {
		t.Fatalf("check interval = %v; want 5s", cfg.CheckInterval())
	}
	if cfg.Redis.Password != "s3cret" {
		t.Fatalf("redis password not taken from environment")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown queue", minimalConfig + "\n[queue]\nbackend = \"sqs\"\n", "queue.backend"},
		{"zero interval", minimalConfig + "\n[verification]\ncheck_interval = 0\n", "verification.check_interval"},
		{"missing bucket", "[database]\ndriver = \"sqlite\"\ndatabase = \"x.db\"\n", "oss.bucket"},
		{"bad image mode", "[database]\ndriver = \"sqlite\"\ndatabase = \"x.db\"\n[oss]\nbucket = \"b\"\nimage_verification_mode = \"every\"\n", "oss.image_verification_mode"},
		{"status without done value", "[database]\ndriver = \"sqlite\"\ndatabase = \"x.db\"\nverification_method = \"status\"\n[oss]\nbucket = \"b\"\n", "database.status_field"},
		{"table name with dash", "[database]\ndriver = \"sqlite\"\ndatabase = \"x.db\"\nstatus_table = \"crawl-results\"\n[oss]\nbucket = \"b\"\n", "database.status_table"},
		{"column name with space", "[database]\ndriver = \"sqlite\"\ndatabase = \"x.db\"\nasin_field = \"asin code\"\n[oss]\nbucket = \"b\"\n", "database.asin_field"},
		{"unknown driver", "[database]\ndriver = \"oracle\"\n[oss]\nbucket = \"b\"\n", "database.driver"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, _, err := Load(writeConfig(t, c.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if ce.Field != c.field {
				t.Fatalf("ConfigError.Field = %q; want %q", ce.Field, c.field)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("errors.Is(err, ErrInvalid) = false")
			}
		})
	}
}

func TestValidateImageModes(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = "crawl.db"
	cfg.OSS.Bucket = "b"

	cfg.OSS.ImageMode = "all_images"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("all_images rejected: %v", err)
	}

	cfg.OSS.ImageMode = "every_image"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown image mode")
	}

	cfg.OSS.ImageMode = "all_images"
	cfg.OSS.SubImagePattern = "images/{asin}/sub.jpg"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for sub pattern without {index}")
	}
}

func TestValidateTunnelNeedsSSH(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "10.0.0.5"
	cfg.Database.UseTunnel = true
	cfg.OSS.Bucket = "b"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when tunnel is requested without ssh settings")
	}

	cfg.SSH.Host = "bastion"
	cfg.SSH.Username = "deploy"
	cfg.SSH.PrivateKey = "/tmp/key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidIdentifier(t *testing.T) {
	for _, name := range []string{"asin_details", "crawl.asin_details", "_tmp2"} {
		if !ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = false; want true", name)
		}
	}
	for _, name := range []string{"", "crawl-results", "2fast", "a;drop", "a.b.c"} {
		if ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = true; want false", name)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "asinpusher.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample error: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatalf("sample config reported missing")
	}
	if cfg.OSS.Bucket != "asin-images" {
		t.Fatalf("bucket = %q; want asin-images", cfg.OSS.Bucket)
	}
}
