package config

import (
	"strconv"
	"strings"
)

// Environment variables that override file values. Secrets are expected to come
// from here (or a .env file loaded by the CLI) rather than the TOML file.
const (
	EnvRedisAddr       = "ASINPUSHER_REDIS_ADDR"
	EnvRedisPassword   = "ASINPUSHER_REDIS_PASSWORD"
	EnvRedisDB         = "ASINPUSHER_REDIS_DB"
	EnvKafkaBrokers    = "ASINPUSHER_KAFKA_BROKERS"
	EnvDBDSN           = "ASINPUSHER_DB_DSN"
	EnvDBPassword      = "ASINPUSHER_DB_PASSWORD"
	EnvOSSAccessKey    = "ASINPUSHER_OSS_ACCESS_KEY_ID"
	EnvOSSAccessSecret = "ASINPUSHER_OSS_ACCESS_KEY_SECRET"
	EnvSSHPrivateKey   = "ASINPUSHER_SSH_PRIVATE_KEY"
	EnvLogLevel        = "ASINPUSHER_LOG_LEVEL"
)

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.Redis.Addr, EnvRedisAddr)
	set(&cfg.Redis.Password, EnvRedisPassword)
	if v := strings.TrimSpace(getenv(EnvRedisDB)); v != "" {
		if db, err := strconv.Atoi(v); err == nil && db >= 0 {
			cfg.Redis.DB = db
		}
	}
	if v := strings.TrimSpace(getenv(EnvKafkaBrokers)); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	set(&cfg.Database.DSN, EnvDBDSN)
	set(&cfg.Database.Password, EnvDBPassword)
	set(&cfg.OSS.AccessKeyID, EnvOSSAccessKey)
	set(&cfg.OSS.AccessKeySecret, EnvOSSAccessSecret)
	set(&cfg.SSH.PrivateKey, EnvSSHPrivateKey)
	set(&cfg.Logging.Level, EnvLogLevel)
}
