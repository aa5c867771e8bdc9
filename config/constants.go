package config

import "time"

// Verification timing defaults
const (
	// DefaultDBTimeout is how long the database backend is polled before giving up
	DefaultDBTimeout = 300 * time.Second

	// DefaultOSSTimeout is how long the object storage backend is polled before giving up
	DefaultOSSTimeout = 300 * time.Second

	// DefaultCheckInterval spaces consecutive poll ticks
	DefaultCheckInterval = 30 * time.Second

	// DefaultMaxRetries bounds consecutive probe errors per record and backend
	DefaultMaxRetries = 3

	// DefaultWorkers bounds concurrent probes within a tick
	DefaultWorkers = 8

	// DefaultProbeTimeout caps a single backend call
	DefaultProbeTimeout = 15 * time.Second
)

// Queue constants
const (
	// DefaultQueueBackend selects the Redis set queue
	DefaultQueueBackend = "redis"

	// DefaultRedisAddr is the crawler queue address
	DefaultRedisAddr = "localhost:6379"

	// DefaultRedisKey is the set the crawler pops SITE@ASIN tokens from
	DefaultRedisKey = "amazon:asin_details_ai:crawl_task"

	// DefaultKafkaTopic is used when the Kafka queue backend is selected
	DefaultKafkaTopic = "asin-crawl-tasks"
)

// Database constants
const (
	DefaultDBDriver        = "mysql"
	DefaultStatusTable     = "asin_details"
	DefaultASINField       = "asin"
	DefaultSiteField       = "site"
	DefaultUpdateTimeField = "update_time"
	DefaultVerification    = "existence"
	DefaultFreshnessWindow = 24 * time.Hour
	DefaultDBMaxOpenConns  = 8
)

// Object storage constants
const (
	DefaultMainImagePattern = "images/{site}/{asin}/main.jpg"
	DefaultSubImagePattern  = "images/{site}/{asin}/sub_{index}.jpg"
	DefaultSubImageCount    = 5
	DefaultImageMode        = "main_only"
)

// Directory constants
const (
	// ResultDir is where export artifacts are written
	ResultDir = "result"

	// LockFile serializes runs that poll or export
	LockFile = ".asinpusher.lock"
)
