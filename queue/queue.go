package queue

import (
	"context"
	"fmt"
	"net"
	"time"

	"asinpusher/config"
	"asinpusher/types"
)

// PushResult summarizes one push.
type PushResult struct {
	Pushed     int
	Added      int
	Duplicates int
	// Total is the queue size after the push, or -1 when the backend cannot report it.
	Total int64
}

// Pusher delivers normalized SITE@ID tokens to the crawler queue.
type Pusher interface {
	Push(ctx context.Context, records []types.Record) (PushResult, error)
	Ping(ctx context.Context) error
	Close() error
	Name() string
}

// Dialer opens queue connections, e.g. through an SSH tunnel.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

const connectTimeout = 5 * time.Second

// FromConfig builds the pusher selected by cfg.Queue.Backend. dial is only used by the
// Redis backend when redis.use_tunnel is set.
func FromConfig(cfg *config.Config, dial Dialer) (Pusher, error) {
	switch cfg.Queue.Backend {
	case "redis":
		rc := RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		}
		if cfg.Redis.UseTunnel {
			rc.Dialer = dial
		}
		return NewRedisPusher(rc)
	case "kafka":
		return NewKafkaPusher(KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
	default:
		return nil, &config.ConfigError{Field: "queue.backend", Err: fmt.Errorf("unsupported value %q", cfg.Queue.Backend)}
	}
}
