package queue

import (
	"context"
	"fmt"

	"asinpusher/types"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis set queue.
type RedisConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	Key      string // set the crawler pops tokens from
	Dialer   Dialer // optional, replaces direct TCP dialing
	// BatchSize bounds members per SADD; defaults to 500.
	BatchSize int
}

// RedisPusher adds tokens to a Redis set. Set semantics make re-pushing a token a no-op.
type RedisPusher struct {
	client    *redis.Client
	key       string
	batchSize int
}

// NewRedisPusher creates a RedisPusher and verifies connectivity
func NewRedisPusher(cfg RedisConfig) (*RedisPusher, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Dialer != nil {
		opts.Dialer = cfg.Dialer
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &RedisPusher{client: client, key: cfg.Key, batchSize: batch}, nil
}

func (p *RedisPusher) Name() string { return "redis" }

// Key returns the queue set key.
func (p *RedisPusher) Key() string { return p.key }

// Push adds every record token with SADD. Duplicates are tokens already in the set.
func (p *RedisPusher) Push(ctx context.Context, records []types.Record) (PushResult, error) {
	res := PushResult{Pushed: len(records)}
	tokens := types.Tokens(records)

	for start := 0; start < len(tokens); start += p.batchSize {
		end := min(start+p.batchSize, len(tokens))
		members := make([]any, 0, end-start)
		for _, tok := range tokens[start:end] {
			members = append(members, tok)
		}
		added, err := p.client.SAdd(ctx, p.key, members...).Result()
		if err != nil {
			return res, fmt.Errorf("sadd %s: %w", p.key, err)
		}
		res.Added += int(added)
	}
	res.Duplicates = res.Pushed - res.Added

	total, err := p.Size(ctx)
	if err != nil {
		return res, err
	}
	res.Total = total
	return res, nil
}

// Size returns the number of tokens waiting in the set.
func (p *RedisPusher) Size(ctx context.Context) (int64, error) {
	n, err := p.client.SCard(ctx, p.key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", p.key, err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (p *RedisPusher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (p *RedisPusher) Close() error {
	return p.client.Close()
}
