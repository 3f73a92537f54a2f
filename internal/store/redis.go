package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/internal/tlsutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores the document under <prefix><name> and counts revisions
// under <prefix><name>:revision.
type Redis struct {
	client *redis.Client
	key    string
	logger *zap.Logger
	owned  bool
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg config.RedisConfig, name string, logger *zap.Logger) (*Redis, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewRedisClient(client, cfg.KeyPrefix, name, logger)
	s.owned = true
	return s, nil
}

// NewRedisClient uses an existing client. Close leaves the client open.
func NewRedisClient(client *redis.Client, prefix, name string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "default"
	}
	return &Redis{
		client: client,
		key:    prefix + name,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

// Key returns the document key.
func (r *Redis) Key() string { return r.key }

func (r *Redis) Driver() string { return "redis" }

func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Save writes the document and bumps the revision counter atomically.
func (r *Redis) Save(ctx context.Context, data []byte) error {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, data, 0)
		incr = pipe.Incr(ctx, r.key+":revision")
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", r.key, err)
	}
	r.logger.Info("workflow document saved",
		zap.String("key", r.key),
		zap.Int64("revision", incr.Val()))
	return nil
}

// Revision returns the number of saves so far.
func (r *Redis) Revision(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.key+":revision").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
