package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis publishes events on a channel and keeps the latest state under a key.
type Redis struct {
	rdb         *redis.Client
	Channel     string
	StatePrefix string
}

// NewRedis connects using a redis:// URL.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opts), Channel: "livewatch:events", StatePrefix: "livewatch:state:"}, nil
}

func (r *Redis) Name() string { return "redis" }

// StateKey is the key holding the latest kind for platform/account.
func (r *Redis) StateKey(platform, account string) string {
	return r.StatePrefix + platform + ":" + account
}

func (r *Redis) Notify(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Publish(ctx, r.Channel, b)
	pipe.Set(ctx, r.StateKey(ev.Platform, ev.Account), ev.Kind, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// Close releases the client.
func (r *Redis) Close() error { return r.rdb.Close() }
