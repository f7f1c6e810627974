package memo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neurotrace/connectome/internal/domain"
)

const redisKeyPrefix = "cascade:" // cascade:{run}:processed

// Redis keeps processed neurons in a Redis set so that several crawlers can share it.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis returns a memo for run. A zero ttl keeps the set forever. The set outlives
// result files: leaves stay marked, and deleting a result does not unmark its neuron.
// Wrap the factory with Seeded to also honour results written elsewhere.
func NewRedis(client *redis.Client, run string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: redisKeyPrefix + run + ":processed", ttl: ttl}
}

// RedisFactory returns a Factory producing Redis memos.
func RedisFactory(client *redis.Client, ttl time.Duration) Factory {
	return func(_ context.Context, run string) (Memo, error) {
		return NewRedis(client, run, ttl), nil
	}
}

func (r *Redis) Seen(ctx context.Context, id domain.NeuronID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check processed %d: %w", id, err)
	}
	return ok, nil
}

func (r *Redis) Mark(ctx context.Context, id domain.NeuronID) error {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, r.key, id.String())
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark processed %d: %w", id, err)
	}
	return nil
}

// Key returns the Redis set key.
func (r *Redis) Key() string {
	return r.key
}
