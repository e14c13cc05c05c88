package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStats stores each bucket as a redis hash.
type RedisStats struct {
	client *redis.Client
}

var _ Stats = (*RedisStats)(nil)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStats connects and pings the server.
func NewRedisStats(ctx context.Context, opts RedisOptions) (*RedisStats, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "could not connect to redis at %s", opts.Addr)
	}

	return &RedisStats{client: client}, nil
}

func (r *RedisStats) Increment(ctx context.Context, key string, fields map[string]float64) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for field, v := range fields {
			p.HIncrByFloat(ctx, key, field, v)
		}
		return nil
	})
	return err
}

func (r *RedisStats) Get(ctx context.Context, key string) (map[string]float64, error) {
	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ret := make(map[string]float64, len(values))
	for field, s := range values {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s of %s is not a number", field, key)
		}
		ret[field] = f
	}
	return ret, nil
}

func (r *RedisStats) Close() error {
	return r.client.Close()
}
