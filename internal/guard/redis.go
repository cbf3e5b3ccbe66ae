package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "tickethub:delivery:"
	valueSending = "sending"
	valueSent    = "sent"
)

// releaseScript deletes the key only while it still holds a sending claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// ClaimTTL bounds how long a crashed sender can hold a claim.
	ClaimTTL time.Duration
}

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return NewRedisFromClient(rdb, cfg.ClaimTTL)
}

func NewRedisFromClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Begin(ctx context.Context, key string) error {
	ok, err := r.rdb.SetNX(ctx, keyPrefix+key, valueSending, r.ttl).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	v, err := r.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// claim expired between the two calls; let the next pass retry
		return ErrInProgress
	}
	if err != nil {
		return err
	}
	if v == valueSent {
		return ErrAlreadySent
	}
	return ErrInProgress
}

func (r *Redis) MarkSent(ctx context.Context, key string) error {
	return r.rdb.Set(ctx, keyPrefix+key, valueSent, 0).Err()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, r.rdb, []string{keyPrefix + key}, valueSending).Err()
}

// Ping checks redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
