package credential

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token in Redis so several processes on one host
// (the CLI and the relay, for instance) share a login.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func NewRedisStore(opt RedisOptions) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	return NewRedisStoreWithClient(rdb, opt.Prefix, opt.TTL)
}

func NewRedisStoreWithClient(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "taskchat:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key() string { return s.prefix + TokenKey }

func (s *RedisStore) Token(ctx context.Context) (string, error) {
	tok, err := s.rdb.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return tok, nil
}

func (s *RedisStore) SetToken(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, s.key(), token, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key()).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
