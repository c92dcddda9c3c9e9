package settings

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
)

type redisStore struct {
	client *redis.Client
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisStore{client: client, log: log}, nil
}

func (s *redisStore) Get(ctx context.Context, name, clientKey string) ([]byte, error) {
	b, err := s.client.Get(ctx, Key(clientKey, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *redisStore) Set(ctx context.Context, name string, value []byte, clientKey string) error {
	return s.client.Set(ctx, Key(clientKey, name), value, 0).Err()
}

func (s *redisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }
