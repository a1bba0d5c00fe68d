package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "tiendapos:role-permissions:"

type RedisPermissionCache struct {
	client *redis.Client
}

func NewRedisPermissionCache(addr string, password string, db int) *RedisPermissionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPermissionCache{client: client}
}

func (c *RedisPermissionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPermissionCache) Close() error {
	return c.client.Close()
}

func (c *RedisPermissionCache) Get(ctx context.Context, roleID int64) ([]string, bool, error) {
	val, err := c.client.Get(ctx, roleKey(roleID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var codes []string
	if err := json.Unmarshal([]byte(val), &codes); err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

func (c *RedisPermissionCache) Set(ctx context.Context, roleID int64, codes []string, ttl time.Duration) error {
	if codes == nil {
		codes = []string{}
	}
	payload, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, roleKey(roleID), payload, ttl).Err()
}

func (c *RedisPermissionCache) Invalidate(ctx context.Context, roleID int64) error {
	return c.client.Del(ctx, roleKey(roleID)).Err()
}

func roleKey(roleID int64) string {
	return keyPrefix + strconv.FormatInt(roleID, 10)
}
