package cache

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection. The client
// is shared by the report cache and the settlement guard.
func NewRedisClient(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
