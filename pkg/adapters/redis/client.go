package redis

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL, opens a client and checks it with PING.
func Connect(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
