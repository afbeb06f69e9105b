package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetThrottle admits at most one password reset request per username per
// window. Key format: reset-throttle:<username>
type ResetThrottle struct {
	client *redis.Client
	window time.Duration
}

// NewResetThrottle creates a ResetThrottle wrapping the given Redis client.
func NewResetThrottle(client *redis.Client, window time.Duration) *ResetThrottle {
	return &ResetThrottle{client: client, window: window}
}

// Allow claims the window for username. It reports false while an earlier
// claim is still live.
func (t *ResetThrottle) Allow(ctx context.Context, username string) (bool, error) {
	ok, err := t.client.SetNX(ctx, throttleKey(username), "1", t.window).Result()
	if err != nil {
		return false, fmt.Errorf("reset throttle: %w", err)
	}
	return ok, nil
}

func throttleKey(username string) string {
	return "reset-throttle:" + username
}
