package testing

import (
	"context"
	"errors"
	"fmt"
	gotesting "testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when no Redis server answers
var ErrRedisUnavailable = errors.New("test redis unavailable")

// ConnectTestRedis connects to TEST_REDIS_URL (default redis://localhost:6379/15)
func ConnectTestRedis() (*redis.Client, error) {
	opt, err := redis.ParseURL(getEnv("TEST_REDIS_URL", "redis://localhost:6379/15"))
	if err != nil {
		return nil, fmt.Errorf("invalid TEST_REDIS_URL: %w", err)
	}
	opt.DialTimeout = time.Second

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return rc, nil
}

// RequireRedis returns a client and a key prefix unique to t, skipping t when
// Redis is unreachable. Keys under the prefix are removed on cleanup.
func RequireRedis(t *gotesting.T) (*redis.Client, string) {
	t.Helper()
	rc, err := ConnectTestRedis()
	if errors.Is(err, ErrRedisUnavailable) {
		t.Skipf("skipping: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}

	prefix := fmt.Sprintf("commission_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		iter := rc.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			rc.Del(ctx, iter.Val())
		}
		_ = rc.Close()
	})
	return rc, prefix
}
