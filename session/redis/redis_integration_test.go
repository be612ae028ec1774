//go:build integration

package redis_session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/pagechat/session/storetest"
)

func TestStoreAgainstRedisContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	db := 0
	storetest.Run(t, func(t *testing.T, ttl time.Duration) storetest.Harness {
		client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port()), DB: db})
		db++
		t.Cleanup(func() { _ = client.Close() })
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		clock := storetest.NewFakeClock()
		store, err := NewRedisSessionStore(client, Options{TTL: ttl, Clock: clock.Now})
		if err != nil {
			t.Fatalf("NewRedisSessionStore: %v", err)
		}
		return storetest.Harness{Store: store, Now: clock.Now, Advance: clock.Advance}
	})
}
