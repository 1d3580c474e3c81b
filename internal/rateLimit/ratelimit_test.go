package rateLimit

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/hotel-booking-payments/internal/adapters/redis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRateLimiter_Allow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	defer client.Close()

	rl := NewRateLimiter(redisadapter.NewCache(client))
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:10.0.0.1", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("hit %d: expected allowed, got %v %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "ip:10.0.0.1", 3, time.Minute); ok {
		t.Error("expected fourth hit to be limited")
	}
	if ok, _ := rl.Allow(ctx, "ip:10.0.0.2", 3, time.Minute); !ok {
		t.Error("expected other key to be allowed")
	}
}
