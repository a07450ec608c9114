package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"geminichat/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := NewClient(context.Background(), config.RedisConfig{Host: host, Port: port, DB: db})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientSetGetDel(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "geminichat:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	if err := client.Set(ctx, key, []byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("unexpected value %q", got)
	}
	ttl, err := client.TTL(ctx, key)
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v (err %v)", ttl, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestNilClientReportsNotInitialized(t *testing.T) {
	var c *Client
	if err := c.Set(context.Background(), "k", nil, time.Second); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewClient(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1}); err == nil {
		t.Fatalf("expected dial error")
	}
}
