package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/farmlean/agkaizen/config"
)

func TestNewRedisClientRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), config.RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty redis address")
	}
}

func TestNewRedisClientConnects(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: server.Addr(), DB: 1})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Set(context.Background(), "consult:test", "ok", 0).Err(); err != nil {
		t.Fatalf("set on selected db failed: %v", err)
	}
}
