package push

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/breathe-app/breathe/internal/domain"
)

func newTestPublisher(t *testing.T, maxLen int64) (*RedisPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := NewRedisPublisher("redis://"+mr.Addr(), "test:push", maxLen)
	if err != nil {
		t.Fatalf("NewRedisPublisher() error: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return p, rdb
}

func TestPush_AppendsToStream(t *testing.T) {
	p, rdb := newTestPublisher(t, 0)
	ctx := context.Background()

	req := domain.PushRequest{
		ID: "p1", UserID: "u1", NotificationID: "n1",
		Title: "Achievement unlocked: Week Warrior", Body: "A full week smoke-free.",
		RequestedAt: time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC),
	}
	if err := p.Push(ctx, req); err != nil {
		t.Fatalf("Push() error: %v", err)
	}

	msgs, err := rdb.XRange(ctx, "test:push", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	v := msgs[0].Values
	if v["user_id"] != "u1" || v["schema_version"] != SchemaVersion {
		t.Errorf("entry values = %v", v)
	}

	var got domain.PushRequest
	if err := json.Unmarshal([]byte(v["payload"].(string)), &got); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if got.NotificationID != "n1" || got.Title != req.Title || !got.RequestedAt.Equal(req.RequestedAt) {
		t.Errorf("payload = %+v", got)
	}
}

func TestPush_Ping(t *testing.T) {
	p, _ := newTestPublisher(t, 0)
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestPush_ServerDown(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	p, _ := NewRedisPublisher("redis://"+mr.Addr(), "", 0)
	defer p.Close()
	mr.Close()

	if err := p.Push(context.Background(), domain.PushRequest{UserID: "u1"}); err == nil {
		t.Error("expected error when redis is down")
	}
}

func TestNewRedisPublisher_Defaults(t *testing.T) {
	p, err := NewRedisPublisher("redis://localhost:6379/0", "", 0)
	if err != nil {
		t.Fatalf("NewRedisPublisher() error: %v", err)
	}
	defer p.Close()
	if p.Stream() != DefaultStream || p.maxLen != 10000 {
		t.Errorf("defaults = %s/%d", p.Stream(), p.maxLen)
	}

	if _, err := NewRedisPublisher("://bad", "", 0); err == nil {
		t.Error("expected error for bad URL")
	}
}
