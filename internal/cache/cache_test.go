package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("zh-TW", "Hello.")
	if a != Key("zh-TW", "Hello.") {
		t.Fatal("key is not stable")
	}
	if a == Key("ja", "Hello.") || a == Key("zh-TW", "Hello!") {
		t.Fatal("key must depend on target and text")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 20*time.Millisecond)
	defer m.Close()

	if err := m.Set(ctx, "k", "你好"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || got != "你好" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestMemoryNoTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)
	_ = m.Set(ctx, "k", "v")
	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit")
	}
	if v, ok, _ := m.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)
	_ = m.Set(ctx, "a", "1")
	_ = m.Set(ctx, "b", "2")
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Fatal("expected hit on a")
	}
	_ = m.Set(ctx, "c", "3")

	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("b was least recently used and should be evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok, _ := m.Get(ctx, key); !ok {
			t.Errorf("expected %s to survive", key)
		}
	}
}

// Integration test: only runs if BILINGO_TEST_REDIS_ADDR is set
func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("BILINGO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BILINGO_TEST_REDIS_ADDR not set; skipping integration test")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	key := Key("zh-TW", "integration "+time.Now().String())
	if _, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := r.Set(ctx, key, "測試"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := r.Get(ctx, key); err != nil || !ok || v != "測試" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
}
