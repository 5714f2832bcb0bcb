package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "persona"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := m.Set(ctx, "persona", []byte("You are Aegis."), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Get(ctx, "persona")
	if err != nil || !ok || string(v) != "You are Aegis." {
		t.Errorf("expected hit, got %q %v %v", v, ok, err)
	}
}

func TestMemory_Expiry(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(clock.Now)
	ctx := context.Background()

	m.Set(ctx, "catalog", []byte("[]"), 5*time.Minute)
	clock.Advance(4*time.Minute + 59*time.Second)
	if _, ok, _ := m.Get(ctx, "catalog"); !ok {
		t.Fatal("expected hit before ttl")
	}

	clock.Advance(time.Second)
	if _, ok, _ := m.Get(ctx, "catalog"); ok {
		t.Fatal("expected miss at ttl")
	}
	if m.Len() != 0 {
		t.Error("expected expired entry to be evicted on read")
	}
}

func TestMemory_NoTTL(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	m := NewMemory(clock.Now)
	m.Set(context.Background(), "k", []byte("v"), 0)
	clock.Advance(24 * time.Hour)
	if _, ok, _ := m.Get(context.Background(), "k"); !ok {
		t.Error("zero ttl must not expire")
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	m.Set(ctx, "flags", []byte("{}"), time.Minute)
	m.Delete(ctx, "flags")
	if _, ok, _ := m.Get(ctx, "flags"); ok {
		t.Error("expected miss after delete")
	}
	if err := m.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting a missing key must not fail: %v", err)
	}
}

func TestMemory_SetCopiesValue(t *testing.T) {
	m := NewMemory(nil)
	buf := []byte("original")
	m.Set(context.Background(), "k", buf, time.Minute)
	copy(buf, "mutated!")

	v, _, _ := m.Get(context.Background(), "k")
	if string(v) != "original" {
		t.Errorf("cache aliased caller buffer: %q", v)
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			m.Set(ctx, key, []byte("v"), time.Minute)
			m.Get(ctx, key)
			if i%7 == 0 {
				m.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	c := NewRedis(rdb)

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Error("expected error from unreachable redis")
	}
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err == nil {
		t.Error("expected error from unreachable redis")
	}
}
