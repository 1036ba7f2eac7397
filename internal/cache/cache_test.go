package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestInMemoryCache_GetSet verifies that a value read back within its TTL is
// returned unchanged.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := []byte(`{"response_type":"in_channel"}`)
	if err := c.Set(ctx, "us:seattle", val, DefaultTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		got, ok, err := c.Get(ctx, "us:seattle")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !ok {
			t.Fatal("Get() ok = false, want true")
		}
		if string(got) != string(val) {
			t.Errorf("Get() = %s, want %s", got, val)
		}
	}
}

// TestInMemoryCache_Set_CopiesValue verifies that mutating the caller's slice
// after Set does not change the cached value.
func TestInMemoryCache_Set_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := []byte("abc")
	_ = c.Set(ctx, "k", val, time.Minute)
	val[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want %q", got, "abc")
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false once the TTL
// has elapsed and removes the entry.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "us:seattle", []byte("v"), DefaultTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(DefaultTTL - time.Second)
	if _, ok, _ := c.Get(ctx, "us:seattle"); !ok {
		t.Fatal("Get() ok = false before TTL, want true")
	}

	now = now.Add(time.Second)
	_, ok, err := c.Get(ctx, "us:seattle")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired Get", c.Len())
	}
}

// TestInMemoryCache_Concurrent verifies concurrent Get/Set is safe (run with -race).
func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = c.Set(ctx, key, []byte(key), time.Minute)
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}

// TestNopCache verifies the unconfigured cache always misses.
func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = NopCache{}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Errorf("Get() = ok %v, err %v; want miss", ok, err)
	}
}

func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "us:seattle", []byte(`{"response_type":"in_channel"}`), DefaultTTL)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "us:seattle")
	}
}

func BenchmarkInMemoryCache_Set(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	val := []byte(`{"response_type":"in_channel"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, "us:seattle", val, DefaultTTL)
	}
}
