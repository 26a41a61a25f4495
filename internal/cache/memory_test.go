package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryProviderTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryProvider()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("a"), time.Second)
	_ = c.Set(ctx, "forever", []byte("b"), 0)

	if v, err := c.Get(ctx, "short"); err != nil || string(v) != "a" {
		t.Fatalf("expected hit, got %q err=%v", v, err)
	}
	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Fatalf("expected persistent entry, got %v", err)
	}
}

func TestMemoryProviderCleanupExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryProvider()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Second)
	}
	_ = c.Set(ctx, "keep", []byte("v"), time.Hour)

	now = now.Add(time.Minute)
	if removed := c.CleanupExpired(); removed != 3 {
		t.Fatalf("expected three removals, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry left, got %d", c.Len())
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	c := NewMemoryProvider()
	ctx := context.Background()
	value := []byte("abc")
	_ = c.Set(ctx, "k", value, 0)
	value[0] = 'z'
	got, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
}

func TestMemoryProviderConcurrentAccess(t *testing.T) {
	c := NewMemoryProvider()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 200; j++ {
				_ = c.Set(ctx, key, []byte("v"), time.Minute)
				_, _ = c.Get(ctx, key)
				if j%50 == 0 {
					_ = c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}

type failingProvider struct{ NoopProvider }

func (failingProvider) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("shared cache down")
}

func TestLayeredProviderBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	local, shared := NewMemoryProvider(), NewMemoryProvider()
	layered := NewLayeredProvider(local, shared, time.Minute)

	_ = shared.Set(ctx, "k", []byte("v"), time.Hour)
	if v, err := layered.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("expected shared hit, got %q err=%v", v, err)
	}
	if _, err := local.Get(ctx, "k"); err != nil {
		t.Fatalf("expected local backfill, got %v", err)
	}

	if err := layered.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if local.Len() != 0 || shared.Len() != 0 {
		t.Fatalf("expected both layers cleared")
	}
}

func TestLayeredProviderReportsSharedFailure(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryProvider()
	layered := NewLayeredProvider(local, failingProvider{}, 0)
	if err := layered.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Fatalf("expected shared failure to surface")
	}
	if _, err := layered.Get(ctx, "k"); err != nil {
		t.Fatalf("local layer should still serve the value: %v", err)
	}
}
