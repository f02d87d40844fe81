package dpop

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestJTICache_DetectsReplay(t *testing.T) {
	t.Log("Testing a recorded jti is reported as replay")

	cache := NewMemoryJTICache()

	replay, err := cache.Record("jti-1")
	if err != nil || replay {
		t.Fatalf("first record: replay=%v err=%v", replay, err)
	}
	replay, err = cache.Record("jti-1")
	if err != nil || !replay {
		t.Fatalf("second record: replay=%v err=%v, want replay", replay, err)
	}
}

func TestJTICache_ExpiredEntryAccepted(t *testing.T) {
	now := time.Unix(1720000000, 0)
	cache := NewMemoryJTICache(
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	cache.Record("jti-1")
	now = now.Add(2 * time.Minute)

	replay, err := cache.Record("jti-1")
	if err != nil || replay {
		t.Errorf("expired jti should be accepted again: replay=%v err=%v", replay, err)
	}
}

func TestJTICache_InvalidInput(t *testing.T) {
	cache := NewMemoryJTICache()

	if _, err := cache.Record(""); !errors.Is(err, ErrInvalidJTI) {
		t.Errorf("empty jti: got %v", err)
	}
	if _, err := cache.Record(strings.Repeat("x", MaxJTILength+1)); !errors.Is(err, ErrJTITooLong) {
		t.Errorf("long jti: got %v", err)
	}
}

func TestJTICache_FullThenSweep(t *testing.T) {
	now := time.Unix(1720000000, 0)
	cache := NewMemoryJTICache(
		WithMaxEntries(2),
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	cache.Record("a")
	cache.Record("b")
	if _, err := cache.Record("c"); !errors.Is(err, ErrCacheFull) {
		t.Fatalf("expected ErrCacheFull, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Record("c"); err != nil {
		t.Fatalf("after expiry, record should evict stale entries: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}

	now = now.Add(2 * time.Minute)
	cache.Sweep()
	if cache.Len() != 0 {
		t.Errorf("Len() after Sweep = %d, want 0", cache.Len())
	}
}

func TestJTICache_ConcurrentSingleWinner(t *testing.T) {
	t.Log("Testing exactly one concurrent Record of the same jti succeeds")

	cache := NewMemoryJTICache()
	var accepted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replay, err := cache.Record("shared")
			if err == nil && !replay {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("accepted = %d, want 1", accepted.Load())
	}
}
