package coord

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.SetIfAbsent(ctx, "k", "v1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first SetIfAbsent: created=%v err=%v", created, err)
	}
	created, err = s.SetIfAbsent(ctx, "k", "v2", time.Minute)
	if err != nil || created {
		t.Fatalf("second SetIfAbsent must lose: created=%v err=%v", created, err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("Get = %q %v %v, want v1", v, ok, err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreAt(func() time.Time { return now })

	if _, err := s.SetIfAbsent(ctx, "k", "v", 2*time.Second); err != nil {
		t.Fatal(err)
	}
	now = now.Add(3 * time.Second)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("key must expire")
	}
	created, err := s.SetIfAbsent(ctx, "k", "v2", time.Second)
	if err != nil || !created {
		t.Fatalf("expired key must be claimable again: created=%v err=%v", created, err)
	}
}

func TestMemoryStoreIncrementWithTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreAt(func() time.Time { return now })

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementWithTTL(ctx, "c", time.Hour)
		if err != nil || n != want {
			t.Fatalf("increment #%d = %d, err %v", want, n, err)
		}
	}

	// TTL anchored at creation, not refreshed per increment.
	now = now.Add(61 * time.Minute)
	n, err := s.IncrementWithTTL(ctx, "c", time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("counter must reset after TTL: n=%d err=%v", n, err)
	}
}

func TestMemoryStoreDecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.IncrementWithTTL(ctx, "c", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Decrement(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "c"); ok {
		t.Fatalf("counter at zero must be removed")
	}
	// Decrementing an absent key is a no-op, not an error.
	if err := s.Decrement(ctx, "c"); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.SetIfAbsent(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	deleted, err := s.Delete(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("first delete: %v %v", deleted, err)
	}
	deleted, err = s.Delete(ctx, "k")
	if err != nil || deleted {
		t.Fatalf("second delete must report absent: %v %v", deleted, err)
	}
}

func TestMemoryStoreFailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.FailNext = true

	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Fatalf("expected ErrUnavailable")
	}
	if _, _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("failure must be one-shot: %v", err)
	}
}
