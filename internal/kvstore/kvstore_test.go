package kvstore

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPullDeletes(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	if err := m.Set(ctx, PaymentResultKey("o1"), "success", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := m.Pull(ctx, PaymentResultKey("o1"))
	if err != nil || !ok || v != "success" {
		t.Fatalf("expected success on first pull, got %q %v %v", v, ok, err)
	}
	if _, ok, _ := m.Pull(ctx, PaymentResultKey("o1")); ok {
		t.Fatal("expected second pull to miss")
	}
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()
	_ = m.Set(ctx, "k", "v", 10*time.Minute)

	now = now.Add(9 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("expected key to be live before ttl")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected key to expire at ttl")
	}
}

func TestKeys(t *testing.T) {
	if got := PaymentResultKey("abc"); got != "payment_result:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := PendingOrderKey("s1"); got != "session:s1:pending_order" {
		t.Fatalf("unexpected key %q", got)
	}
}
