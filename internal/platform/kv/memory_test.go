package kv

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "sess-1", "cart"); !IsNotFound(err) {
		t.Fatalf("expected not found before first write, got %v", err)
	}

	if err := store.Set(ctx, "sess-1", "cart", "[]"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "sess-1", "cart")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "[]" {
		t.Fatalf("expected [] got %q", got)
	}

	if _, err := store.Get(ctx, "sess-2", "cart"); !IsNotFound(err) {
		t.Fatalf("expected namespaces to be isolated, got %v", err)
	}

	if err := store.Delete(ctx, "sess-1", "cart"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1", "cart"); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "sess-1", "cart"); err != nil {
		t.Fatalf("expected deleting a missing key to succeed, got %v", err)
	}
}

func TestMemoryStoreQuota(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithQuota(16))

	if err := store.Set(ctx, "ns", "cart", "0123456789"); err != nil {
		t.Fatalf("expected write within quota, got %v", err)
	}
	if got := store.Usage("ns"); got != 14 {
		t.Fatalf("expected usage 14, got %d", got)
	}

	// Replacing a value only counts the difference.
	if err := store.Set(ctx, "ns", "cart", "012345678901"); err != nil {
		t.Fatalf("expected overwrite within quota, got %v", err)
	}

	err := store.Set(ctx, "ns", "cart", strings.Repeat("x", 32))
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected error to wrap ErrQuotaExceeded, got %v", err)
	}
	got, err := store.Get(ctx, "ns", "cart")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "012345678901" {
		t.Fatalf("expected previous value to survive rejected write, got %q", got)
	}

	if err := store.Set(ctx, "other", "cart", "0123456789"); err != nil {
		t.Fatalf("expected quota to be per namespace, got %v", err)
	}
}

func TestMemoryStoreValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "", "cart", "[]"); err == nil {
		t.Fatal("expected error for empty namespace")
	}
	if _, err := store.Get(ctx, "ns", " "); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	if err := store.Set(ctx, "ns", "cart", "[]"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "ns", "cart", "[]")
			_, _ = store.Get(ctx, "ns", "cart")
		}()
	}
	wg.Wait()

	if _, err := store.Get(ctx, "ns", "cart"); err != nil {
		t.Fatalf("expected value after concurrent writes, got %v", err)
	}
}

func TestBucketScopesNamespace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewBucket(store, "a")
	b := NewBucket(store, " b ")

	if b.Namespace() != "b" {
		t.Fatalf("expected trimmed namespace, got %q", b.Namespace())
	}
	if err := a.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := b.Get(ctx, "theme"); !IsNotFound(err) {
		t.Fatalf("expected bucket isolation, got %v", err)
	}
	if got, _ := store.Get(ctx, "a", "theme"); got != "dark" {
		t.Fatalf("expected bucket write to land in namespace a, got %q", got)
	}

	var empty Bucket
	if err := empty.Set(ctx, "theme", "dark"); !IsUnavailable(err) {
		t.Fatalf("expected unavailable error from zero bucket, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := unavailableError("set", "ns", "cart", cause)

	if !IsUnavailable(err) {
		t.Fatal("expected unavailable classification")
	}
	if IsNotFound(err) || IsQuotaExceeded(err) {
		t.Fatal("expected exclusive classification")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be preserved")
	}
	if got := err.Error(); got != `kv set "cart": dial tcp: connection refused` {
		t.Fatalf("unexpected message %q", got)
	}
	if IsNotFound(nil) || IsUnavailable(nil) || IsQuotaExceeded(nil) {
		t.Fatal("nil error must not classify")
	}
}

type namespaceKey struct{}

func TestScopedStoreResolvesNamespacePerCall(t *testing.T) {
	store := NewMemoryStore()
	scoped := NewScopedStore(store, func(ctx context.Context) string {
		ns, _ := ctx.Value(namespaceKey{}).(string)
		return ns
	})

	alice := context.WithValue(context.Background(), namespaceKey{}, "alice")
	bob := context.WithValue(context.Background(), namespaceKey{}, "bob")

	if err := scoped.Set(alice, "cart", "[1]"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := scoped.Set(bob, "cart", "[2]"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := scoped.Get(alice, "cart"); got != "[1]" {
		t.Fatalf("expected alice cart, got %q", got)
	}
	if got, _ := store.Get(context.Background(), "bob", "cart"); got != "[2]" {
		t.Fatalf("expected bob cart in bob namespace, got %q", got)
	}

	_, err := scoped.Get(context.Background(), "cart")
	if !errors.Is(err, ErrNoNamespace) || !IsUnavailable(err) {
		t.Fatalf("expected missing namespace to be unavailable, got %v", err)
	}
}
