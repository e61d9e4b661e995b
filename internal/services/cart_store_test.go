package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
)

type stubSubstrate struct {
	values  map[string]string
	getErr  error
	setErr  error
	setCall int
}

func newStubSubstrate() *stubSubstrate {
	return &stubSubstrate{values: make(map[string]string)}
}

func (s *stubSubstrate) Get(_ context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return value, nil
}

func (s *stubSubstrate) Set(_ context.Context, key, value string) error {
	s.setCall++
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

type stubCartMetrics struct {
	ops    []string
	errs   int
	counts []int
}

func (m *stubCartMetrics) RecordMutation(_ context.Context, op string, err error) {
	m.ops = append(m.ops, op)
	if err != nil {
		m.errs++
	}
}

func (m *stubCartMetrics) RecordItemCount(_ context.Context, count int) {
	m.counts = append(m.counts, count)
}

func newTestCartStore(t *testing.T, substrate Substrate, badge func(context.Context, int)) CartStore {
	t.Helper()
	store, err := NewCartStore(CartStoreDeps{Substrate: substrate, Badge: badge})
	if err != nil {
		t.Fatalf("unexpected error constructing cart store: %v", err)
	}
	return store
}

func TestNewCartStoreRequiresSubstrate(t *testing.T) {
	if _, err := NewCartStore(CartStoreDeps{}); !errors.Is(err, errCartSubstrateRequired) {
		t.Fatalf("expected substrate required error, got %v", err)
	}
}

func TestCartStoreLoadEmptyWhenAbsent(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)

	cart, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
	if cart.Items == nil {
		t.Fatalf("expected non-nil items slice")
	}
}

func TestCartStoreLoadCorruptValueYieldsEmptyCart(t *testing.T) {
	for name, raw := range map[string]string{
		"invalid json": "{not json",
		"object":       `{"id":"a"}`,
		"wrong types":  `[{"id":"a","quantity":"two"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			substrate := newStubSubstrate()
			substrate.values[CartStorageKey] = raw

			var events []string
			store, err := NewCartStore(CartStoreDeps{
				Substrate: substrate,
				Logger: func(_ context.Context, event string, fields map[string]any) {
					events = append(events, event)
					if event == "cart.load_corrupt" && fields["level"] != "warn" {
						t.Fatalf("expected warn level, got %v", fields["level"])
					}
				},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			cart, err := store.Load(context.Background())
			if err != nil {
				t.Fatalf("expected corrupt data to be swallowed, got %v", err)
			}
			if !cart.IsEmpty() {
				t.Fatalf("expected empty cart, got %+v", cart)
			}
			if len(events) != 1 || events[0] != "cart.load_corrupt" {
				t.Fatalf("expected corrupt load to be logged, got %v", events)
			}
		})
	}
}

func TestCartStoreLoadNormalisesStoredItems(t *testing.T) {
	substrate := newStubSubstrate()
	substrate.values[CartStorageKey] = `[{"id":"a","name":"A","price":10,"image":"a.png","quantity":0},` +
		`{"id":"","name":"ghost","price":1,"quantity":1},` +
		`{"id":"a","name":"A","price":10,"image":"a.png","quantity":2}]`

	store := newTestCartStore(t, substrate, nil)
	cart, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []LineItem{{ID: "a", Name: "A", UnitPrice: 10, ImageRef: "a.png", Quantity: 3}}
	if !reflect.DeepEqual(cart.Items, want) {
		t.Fatalf("expected %+v, got %+v", want, cart.Items)
	}
}

func TestCartStoreLoadUnavailable(t *testing.T) {
	substrate := newStubSubstrate()
	substrate.getErr = errors.New("connection refused")
	store := newTestCartStore(t, substrate, nil)

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}

	if _, err := store.Add(context.Background(), ProductRef{ID: "a", UnitPrice: 1}, 1); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected mutation to refuse to overwrite unreadable cart, got %v", err)
	}
	if substrate.setCall != 0 {
		t.Fatalf("expected no write when read failed, got %d", substrate.setCall)
	}
}

func TestCartStoreAddDistinctIDs(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()

	adds := []struct {
		id  string
		qty int
	}{
		{"a", 1}, {"b", 3}, {"a", 2}, {"c", 1}, {"b", 1},
	}
	want := map[string]int{}
	for _, add := range adds {
		if _, err := store.Add(ctx, ProductRef{ID: add.id, Name: add.id, UnitPrice: 5}, add.qty); err != nil {
			t.Fatalf("add %s failed: %v", add.id, err)
		}
		want[add.id] += add.qty
	}

	cart, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if cart.Len() != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), cart.Len())
	}
	for id, qty := range want {
		item, ok := cart.Item(id)
		if !ok {
			t.Fatalf("expected line for %s", id)
		}
		if item.Quantity != qty {
			t.Fatalf("expected %s quantity %d, got %d", id, qty, item.Quantity)
		}
	}

	order := []string{cart.Items[0].ID, cart.Items[1].ID, cart.Items[2].ID}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Fatalf("expected insertion order preserved, got %v", order)
	}
}

func TestCartStoreAddTwiceEqualsSummedAdd(t *testing.T) {
	ctx := context.Background()
	product := ProductRef{ID: "mirror", Name: "Smart Mirror", UnitPrice: 1299, ImageRef: "mirror.png"}

	twice := newStubSubstrate()
	store := newTestCartStore(t, twice, nil)
	if _, err := store.Add(ctx, product, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := store.Add(ctx, product, 3); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	once := newStubSubstrate()
	single := newTestCartStore(t, once, nil)
	if _, err := single.Add(ctx, product, 5); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if twice.values[CartStorageKey] != once.values[CartStorageKey] {
		t.Fatalf("expected identical persisted state, got %s vs %s", twice.values[CartStorageKey], once.values[CartStorageKey])
	}
}

func TestCartStoreAddKeepsCapturedFields(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()

	if _, err := store.Add(ctx, ProductRef{ID: "a", Name: "Original", UnitPrice: 10}, 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cart, err := store.Add(ctx, ProductRef{ID: "a", Name: "Renamed", UnitPrice: 99}, 1)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	item, _ := cart.Item("a")
	if item.Name != "Original" || item.UnitPrice != 10 || item.Quantity != 2 {
		t.Fatalf("expected first captured fields to win, got %+v", item)
	}
}

func TestCartStoreAddDefaultsQuantityAndRejectsBlankID(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()

	cart, err := store.Add(ctx, ProductRef{ID: "a", UnitPrice: 1}, 0)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if item, _ := cart.Item("a"); item.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", item.Quantity)
	}

	if _, err := store.Add(ctx, ProductRef{ID: "  "}, 1); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartStoreSetQuantityClampsToOne(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()
	if _, err := store.Add(ctx, ProductRef{ID: "a", UnitPrice: 1}, 4); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	for _, q := range []int{0, -1, -100} {
		cart, err := store.SetQuantity(ctx, "a", q)
		if err != nil {
			t.Fatalf("set quantity failed: %v", err)
		}
		if item, _ := cart.Item("a"); item.Quantity != 1 {
			t.Fatalf("expected clamp to 1 for %d, got %d", q, item.Quantity)
		}
	}

	cart, err := store.SetQuantity(ctx, "a", 7)
	if err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}
	if item, _ := cart.Item("a"); item.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", item.Quantity)
	}
}

func TestCartStoreSetQuantityMissingIsNoop(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()
	if _, err := store.Add(ctx, ProductRef{ID: "a", UnitPrice: 1}, 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	cart, err := store.SetQuantity(ctx, "missing", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cart.Len() != 1 || cart.Items[0].Quantity != 1 {
		t.Fatalf("expected cart untouched, got %+v", cart)
	}
}

func TestCartStoreRemoveIsIdempotent(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := store.Add(ctx, ProductRef{ID: id, UnitPrice: 1}, 1); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	first, err := store.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	second, err := store.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected second remove to be a no-op, got %+v then %+v", first, second)
	}
	if second.Len() != 1 || second.Items[0].ID != "b" {
		t.Fatalf("expected only b to remain, got %+v", second)
	}
}

func TestCartStoreRoundTripPreservesCart(t *testing.T) {
	substrate := newStubSubstrate()
	store := newTestCartStore(t, substrate, nil)
	ctx := context.Background()

	products := []ProductRef{
		{ID: "mirror", Name: "Smart Mirror", UnitPrice: 1299.99, ImageRef: "/img/mirror.png"},
		{ID: "stylist", Name: "AI Stylist", UnitPrice: 0, ImageRef: ""},
		{ID: "closet", Name: "Closet <Pro>", UnitPrice: 89.5, ImageRef: "/img/closet.png"},
	}
	var last Cart
	for i, p := range products {
		cart, err := store.Add(ctx, p, i+1)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		last = cart
	}

	// A fresh store over the same substrate sees exactly what was persisted.
	reloaded, err := newTestCartStore(t, substrate, nil).Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(reloaded, last) {
		t.Fatalf("expected %+v, got %+v", last, reloaded)
	}
}

func TestCartStoreBadgeRefreshedAfterEveryMutation(t *testing.T) {
	var counts []int
	store := newTestCartStore(t, newStubSubstrate(), func(_ context.Context, count int) {
		counts = append(counts, count)
	})
	ctx := context.Background()

	mustCart(t)(store.Add(ctx, ProductRef{ID: "a", UnitPrice: 1}, 2))
	mustCart(t)(store.Add(ctx, ProductRef{ID: "b", UnitPrice: 1}, 1))
	mustCart(t)(store.SetQuantity(ctx, "a", 5))
	mustCart(t)(store.Remove(ctx, "b"))
	mustCart(t)(store.Remove(ctx, "missing"))

	want := []int{2, 3, 6, 5, 5}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("expected badge counts %v, got %v", want, counts)
	}
}

func TestCartStorePersistenceFailureSurfaces(t *testing.T) {
	substrate := newStubSubstrate()
	substrate.values[CartStorageKey] = `[{"id":"a","name":"A","price":1,"image":"","quantity":1}]`
	substrate.setErr = kv.ErrQuotaExceeded
	metrics := &stubCartMetrics{}

	badgeCalls := 0
	store, err := NewCartStore(CartStoreDeps{
		Substrate: substrate,
		Metrics:   metrics,
		Badge:     func(context.Context, int) { badgeCalls++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = store.Add(context.Background(), ProductRef{ID: "b", UnitPrice: 1}, 1)
	if !errors.Is(err, ErrCartPersistence) {
		t.Fatalf("expected ErrCartPersistence, got %v", err)
	}
	if !kv.IsQuotaExceeded(err) {
		t.Fatalf("expected quota cause to be preserved, got %v", err)
	}
	if badgeCalls != 0 {
		t.Fatalf("expected no badge refresh after failed write, got %d", badgeCalls)
	}
	if metrics.errs != 1 {
		t.Fatalf("expected failed mutation to be recorded, got %+v", metrics)
	}

	cart, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if cart.Len() != 1 {
		t.Fatalf("expected stored cart unchanged, got %+v", cart)
	}
}

func TestCartStoreAddThenSetQuantitySummary(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()

	mustCart(t)(store.Add(ctx, ProductRef{ID: "A", UnitPrice: 10}, 1))
	cart := mustCart(t)(store.SetQuantity(ctx, "A", 5))

	summary := store.Summary(cart)
	if summary.Subtotal != 5000 || summary.Tax != 1000 || summary.Total != 6000 {
		t.Fatalf("expected 50/10/60, got %+v", summary)
	}
	if summary.TaxRateBasisPoints != domain.DefaultTaxRateBasisPoints {
		t.Fatalf("expected default tax rate, got %d", summary.TaxRateBasisPoints)
	}
}

func TestCartStoreRecordsMetrics(t *testing.T) {
	metrics := &stubCartMetrics{}
	store, err := NewCartStore(CartStoreDeps{Substrate: newStubSubstrate(), Metrics: metrics})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	mustCart(t)(store.Add(ctx, ProductRef{ID: "a", UnitPrice: 1}, 2))
	mustCart(t)(store.Remove(ctx, "a"))

	if !reflect.DeepEqual(metrics.ops, []string{"add", "remove"}) {
		t.Fatalf("unexpected ops %v", metrics.ops)
	}
	if !reflect.DeepEqual(metrics.counts, []int{2, 0}) {
		t.Fatalf("unexpected counts %v", metrics.counts)
	}
}

func mustCart(t *testing.T) func(Cart, error) Cart {
	t.Helper()
	return func(cart Cart, err error) Cart {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return cart
	}
}

func TestCartStoreAddSaturatesAtMaxQuantity(t *testing.T) {
	substrate := newStubSubstrate()
	var badges []int
	store := newTestCartStore(t, substrate, func(_ context.Context, count int) {
		badges = append(badges, count)
	})
	ctx := context.Background()
	ref := ProductRef{ID: "A", Name: "Mirror", UnitPrice: 2499}

	mustCart(t)(store.Add(ctx, ref, 1))
	cart := mustCart(t)(store.Add(ctx, ref, math.MaxInt))

	if item, _ := cart.Item("A"); item.Quantity != domain.MaxQuantity {
		t.Fatalf("expected quantity %d, got %d", domain.MaxQuantity, item.Quantity)
	}
	if cart.ItemCount() != domain.MaxQuantity {
		t.Fatalf("expected item count %d, got %d", domain.MaxQuantity, cart.ItemCount())
	}
	if badges[len(badges)-1] != domain.MaxQuantity {
		t.Fatalf("expected badge %d, got %v", domain.MaxQuantity, badges)
	}

	var persisted []LineItem
	if err := json.Unmarshal([]byte(substrate.values[CartStorageKey]), &persisted); err != nil {
		t.Fatalf("decode persisted cart: %v", err)
	}
	if len(persisted) != 1 || persisted[0].Quantity != domain.MaxQuantity {
		t.Fatalf("expected persisted quantity %d, got %+v", domain.MaxQuantity, persisted)
	}

	summary := store.Summary(cart)
	if summary.Subtotal <= 0 || summary.Total < summary.Subtotal {
		t.Fatalf("expected a positive summary, got %+v", summary)
	}
}

func TestCartStoreClampsLargeQuantities(t *testing.T) {
	store := newTestCartStore(t, newStubSubstrate(), nil)
	ctx := context.Background()

	cart := mustCart(t)(store.Add(ctx, ProductRef{ID: "A", UnitPrice: 1}, math.MaxInt))
	if item, _ := cart.Item("A"); item.Quantity != domain.MaxQuantity {
		t.Fatalf("expected add to clamp to %d, got %d", domain.MaxQuantity, item.Quantity)
	}

	mustCart(t)(store.SetQuantity(ctx, "A", 3))
	cart = mustCart(t)(store.SetQuantity(ctx, "A", domain.MaxQuantity+1))
	if item, _ := cart.Item("A"); item.Quantity != domain.MaxQuantity {
		t.Fatalf("expected set to clamp to %d, got %d", domain.MaxQuantity, item.Quantity)
	}
}

func TestCartStoreLoadClampsStoredQuantity(t *testing.T) {
	substrate := newStubSubstrate()
	substrate.values[CartStorageKey] = `[{"id":"a","name":"A","price":1,"image":"","quantity":9223372036854775807}]`
	store := newTestCartStore(t, substrate, nil)

	cart, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Len() != 1 || cart.Items[0].Quantity != domain.MaxQuantity {
		t.Fatalf("expected one line capped at %d, got %+v", domain.MaxQuantity, cart.Items)
	}
}

func TestCartStoreKeepsIDsOpaque(t *testing.T) {
	substrate := newStubSubstrate()
	store := newTestCartStore(t, substrate, nil)
	ctx := context.Background()

	mustCart(t)(store.Add(ctx, ProductRef{ID: "A", UnitPrice: 1}, 1))
	cart := mustCart(t)(store.Add(ctx, ProductRef{ID: " A", UnitPrice: 2}, 1))
	if cart.Len() != 2 || cart.Items[1].ID != " A" {
		t.Fatalf("expected padded id kept as a separate line, got %+v", cart.Items)
	}

	cart = mustCart(t)(store.Remove(ctx, " A"))
	if cart.Len() != 1 || cart.Items[0].ID != "A" {
		t.Fatalf("expected only the padded line removed, got %+v", cart.Items)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Items, cart.Items) {
		t.Fatalf("expected round trip %+v, got %+v", cart.Items, loaded.Items)
	}
}
