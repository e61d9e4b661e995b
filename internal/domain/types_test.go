package domain

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestCartJSONRoundTripPreservesOrderAndFields(t *testing.T) {
	cart := Cart{Items: []LineItem{
		{ID: "smart-mirror", Name: "Smart Mirror", UnitPrice: 1299.5, ImageRef: "/img/mirror.png", Quantity: 2},
		{ID: "ai-stylist", Name: "AI Stylist", UnitPrice: 499, ImageRef: "/img/stylist.png", Quantity: 1},
	}}

	raw, err := json.Marshal(cart)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Cart
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(cart, decoded) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", cart, decoded)
	}
}

func TestCartMarshalUsesStorageFieldNames(t *testing.T) {
	raw, err := json.Marshal(Cart{Items: []LineItem{{ID: "a", Name: "A", UnitPrice: 10, ImageRef: "a.png", Quantity: 1}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"id":"a","name":"A","price":10,"image":"a.png","quantity":1}]`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}

	empty, err := json.Marshal(NewCart())
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(empty) != "[]" {
		t.Fatalf("expected empty array, got %s", empty)
	}
}

func TestCartNormalizeEnforcesInvariants(t *testing.T) {
	cart := Cart{Items: []LineItem{
		{ID: "a", UnitPrice: 5, Quantity: 0},
		{ID: "  ", UnitPrice: 1, Quantity: 3},
		{ID: "b", UnitPrice: -2, Quantity: 2},
		{ID: "a", UnitPrice: 5, Quantity: 4},
		{ID: " a ", UnitPrice: 7, Quantity: 5000},
	}}

	got := cart.Normalize()

	if got.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", got.Len())
	}
	if got.Items[0].ID != "a" || got.Items[0].Quantity != 5 {
		t.Fatalf("expected merged a x5, got %+v", got.Items[0])
	}
	if got.Items[1].ID != "b" || got.Items[1].UnitPrice != 0 {
		t.Fatalf("expected b with zero price, got %+v", got.Items[1])
	}
	if got.Items[2].ID != " a " || got.Items[2].Quantity != MaxQuantity {
		t.Fatalf("expected untouched id %q capped at %d, got %+v", " a ", MaxQuantity, got.Items[2])
	}
}

func TestCartNormalizeRoundTripsOpaqueIDs(t *testing.T) {
	cart := Cart{Items: []LineItem{
		{ID: " A", Name: "Padded", UnitPrice: 3, Quantity: 2},
		{ID: "A", Name: "Plain", UnitPrice: 4, Quantity: 1},
	}}

	raw, err := json.Marshal(cart)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Cart
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := decoded.Normalize(); !reflect.DeepEqual(got, cart) {
		t.Fatalf("expected %+v, got %+v", cart, got)
	}
}

func TestQuantityBounds(t *testing.T) {
	clamp := map[int]int{
		math.MinInt:     1,
		-3:              1,
		0:               1,
		1:               1,
		42:              42,
		MaxQuantity:     MaxQuantity,
		MaxQuantity + 1: MaxQuantity,
		math.MaxInt:     MaxQuantity,
	}
	for in, want := range clamp {
		if got := ClampQuantity(in); got != want {
			t.Errorf("ClampQuantity(%d) = %d, want %d", in, got, want)
		}
	}

	if got := AddQuantity(1, math.MaxInt); got != MaxQuantity {
		t.Fatalf("expected saturation at %d, got %d", MaxQuantity, got)
	}
	if got := AddQuantity(MaxQuantity-1, 5); got != MaxQuantity {
		t.Fatalf("expected saturation at %d, got %d", MaxQuantity, got)
	}
	if got := AddQuantity(2, 3); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestCartLookupHelpers(t *testing.T) {
	cart := Cart{Items: []LineItem{{ID: "a", Quantity: 2}, {ID: "b", Quantity: 3}}}
	if cart.Index("b") != 1 || cart.Index("zzz") != -1 {
		t.Fatalf("unexpected index results")
	}
	if item, ok := cart.Item("a"); !ok || item.Quantity != 2 {
		t.Fatalf("expected item a, got %+v %v", item, ok)
	}
	if cart.ItemCount() != 5 {
		t.Fatalf("expected count 5, got %d", cart.ItemCount())
	}

	clone := cart.Clone()
	clone.Items[0].Quantity = 99
	if cart.Items[0].Quantity != 2 {
		t.Fatalf("clone must not alias original")
	}
}

func TestParseTheme(t *testing.T) {
	cases := map[string]Theme{
		"dark":   ThemeDark,
		" DARK ": ThemeDark,
		"light":  ThemeLight,
		"":       ThemeLight,
		"sepia":  ThemeLight,
	}
	for raw, want := range cases {
		if got := ParseTheme(raw); got != want {
			t.Errorf("ParseTheme(%q) = %q, want %q", raw, got, want)
		}
	}
	if ThemeDark.Toggle() != ThemeLight || ThemeLight.Toggle() != ThemeDark {
		t.Fatal("expected toggle to flip the theme")
	}
}
