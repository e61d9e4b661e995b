package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
)

// CartStorageKey is the substrate key the serialised cart lives under.
const CartStorageKey = "cart"

var errCartSubstrateRequired = errors.New("cart store: substrate is required")

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart store: invalid input")

// ErrCartPersistence indicates the mutated cart could not be written back. The cart held by
// the substrate is unchanged.
var ErrCartPersistence = errors.New("cart store: persistence failed")

// ErrCartUnavailable indicates the substrate could not be read.
var ErrCartUnavailable = errors.New("cart store: unavailable")

// CartMetrics receives cart mutation outcomes.
type CartMetrics interface {
	RecordMutation(ctx context.Context, op string, err error)
	RecordItemCount(ctx context.Context, count int)
}

// CartStoreDeps wires the substrate and collaborators for cart operations.
type CartStoreDeps struct {
	Substrate  Substrate
	TaxRateBPS int
	// Badge is notified with the total quantity after every successful mutation.
	Badge   func(ctx context.Context, count int)
	Metrics CartMetrics
	Logger  func(context.Context, string, map[string]any)
}

type cartStore struct {
	substrate Substrate
	taxRate   int
	badge     func(context.Context, int)
	metrics   CartMetrics
	logger    func(context.Context, string, map[string]any)
}

// NewCartStore constructs a CartStore enforcing dependency validation.
func NewCartStore(deps CartStoreDeps) (CartStore, error) {
	if deps.Substrate == nil {
		return nil, errCartSubstrateRequired
	}

	taxRate := deps.TaxRateBPS
	if taxRate <= 0 {
		taxRate = domain.DefaultTaxRateBasisPoints
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	badge := deps.Badge
	if badge == nil {
		badge = func(context.Context, int) {}
	}

	return &cartStore{
		substrate: deps.Substrate,
		taxRate:   taxRate,
		badge:     badge,
		metrics:   deps.Metrics,
		logger:    logger,
	}, nil
}

// Load reads the persisted cart. A missing key yields an empty cart. So does a value that
// cannot be decoded; that case is logged and never returned as an error.
func (s *cartStore) Load(ctx context.Context) (Cart, error) {
	raw, err := s.substrate.Get(ctx, CartStorageKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return domain.NewCart(), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Cart{}, err
		}
		s.logger(ctx, "cart.load_failed", map[string]any{
			"level": "warn",
			"error": err.Error(),
		})
		return Cart{}, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}

	if strings.TrimSpace(raw) == "" {
		return domain.NewCart(), nil
	}

	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		s.logger(ctx, "cart.load_corrupt", map[string]any{
			"level": "warn",
			"error": err.Error(),
			"bytes": len(raw),
		})
		return domain.NewCart(), nil
	}

	normalised := cart.Normalize()
	if len(normalised.Items) != len(cart.Items) {
		s.logger(ctx, "cart.load_normalised", map[string]any{
			"stored":  len(cart.Items),
			"kept":    len(normalised.Items),
			"dropped": len(cart.Items) - len(normalised.Items),
		})
	}
	return normalised, nil
}

// Snapshot returns the current cart, reading through to the substrate every time.
func (s *cartStore) Snapshot(ctx context.Context) (Cart, error) {
	return s.Load(ctx)
}

// Add merges quantity into an existing line or appends a new one. Quantities are clamped
// into [1, domain.MaxQuantity] and merging saturates at the maximum. Ids are stored as
// given; blank ids are rejected.
func (s *cartStore) Add(ctx context.Context, product ProductRef, quantity int) (Cart, error) {
	id := product.ID
	if domain.IsBlankID(id) {
		return Cart{}, ErrCartInvalidInput
	}
	quantity = domain.ClampQuantity(quantity)

	return s.mutate(ctx, "add", func(cart *Cart) bool {
		if idx := cart.Index(id); idx >= 0 {
			cart.Items[idx].Quantity = domain.AddQuantity(cart.Items[idx].Quantity, quantity)
			return true
		}
		price := product.UnitPrice
		if price < 0 {
			price = 0
		}
		cart.Items = append(cart.Items, LineItem{
			ID:        id,
			Name:      strings.TrimSpace(product.Name),
			UnitPrice: price,
			ImageRef:  strings.TrimSpace(product.ImageRef),
			Quantity:  quantity,
		})
		return true
	})
}

// Remove deletes the line for productID. Unknown ids leave the cart as it is.
func (s *cartStore) Remove(ctx context.Context, productID string) (Cart, error) {
	return s.mutate(ctx, "remove", func(cart *Cart) bool {
		idx := cart.Index(productID)
		if idx < 0 {
			return false
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return true
	})
}

// SetQuantity replaces the quantity of productID, clamped into [1, domain.MaxQuantity].
// Unknown ids leave the cart as it is.
func (s *cartStore) SetQuantity(ctx context.Context, productID string, quantity int) (Cart, error) {
	quantity = domain.ClampQuantity(quantity)
	return s.mutate(ctx, "set_quantity", func(cart *Cart) bool {
		idx := cart.Index(productID)
		if idx < 0 {
			return false
		}
		cart.Items[idx].Quantity = quantity
		return true
	})
}

// Summary derives the order summary for cart.
func (s *cartStore) Summary(cart Cart) OrderSummary {
	return domain.Summarize(cart, s.taxRate)
}

// mutate runs one read-modify-write cycle. The whole cart is written back even when apply
// reports no change, so the persisted form always matches what callers observe.
func (s *cartStore) mutate(ctx context.Context, op string, apply func(*Cart) bool) (Cart, error) {
	cart, err := s.Load(ctx)
	if err != nil {
		s.record(ctx, op, err)
		return Cart{}, err
	}

	changed := apply(&cart)

	if err := s.save(ctx, cart); err != nil {
		s.logger(ctx, "cart.save_failed", map[string]any{
			"level":     "error",
			"operation": op,
			"error":     err.Error(),
			"quota":     kv.IsQuotaExceeded(err),
		})
		s.record(ctx, op, err)
		return Cart{}, err
	}

	count := cart.ItemCount()
	s.badge(ctx, count)
	s.record(ctx, op, nil)
	if s.metrics != nil {
		s.metrics.RecordItemCount(ctx, count)
	}
	s.logger(ctx, "cart."+op, map[string]any{
		"changed":   changed,
		"lines":     cart.Len(),
		"itemCount": count,
	})
	return cart, nil
}

func (s *cartStore) save(ctx context.Context, cart Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("%w: encode cart: %w", ErrCartPersistence, err)
	}
	if err := s.substrate.Set(ctx, CartStorageKey, string(payload)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCartPersistence, err)
	}
	return nil
}

func (s *cartStore) record(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(ctx, op, err)
	}
}
