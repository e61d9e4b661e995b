package cartview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
)

// Action names a cart interaction.
type Action string

const (
	ActionDecrease Action = "decrease"
	ActionIncrease Action = "increase"
	ActionSet      Action = "set"
	ActionRemove   Action = "remove"
	ActionCheckout Action = "checkout"
	// ActionUpdate applies every posted quantity field. It is what a change event or an
	// implicit form submission sends.
	ActionUpdate Action = "update"
)

// Form fields read by ParseIntent.
const (
	FieldIntent         = "intent"
	QuantityFieldPrefix = "qty."
)

// ErrUnknownIntent reports an intent the dispatcher does not understand.
var ErrUnknownIntent = errors.New("cartview: unknown intent")

// Notification texts shown for failed cart updates.
const (
	MessageQuotaExceeded = "Your cart could not be saved because storage is full."
	MessageUnavailable   = "Your cart is temporarily unavailable. Please try again."
)

// Intent is one interaction posted from the cart region.
type Intent struct {
	Action    Action
	ProductID string
	// Quantities holds the raw quantity inputs keyed by product id.
	Quantities map[string]string
}

// Result describes what a dispatched intent did.
type Result struct {
	// Rerender is false when the region should be left as it is, as for checkout.
	Rerender bool
	Mutated  bool
}

// ParseIntent reads an intent from the posted cart form. The intent field carries
// "action:productID"; a missing intent means ActionUpdate.
func ParseIntent(form url.Values) (Intent, error) {
	intent := Intent{Quantities: make(map[string]string)}
	for key, values := range form {
		if id, ok := strings.CutPrefix(key, QuantityFieldPrefix); ok && id != "" && len(values) > 0 {
			intent.Quantities[id] = values[0]
		}
	}

	raw := strings.TrimSpace(form.Get(FieldIntent))
	if raw == "" {
		intent.Action = ActionUpdate
		return intent, nil
	}

	action, id, _ := strings.Cut(raw, ":")
	intent.Action = Action(strings.ToLower(strings.TrimSpace(action)))
	intent.ProductID = strings.TrimSpace(id)

	switch intent.Action {
	case ActionUpdate, ActionCheckout:
		return intent, nil
	case ActionDecrease, ActionIncrease, ActionSet, ActionRemove:
		if intent.ProductID == "" {
			return Intent{}, fmt.Errorf("%w: %s needs a product id", ErrUnknownIntent, intent.Action)
		}
		return intent, nil
	default:
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownIntent, raw)
	}
}

// ParseQuantity reads the leading integer of raw the way a numeric input is read by the
// browser: "3.7" is 3 and "12abc" is 12. Input without leading digits is 0, which the store
// clamps to 1. Values above domain.MaxQuantity, including ones too large for an int, are
// capped at domain.MaxQuantity.
func ParseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	negative := false
	if end < len(raw) && (raw[end] == '-' || raw[end] == '+') {
		negative = raw[end] == '-'
		end++
	}
	start := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		if negative {
			return 0
		}
		return domain.MaxQuantity
	}
	return min(n, domain.MaxQuantity)
}

// Dispatch applies intent to the store. Failures are also reported on the request's
// notification collector so the caller only needs to skip the re-render.
func (v *View) Dispatch(ctx context.Context, intent Intent) (Result, error) {
	result, err := v.dispatch(ctx, intent)
	if err != nil && !errors.Is(err, ErrUnknownIntent) {
		notify.FromContext(ctx).Notify(FailureMessage(err), notify.KindError)
	}
	return result, err
}

func (v *View) dispatch(ctx context.Context, intent Intent) (Result, error) {
	switch intent.Action {
	case ActionCheckout:
		notify.FromContext(ctx).OpenModal(CheckoutModalID)
		return Result{}, nil

	case ActionRemove:
		if _, err := v.store.Remove(ctx, intent.ProductID); err != nil {
			return Result{}, err
		}
		return Result{Rerender: true, Mutated: true}, nil

	case ActionSet:
		quantity := ParseQuantity(intent.Quantities[intent.ProductID])
		if _, err := v.store.SetQuantity(ctx, intent.ProductID, quantity); err != nil {
			return Result{}, err
		}
		return Result{Rerender: true, Mutated: true}, nil

	case ActionDecrease, ActionIncrease:
		cart, err := v.store.Snapshot(ctx)
		if err != nil {
			return Result{}, err
		}
		item, ok := cart.Item(intent.ProductID)
		if !ok {
			return Result{Rerender: true}, nil
		}
		next := item.Quantity + 1
		if intent.Action == ActionDecrease {
			next = item.Quantity - 1
		}
		if _, err := v.store.SetQuantity(ctx, intent.ProductID, next); err != nil {
			return Result{}, err
		}
		return Result{Rerender: true, Mutated: true}, nil

	case ActionUpdate:
		return v.applyQuantities(ctx, intent.Quantities)

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownIntent, intent.Action)
	}
}

// applyQuantities sets every posted quantity that differs from the stored one, in cart
// order. Fields for products no longer in the cart are ignored.
func (v *View) applyQuantities(ctx context.Context, quantities map[string]string) (Result, error) {
	result := Result{Rerender: true}
	if len(quantities) == 0 {
		return result, nil
	}
	cart, err := v.store.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, line := range cart.Items {
		raw, ok := quantities[line.ID]
		if !ok {
			continue
		}
		quantity := ParseQuantity(raw)
		if quantity < 1 {
			quantity = 1
		}
		if quantity == line.Quantity {
			continue
		}
		if _, err := v.store.SetQuantity(ctx, line.ID, quantity); err != nil {
			return Result{}, err
		}
		result.Mutated = true
	}
	return result, nil
}

// FailureMessage is the notification text for a failed cart operation.
func FailureMessage(err error) string {
	if kv.IsQuotaExceeded(err) {
		return MessageQuotaExceeded
	}
	return MessageUnavailable
}
