package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmu-smartstyle/storefront/internal/cartview"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/observability"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

// Notification texts for the add-to-cart flow.
const (
	MessageAddedToCart     = "Product added to cart!"
	MessageProductNotFound = "This product is no longer available."
	MessageInvalidRequest  = "Something went wrong with that request. Please try again."
)

const (
	fieldProductID   = "product_id"
	fieldQuantity    = "quantity"
	fragmentBadge    = "cart_badge"
	cartPath         = "/cart"
	productsPath     = "/products"
	checkoutFragment = cartPath + "#" + cartview.CheckoutModalID
)

// CartDeps wires the collaborators of the cart routes.
type CartDeps struct {
	Carts    services.CartStore
	Catalog  services.CatalogService
	View     *cartview.View
	Renderer Renderer
	Flash    *notify.Flash
}

// CartHandlers serves the cart region fragments and the cart form posts. Every handler
// answers htmx requests with a fragment or an empty swap, and plain form posts with a
// redirect carrying the notification as a flash.
type CartHandlers struct {
	carts    services.CartStore
	catalog  services.CatalogService
	view     *cartview.View
	renderer Renderer
	flash    *notify.Flash
}

// NewCartHandlers constructs the cart handlers.
func NewCartHandlers(deps CartDeps) (*CartHandlers, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("cart handlers: cart store is required")
	case deps.Catalog == nil:
		return nil, errors.New("cart handlers: catalog is required")
	case deps.View == nil:
		return nil, errors.New("cart handlers: view is required")
	case deps.Renderer == nil:
		return nil, errors.New("cart handlers: renderer is required")
	}
	return &CartHandlers{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		view:     deps.View,
		renderer: deps.Renderer,
		flash:    deps.Flash,
	}, nil
}

// Routes wires the cart fragment and form routes onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cart/fragment", h.fragment)
	r.Get("/cart/badge", h.badge)
	r.Post("/cart/items", h.addItem)
	r.Post("/cart/intents", h.intents)
}

func (h *CartHandlers) fragment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var buf bytes.Buffer
	if err := h.view.Render(ctx, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *CartHandlers) badge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := h.carts.Snapshot(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("load cart badge", zap.Error(err))
		swapNothing(w, http.StatusServiceUnavailable)
		return
	}
	count := cart.ItemCount()
	renderFragment(ctx, w, h.renderer, http.StatusOK, fragmentBadge, notify.Badge{Count: count, Visible: count > 0})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collector := notify.FromContext(ctx)

	if err := parseForm(w, r); err != nil {
		collector.Notify(MessageInvalidRequest, notify.KindError)
		h.finish(w, r, http.StatusBadRequest, backTarget(r, productsPath))
		return
	}

	productID := strings.TrimSpace(r.PostForm.Get(fieldProductID))
	if productID == "" {
		collector.Notify(MessageInvalidRequest, notify.KindError)
		h.finish(w, r, http.StatusBadRequest, backTarget(r, productsPath))
		return
	}

	quantity := 1
	if raw := r.PostForm.Get(fieldQuantity); raw != "" {
		quantity = cartview.ParseQuantity(raw)
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		collector.Notify(MessageProductNotFound, notify.KindError)
		h.finish(w, r, failureStatus(err), backTarget(r, productsPath))
		return
	}

	if _, err := h.carts.Add(ctx, product.Ref(), quantity); err != nil {
		collector.Notify(cartview.FailureMessage(err), notify.KindError)
		h.finish(w, r, failureStatus(err), backTarget(r, productsPath))
		return
	}

	collector.Notify(MessageAddedToCart, notify.KindSuccess)
	h.finish(w, r, http.StatusOK, backTarget(r, productsPath))
}

func (h *CartHandlers) intents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := parseForm(w, r); err != nil {
		notify.FromContext(ctx).Notify(MessageInvalidRequest, notify.KindError)
		h.finish(w, r, http.StatusBadRequest, cartPath)
		return
	}

	intent, err := cartview.ParseIntent(r.PostForm)
	if err != nil {
		observability.FromContext(ctx).Debug("reject cart intent", zap.Error(err))
		notify.FromContext(ctx).Notify(MessageInvalidRequest, notify.KindError)
		h.finish(w, r, http.StatusBadRequest, cartPath)
		return
	}

	result, err := h.view.Dispatch(ctx, intent)
	if err != nil {
		if errors.Is(err, cartview.ErrUnknownIntent) {
			notify.FromContext(ctx).Notify(MessageInvalidRequest, notify.KindError)
		}
		h.finish(w, r, failureStatus(err), cartPath)
		return
	}

	if !isHTMX(r) {
		target := cartPath
		if intent.Action == cartview.ActionCheckout {
			target = checkoutFragment
		}
		redirectWithFlash(w, r, h.flash, target)
		return
	}
	if !result.Rerender {
		swapNothing(w, http.StatusOK)
		return
	}
	h.fragment(w, r)
}

// fail reports a storage failure on a fragment request.
func (h *CartHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	observability.FromContext(ctx).Warn("render cart", zap.Error(err))
	notify.FromContext(ctx).Notify(cartview.FailureMessage(err), notify.KindError)
	if !isHTMX(r) {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", failureStatus(err)))
		return
	}
	swapNothing(w, failureStatus(err))
}

// finish ends a mutation that renders nothing for htmx.
func (h *CartHandlers) finish(w http.ResponseWriter, r *http.Request, status int, target string) {
	if isHTMX(r) {
		swapNothing(w, status)
		return
	}
	redirectWithFlash(w, r, h.flash, target)
}
