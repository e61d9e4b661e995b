package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartAPIHandlers exposes the visitor cart as JSON under /api/v1/cart.
type CartAPIHandlers struct {
	carts   services.CartStore
	catalog services.CatalogService
}

// NewCartAPIHandlers constructs the JSON cart handlers.
func NewCartAPIHandlers(carts services.CartStore, catalog services.CatalogService) *CartAPIHandlers {
	return &CartAPIHandlers{carts: carts, catalog: catalog}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartAPIHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	Items     []cartItemPayload  `json:"items"`
	ItemCount int                `json:"itemCount"`
	Summary   cartSummaryPayload `json:"summary"`
}

type cartItemPayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"lineTotal"`
}

type cartSummaryPayload struct {
	Subtotal           float64 `json:"subtotal"`
	Tax                float64 `json:"tax"`
	Total              float64 `json:"total"`
	TaxRateBasisPoints int     `json:"taxRateBasisPoints"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartAPIHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	cart, err := h.carts.Snapshot(ctx)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	if s, ok := session.FromContext(ctx); ok {
		w.Header().Set(session.CSRFHeader, s.CSRFToken)
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart)})
}

func (h *CartAPIHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req addItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	cart, err := h.carts.Add(ctx, product.Ref(), quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart)})
}

func (h *CartAPIHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	cart, err := h.carts.SetQuantity(ctx, productID, *req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart)})
}

func (h *CartAPIHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	cart, err := h.carts.Remove(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart)})
}

func (h *CartAPIHandlers) buildCartPayload(cart services.Cart) cartPayload {
	summary := h.carts.Summary(cart)
	payload := cartPayload{
		Items:     make([]cartItemPayload, 0, cart.Len()),
		ItemCount: cart.ItemCount(),
		Summary: cartSummaryPayload{
			Subtotal:           summary.Subtotal.Major(),
			Tax:                summary.Tax.Major(),
			Total:              summary.Total.Major(),
			TaxRateBasisPoints: summary.TaxRateBasisPoints,
		},
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:        item.ID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Image:     item.ImageRef,
			Quantity:  item.Quantity,
			LineTotal: domain.LineTotal(item).Major(),
		})
	}
	return payload
}

func (h *CartAPIHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid cart input", http.StatusBadRequest))
	case kv.IsQuotaExceeded(err):
		httpx.WriteError(ctx, w, httpx.NewError("cart_quota_exceeded", "cart storage is full", http.StatusInsufficientStorage))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is temporarily unavailable", http.StatusServiceUnavailable))
	}
}

// decodeJSONBody reads a bounded JSON body into dst, writing the error response itself
// when it fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}
