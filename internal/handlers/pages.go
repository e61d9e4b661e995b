package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmu-smartstyle/storefront/internal/cartview"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/observability"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

const featuredProductCount = 3

// Modal fragments that GET /modals/{modalID} can serve.
var modalFragments = map[string]string{
	cartview.CheckoutModalID: "checkout_modal",
}

// PageData is the template data shared by every full page.
type PageData struct {
	Title          string
	Path           string
	Theme          services.Theme
	CSRFToken      string
	DismissAfterMS int64
	Flash          *notify.Notification
	Badge          notify.Badge

	Products       []ProductCard
	Categories     []string
	ActiveCategory string
	Cart           *cartview.Model
	Contact        ContactForm
}

// ProductCard is one rendered catalog entry.
type ProductCard struct {
	ID          string
	Name        string
	Category    string
	Image       string
	Placeholder template.URL
	SummaryHTML template.HTML
	Features    []string
	Price       string
	CSRFToken   string
}

// ContactForm is the template data for the contact form.
type ContactForm struct {
	CSRFToken string
	Values    map[string]string
	Errors    map[string]string
}

// PageDeps wires the collaborators the page handlers read from.
type PageDeps struct {
	Renderer     Renderer
	Catalog      services.CatalogService
	Theme        services.ThemeService
	Carts        services.CartStore
	View         *cartview.View
	Flash        *notify.Flash
	Formatter    cartview.Formatter
	DismissAfter time.Duration
}

// PageHandlers renders the full storefront pages.
type PageHandlers struct {
	renderer     Renderer
	catalog      services.CatalogService
	theme        services.ThemeService
	carts        services.CartStore
	view         *cartview.View
	flash        *notify.Flash
	format       cartview.Formatter
	dismissAfter time.Duration
}

// NewPageHandlers constructs the page handlers.
func NewPageHandlers(deps PageDeps) (*PageHandlers, error) {
	switch {
	case deps.Renderer == nil:
		return nil, errors.New("page handlers: renderer is required")
	case deps.Catalog == nil:
		return nil, errors.New("page handlers: catalog is required")
	case deps.Theme == nil:
		return nil, errors.New("page handlers: theme service is required")
	case deps.Carts == nil || deps.View == nil:
		return nil, errors.New("page handlers: cart store and view are required")
	}
	dismiss := deps.DismissAfter
	if dismiss <= 0 {
		dismiss = notify.DefaultDismissAfter
	}
	format := deps.Formatter
	if !format.Valid() {
		format = cartview.DefaultFormatter()
	}
	return &PageHandlers{
		renderer:     deps.Renderer,
		catalog:      deps.Catalog,
		theme:        deps.Theme,
		carts:        deps.Carts,
		view:         deps.View,
		flash:        deps.Flash,
		format:       format,
		dismissAfter: dismiss,
	}, nil
}

// Routes wires the page routes onto the provided router.
func (h *PageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.home)
	r.Get("/products", h.products)
	r.Get("/contact", h.contact)
	r.With(httpx.NoStore).Get("/cart", h.cart)
	r.Get("/modals/{modalID}", h.modal)
}

func (h *PageHandlers) home(w http.ResponseWriter, r *http.Request) {
	data := h.basePage(r, "Home")
	products, err := h.catalog.ListProducts(r.Context(), services.ProductFilter{})
	if err != nil {
		observability.FromContext(r.Context()).Error("list products", zap.Error(err))
	}
	if len(products) > featuredProductCount {
		products = products[:featuredProductCount]
	}
	data.Products = h.productCards(products, data.CSRFToken)
	renderPage(r.Context(), w, h.renderer, http.StatusOK, "home", data)
}

func (h *PageHandlers) products(w http.ResponseWriter, r *http.Request) {
	data := h.basePage(r, "Products")
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	products, err := h.catalog.ListProducts(r.Context(), services.ProductFilter{Category: category})
	if err != nil {
		observability.FromContext(r.Context()).Error("list products", zap.Error(err))
	}
	data.Categories = h.catalog.Categories(r.Context())
	data.ActiveCategory = category
	data.Products = h.productCards(products, data.CSRFToken)
	renderPage(r.Context(), w, h.renderer, http.StatusOK, "products", data)
}

func (h *PageHandlers) contact(w http.ResponseWriter, r *http.Request) {
	data := h.basePage(r, "Contact")
	data.Contact = ContactForm{CSRFToken: data.CSRFToken}
	renderPage(r.Context(), w, h.renderer, http.StatusOK, "contact", data)
}

func (h *PageHandlers) cart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := h.basePage(r, "Cart")
	model, err := h.view.Model(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("load cart page", zap.Error(err))
		data.Flash = &notify.Notification{
			Message:        cartview.FailureMessage(err),
			Kind:           notify.KindError,
			DismissAfterMS: h.dismissAfter.Milliseconds(),
		}
		renderPage(ctx, w, h.renderer, http.StatusServiceUnavailable, "cart", data)
		return
	}
	data.Cart = &model
	renderPage(ctx, w, h.renderer, http.StatusOK, "cart", data)
}

func (h *PageHandlers) modal(w http.ResponseWriter, r *http.Request) {
	fragment, ok := modalFragments[chi.URLParam(r, "modalID")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	renderFragment(r.Context(), w, h.renderer, http.StatusOK, fragment, nil)
}

// basePage collects the layout data. Storage failures degrade to defaults: the page still
// renders with a light theme and a hidden badge.
func (h *PageHandlers) basePage(r *http.Request, title string) PageData {
	ctx := r.Context()
	data := PageData{
		Title:          title,
		Path:           r.URL.Path,
		Theme:          h.theme.Current(ctx),
		DismissAfterMS: h.dismissAfter.Milliseconds(),
	}
	if s, ok := session.FromContext(ctx); ok {
		data.CSRFToken = s.CSRFToken
	}
	if cart, err := h.carts.Snapshot(ctx); err == nil {
		count := cart.ItemCount()
		data.Badge = notify.Badge{Count: count, Visible: count > 0}
	}
	if h.flash != nil {
		if n, ok := h.flash.Pop(ctx); ok {
			data.Flash = &n
		}
	}
	return data
}

func (h *PageHandlers) productCards(products []services.Product, csrf string) []ProductCard {
	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		cards = append(cards, ProductCard{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Image:       p.Image,
			Placeholder: cartview.ImagePlaceholder,
			// SummaryHTML is rendered from markdown and sanitised when the catalog loads.
			SummaryHTML: template.HTML(p.SummaryHTML),
			Features:    p.Features,
			Price:       h.format.UnitPrice(p.Price),
			CSRFToken:   csrf,
		})
	}
	return cards
}
