// Package cartview renders the cart region and dispatches the interactions posted from it.
// The view keeps no state between requests: every render starts from a fresh snapshot.
package cartview

import (
	"context"
	"errors"
	"html/template"
	"io"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

// Fragment names rendered by the view.
const (
	FragmentRegion   = "cart_region"
	FragmentContents = "cart_contents"
)

// CheckoutModalID identifies the informational dialog opened instead of a checkout.
const CheckoutModalID = "checkout-disabled-modal"

// ImagePlaceholder replaces product images that fail to load.
const ImagePlaceholder = template.URL("data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' width='100' height='100'%3E%3Crect fill='%23f5f5f7' width='100' height='100'/%3E%3C/svg%3E")

var errStoreRequired = errors.New("cartview: cart store is required")

// Renderer executes named templates.
type Renderer interface {
	Fragment(w io.Writer, name string, data any) error
}

// Model is the template data for the cart region.
type Model struct {
	Empty       bool
	Items       []Item
	Summary     *Summary
	ItemCount   int
	ProductsURL string
	IntentURL   string
	CSRFToken   string
	Placeholder template.URL
}

// Item is one rendered line.
type Item struct {
	ID        string
	Name      string
	Image     string
	Price     string
	Quantity  int
	LineTotal string
}

// Summary is the rendered order summary.
type Summary struct {
	Subtotal string
	TaxLabel string
	Tax      string
	Total    string
}

// Options configures a View.
type Options struct {
	Renderer    Renderer
	Formatter   Formatter
	ProductsURL string
	IntentURL   string
}

// View derives the cart region from the store and applies posted intents to it.
type View struct {
	store       services.CartStore
	renderer    Renderer
	format      Formatter
	productsURL string
	intentURL   string
}

// New constructs a View over store.
func New(store services.CartStore, opts Options) (*View, error) {
	if store == nil {
		return nil, errStoreRequired
	}
	format := opts.Formatter
	if !format.Valid() {
		format = DefaultFormatter()
	}
	productsURL := opts.ProductsURL
	if productsURL == "" {
		productsURL = "/products"
	}
	intentURL := opts.IntentURL
	if intentURL == "" {
		intentURL = "/cart/intents"
	}
	return &View{
		store:       store,
		renderer:    opts.Renderer,
		format:      format,
		productsURL: productsURL,
		intentURL:   intentURL,
	}, nil
}

// Model snapshots the store and builds the template data.
func (v *View) Model(ctx context.Context) (Model, error) {
	cart, err := v.store.Snapshot(ctx)
	if err != nil {
		return Model{}, err
	}
	return v.build(ctx, cart), nil
}

// Render writes the cart contents fragment for the current snapshot.
func (v *View) Render(ctx context.Context, w io.Writer) error {
	model, err := v.Model(ctx)
	if err != nil {
		return err
	}
	return v.RenderModel(w, model)
}

// RenderModel writes the cart contents fragment for model.
func (v *View) RenderModel(w io.Writer, model Model) error {
	if v.renderer == nil {
		return errors.New("cartview: renderer is not configured")
	}
	return v.renderer.Fragment(w, FragmentContents, model)
}

func (v *View) build(ctx context.Context, cart domain.Cart) Model {
	model := Model{
		Empty:       cart.IsEmpty(),
		ItemCount:   cart.ItemCount(),
		ProductsURL: v.productsURL,
		IntentURL:   v.intentURL,
		Placeholder: ImagePlaceholder,
	}
	if s, ok := session.FromContext(ctx); ok {
		model.CSRFToken = s.CSRFToken
	}
	if model.Empty {
		return model
	}

	model.Items = make([]Item, 0, cart.Len())
	for _, line := range cart.Items {
		model.Items = append(model.Items, Item{
			ID:        line.ID,
			Name:      line.Name,
			Image:     line.ImageRef,
			Price:     v.format.UnitPrice(line.UnitPrice),
			Quantity:  line.Quantity,
			LineTotal: v.format.Money(domain.LineTotal(line)),
		})
	}

	summary := v.store.Summary(cart)
	model.Summary = &Summary{
		Subtotal: v.format.Money(summary.Subtotal),
		TaxLabel: "Estimated Tax (" + v.format.Rate(summary.TaxRateBasisPoints) + ")",
		Tax:      v.format.Money(summary.Tax),
		Total:    v.format.Money(summary.Total),
	}
	return model
}
