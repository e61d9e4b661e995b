package services

import (
	"context"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart         = domain.Cart
	LineItem     = domain.LineItem
	ProductRef   = domain.ProductRef
	OrderSummary = domain.OrderSummary
	Money        = domain.Money
	Product      = domain.Product
	Theme        = domain.Theme
)

// Substrate is the key-value storage visitor state is persisted to. kv.Bucket and
// kv.ScopedStore both satisfy it.
type Substrate interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// CartStore owns the canonical cart and its persistence. Every read goes back to the
// substrate so two handlers for the same visitor never serve stale copies.
type CartStore interface {
	Load(ctx context.Context) (Cart, error)
	Add(ctx context.Context, product ProductRef, quantity int) (Cart, error)
	Remove(ctx context.Context, productID string) (Cart, error)
	SetQuantity(ctx context.Context, productID string, quantity int) (Cart, error)
	Snapshot(ctx context.Context) (Cart, error)
	Summary(cart Cart) OrderSummary
}

// CatalogService resolves product references for the add-to-cart flow and lists
// products for the storefront pages.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	Categories(ctx context.Context) []string
}

// ThemeService reads and flips the visitor's colour scheme preference.
type ThemeService interface {
	Current(ctx context.Context) Theme
	Toggle(ctx context.Context) (Theme, error)
}

// ContactService validates contact form submissions.
type ContactService interface {
	Submit(ctx context.Context, cmd ContactCommand) (ContactResult, error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category string
}

// ContactCommand carries a contact form submission.
type ContactCommand struct {
	Name    string
	Email   string
	Company string
	Subject string
	Message string
}

// ContactResult reports per-field validation messages. Valid is false whenever
// FieldErrors is non-empty.
type ContactResult struct {
	Valid       bool
	FieldErrors map[string]string
}
