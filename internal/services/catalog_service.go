package services

import (
	"context"
	"errors"
	"strings"
)

// ErrProductNotFound indicates the requested product is not in the catalog.
var ErrProductNotFound = errors.New("catalog service: product not found")

var errCatalogSourceRequired = errors.New("catalog service: product source is required")

// ProductSource is the read side of a loaded catalog.
type ProductSource interface {
	Products() []Product
	Product(id string) (Product, bool)
	Categories() []string
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Source ProductSource
}

type catalogService struct {
	source ProductSource
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Source == nil {
		return nil, errCatalogSourceRequired
	}
	return &catalogService{source: deps.Source}, nil
}

func (s *catalogService) ListProducts(_ context.Context, filter ProductFilter) ([]Product, error) {
	products := s.source.Products()
	category := strings.TrimSpace(filter.Category)
	if category == "" {
		return products, nil
	}
	filtered := make([]Product, 0, len(products))
	for _, product := range products {
		if strings.EqualFold(product.Category, category) {
			filtered = append(filtered, product)
		}
	}
	return filtered, nil
}

func (s *catalogService) GetProduct(_ context.Context, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, ErrProductNotFound
	}
	product, ok := s.source.Product(id)
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (s *catalogService) Categories(context.Context) []string {
	return s.source.Categories()
}
