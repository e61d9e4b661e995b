package domain

// Product is a catalog entry the storefront lists and sells.
type Product struct {
	ID          string
	Name        string
	Price       float64
	Image       string
	Category    string
	Summary     string
	SummaryHTML string
	Features    []string
}

// Ref captures the product fields a cart line keeps at add time.
func (p Product) Ref() ProductRef {
	return ProductRef{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageRef:  p.Image,
	}
}
