// Package catalog loads the product catalog the storefront sells from a YAML document.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
)

//go:embed products.yaml
var defaultCatalog []byte

// ValidationError lists catalog entries that could not be accepted.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid entries [%s]", strings.Join(e.Problems, "; "))
}

type fileCatalog struct {
	Products []fileProduct `yaml:"products"`
}

type fileProduct struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Price    float64  `yaml:"price"`
	Image    string   `yaml:"image"`
	Summary  string   `yaml:"summary"`
	Features []string `yaml:"features"`
}

// Catalog is an immutable, ordered product list.
type Catalog struct {
	products   []domain.Product
	byID       map[string]int
	categories []string
}

// Load reads the catalog at path, or the embedded default catalog when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a YAML catalog document. Product summaries are rendered from
// markdown and sanitised.
func Parse(data []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Products) == 0 {
		return nil, errors.New("catalog: no products defined")
	}

	md := newMarkdown()
	policy := newSummaryPolicy()

	c := &Catalog{
		products: make([]domain.Product, 0, len(doc.Products)),
		byID:     make(map[string]int, len(doc.Products)),
	}
	var problems []string
	seenCategory := make(map[string]struct{})

	for i, entry := range doc.Products {
		id := strings.TrimSpace(entry.ID)
		name := strings.TrimSpace(entry.Name)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("products[%d]: id is required", i))
			continue
		case name == "":
			problems = append(problems, fmt.Sprintf("%s: name is required", id))
			continue
		case entry.Price < 0:
			problems = append(problems, fmt.Sprintf("%s: price must not be negative", id))
			continue
		}
		if _, dup := c.byID[id]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate id", id))
			continue
		}

		summaryHTML, err := renderSummary(md, policy, entry.Summary)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: summary: %v", id, err))
			continue
		}

		category := strings.TrimSpace(entry.Category)
		if category != "" {
			if _, ok := seenCategory[category]; !ok {
				seenCategory[category] = struct{}{}
				c.categories = append(c.categories, category)
			}
		}

		c.byID[id] = len(c.products)
		c.products = append(c.products, domain.Product{
			ID:          id,
			Name:        name,
			Price:       entry.Price,
			Image:       strings.TrimSpace(entry.Image),
			Category:    category,
			Summary:     strings.TrimSpace(entry.Summary),
			SummaryHTML: summaryHTML,
			Features:    trimAll(entry.Features),
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	sort.Strings(c.categories)
	return c, nil
}

// Products returns every product in catalog order.
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (domain.Product, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[idx], true
}

// Categories returns the distinct categories in alphabetical order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
}

func newSummaryPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

func renderSummary(md goldmark.Markdown, policy *bluemonday.Policy, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(policy.Sanitize(buf.String())), nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
