package cartview

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
	"github.com/dmu-smartstyle/storefront/internal/templates"
)

type fixture struct {
	store services.CartStore
	view  *View
	ctx   context.Context
	notes *notify.Collector
}

func newFixture(t *testing.T, opts ...kv.MemoryOption) fixture {
	t.Helper()
	memory := kv.NewMemoryStore(opts...)
	scoped := kv.NewScopedStore(memory, func(context.Context) string { return "visitor-1" })

	store, err := services.NewCartStore(services.CartStoreDeps{
		Substrate: scoped,
		Badge:     notify.BadgeObserver,
	})
	require.NoError(t, err)

	set, err := templates.Parse()
	require.NoError(t, err)

	view, err := New(store, Options{Renderer: set, Formatter: NewFormatter("en-US", "$", "/year")})
	require.NoError(t, err)

	notes := notify.NewCollector(0)
	ctx := notify.WithCollector(context.Background(), notes)
	ctx = session.WithSession(ctx, session.Session{ID: "01HZX3J9KQ6W8Y4T2M7N5P0RSV", CSRFToken: "token-123"})
	return fixture{store: store, view: view, ctx: ctx, notes: notes}
}

func (f fixture) render(t *testing.T) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.view.Render(f.ctx, &buf))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(buf.String()))
	require.NoError(t, err)
	return doc
}

func (f fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	cart, err := f.store.Snapshot(f.ctx)
	require.NoError(t, err)
	item, ok := cart.Item(id)
	require.True(t, ok, "item %s missing", id)
	return item.Quantity
}

func TestRenderEmptyCart(t *testing.T) {
	f := newFixture(t)
	doc := f.render(t)

	require.Equal(t, "Your cart is empty", strings.TrimSpace(doc.Find(".cart-empty p").Text()))
	link := doc.Find(".cart-empty a")
	require.Equal(t, "Explore Our Systems", strings.TrimSpace(link.Text()))
	href, _ := link.Attr("href")
	require.Equal(t, "/products", href)

	require.Equal(t, 0, doc.Find(".cart-item").Length())
	require.Equal(t, 0, doc.Find("[data-cart-summary]").Children().Length())
}

func TestRenderItemsAndSummary(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(f.ctx, domain.ProductRef{ID: "A", Name: "Alpha", UnitPrice: 10, ImageRef: "/static/a.jpg"}, 1)
	require.NoError(t, err)
	_, err = f.store.SetQuantity(f.ctx, "A", 5)
	require.NoError(t, err)

	doc := f.render(t)
	items := doc.Find(".cart-item")
	require.Equal(t, 1, items.Length())
	require.Equal(t, "Alpha", items.Find("h3").Text())
	require.Equal(t, "$10/year", items.Find(".cart-item-price").Text())

	input := items.Find("input.quantity-input")
	value, _ := input.Attr("value")
	require.Equal(t, "5", value)
	name, _ := input.Attr("name")
	require.Equal(t, "qty.A", name)
	minValue, _ := input.Attr("min")
	require.Equal(t, "1", minValue)

	img := items.Find("img")
	src, _ := img.Attr("src")
	require.Equal(t, "/static/a.jpg", src)
	fallback, _ := img.Attr("data-fallback-src")
	require.True(t, strings.HasPrefix(fallback, "data:image/svg+xml"), fallback)

	intents := map[string]bool{}
	items.Find("button[name=intent]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("value")
		intents[v] = true
	})
	require.True(t, intents["decrease:A"])
	require.True(t, intents["increase:A"])
	require.True(t, intents["remove:A"])

	summary := doc.Find("[data-cart-summary]")
	require.Equal(t, "Order Summary", summary.Find("h2").Text())
	require.Equal(t, "$50", summary.Find("[data-summary=subtotal]").Text())
	require.Equal(t, "$10", summary.Find("[data-summary=tax]").Text())
	require.Equal(t, "$60", summary.Find("[data-summary=total]").Text())
	require.Contains(t, summary.Text(), "Estimated Tax (20%)")
	require.Equal(t, 1, summary.Find("[data-checkout]").Length())
	require.Contains(t, summary.Find("a").Text(), "Continue Shopping")

	token, _ := doc.Find("input[name=csrf_token]").Attr("value")
	require.Equal(t, "token-123", token)
}

func TestRenderUsesThousandsSeparators(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(f.ctx, domain.ProductRef{ID: "mirror", Name: "Mirror", UnitPrice: 2499}, 2)
	require.NoError(t, err)

	model, err := f.view.Model(f.ctx)
	require.NoError(t, err)
	require.Equal(t, "$2,499/year", model.Items[0].Price)
	require.Equal(t, "$4,998", model.Summary.Subtotal)
	require.Equal(t, "$999.6", model.Summary.Tax)
	require.Equal(t, "$5,997.6", model.Summary.Total)
	require.Equal(t, 2, model.ItemCount)
}

func TestRenderRegionWrapsContents(t *testing.T) {
	f := newFixture(t)
	set, err := templates.Parse()
	require.NoError(t, err)
	model, err := f.view.Model(f.ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, set.Fragment(&buf, FragmentRegion, model))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)

	form := doc.Find("form#cart-region")
	require.Equal(t, 1, form.Length())
	post, _ := form.Attr("hx-post")
	require.Equal(t, "/cart/intents", post)
	swap, _ := form.Attr("hx-swap")
	require.Equal(t, "innerHTML", swap)
	require.Equal(t, 1, form.Find("[data-cart-items]").Length())
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestRenderWithoutRenderer(t *testing.T) {
	f := newFixture(t)
	view, err := New(f.store, Options{})
	require.NoError(t, err)
	require.Error(t, view.Render(f.ctx, &bytes.Buffer{}))
}
