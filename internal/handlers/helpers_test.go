package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/dmu-smartstyle/storefront/internal/cartview"
	"github.com/dmu-smartstyle/storefront/internal/catalog"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/config"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
	"github.com/dmu-smartstyle/storefront/internal/templates"
)

const (
	mirrorID   = "smartstyle-mirror"
	wardrobeID = "smartstyle-wardrobe"
)

type testApp struct {
	handler http.Handler
	carts   services.CartStore
	cookie  *http.Cookie
	csrf    string
	visitor session.Session
}

func newTestApp(t *testing.T, opts ...kv.MemoryOption) *testApp {
	t.Helper()

	memory := kv.NewMemoryStore(opts...)
	scoped := kv.NewScopedStore(memory, session.ID)

	products, err := catalog.Default()
	require.NoError(t, err)
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{Source: products})
	require.NoError(t, err)
	carts, err := services.NewCartStore(services.CartStoreDeps{Substrate: scoped, Badge: notify.BadgeObserver})
	require.NoError(t, err)
	theme, err := services.NewThemeService(services.ThemeServiceDeps{Substrate: scoped})
	require.NoError(t, err)
	flash, err := notify.NewFlash(scoped)
	require.NoError(t, err)

	set, err := templates.Parse()
	require.NoError(t, err)
	view, err := cartview.New(carts, cartview.Options{Renderer: set})
	require.NoError(t, err)

	pages, err := NewPageHandlers(PageDeps{
		Renderer: set,
		Catalog:  catalogSvc,
		Theme:    theme,
		Carts:    carts,
		View:     view,
		Flash:    flash,
	})
	require.NoError(t, err)
	cart, err := NewCartHandlers(CartDeps{Carts: carts, Catalog: catalogSvc, View: view, Renderer: set, Flash: flash})
	require.NoError(t, err)
	themes, err := NewThemeHandlers(theme, flash)
	require.NoError(t, err)
	contact, err := NewContactHandlers(services.NewContactService(services.ContactServiceDeps{}), set, pages, flash)
	require.NoError(t, err)

	manager, err := session.NewManager(config.SessionConfig{
		CookieName: "DMU_SESSION",
		SigningKey: "test-signing-key",
		TTL:        time.Hour,
	})
	require.NoError(t, err)

	router := NewRouter(
		WithMiddlewares(httpx.HTMX, manager.Middleware, notify.Middleware(time.Second), session.CSRF(nil)),
		WithStaticAssets(templates.Assets()),
		WithPageRoutes(pages.Routes),
		WithCartRoutes(cart.Routes),
		WithCartAPIRoutes(NewCartAPIHandlers(carts, catalogSvc).Routes),
		WithAdditionalRoutes(themes.Routes),
		WithAdditionalRoutes(contact.Routes),
	)

	s := manager.New()
	cookie, err := manager.Cookie(s)
	require.NoError(t, err)

	return &testApp{handler: router, carts: carts, cookie: cookie, csrf: s.CSRFToken, visitor: s}
}

// form posts values as a url-encoded form. htmx marks the request as issued by htmx.
func (a *testApp) form(t *testing.T, path string, values url.Values, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(session.CSRFHeader, a.csrf)
	if htmx {
		req.Header.Set(httpx.HeaderRequest, "true")
	}
	return a.do(req)
}

func (a *testApp) get(t *testing.T, path string, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if htmx {
		req.Header.Set(httpx.HeaderRequest, "true")
	}
	return a.do(req)
}

func (a *testApp) api(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(session.CSRFHeader, a.csrf)
	return a.do(req)
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(a.cookie)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

// serve runs req without the visitor cookie.
func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func newRequestWithoutCookie(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(httpx.HeaderRequest, "true")
	return req
}

func (a *testApp) quantity(t *testing.T, id string) int {
	t.Helper()
	cart, err := a.carts.Snapshot(session.WithSession(context.Background(), a.visitor))
	require.NoError(t, err)
	item, ok := cart.Item(id)
	if !ok {
		return 0
	}
	return item.Quantity
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rr.Header().Get(notify.HeaderTrigger)
	require.NotEmpty(t, raw, "expected HX-Trigger header")
	var events map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &events))
	return events
}

func notification(t *testing.T, rr *httptest.ResponseRecorder) notify.Notification {
	t.Helper()
	events := triggers(t, rr)
	raw, ok := events[notify.EventNotify]
	require.True(t, ok, "expected notify event in %s", rr.Header().Get(notify.HeaderTrigger))
	var n notify.Notification
	require.NoError(t, json.Unmarshal(raw, &n))
	return n
}

func badge(t *testing.T, rr *httptest.ResponseRecorder) notify.Badge {
	t.Helper()
	raw, ok := triggers(t, rr)[notify.EventCartBadge]
	require.True(t, ok, "expected cart:badge event")
	var b notify.Badge
	require.NoError(t, json.Unmarshal(raw, &b))
	return b
}

func document(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rr.Body.String()))
	require.NoError(t, err)
	return doc
}
