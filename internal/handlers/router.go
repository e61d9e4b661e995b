package handlers

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	apiPrefix   string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	static      fs.FS

	pages      RouteRegistrar
	cart       RouteRegistrar
	cartAPI    RouteRegistrar
	additional []RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 30 * time.Second
	staticPrefix      = "/static"
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
// Page and fragment routes hang off the root; the JSON cart API lives under /api/v1/cart.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		apiPrefix: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, cfg.apiPrefix) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	if cfg.static != nil {
		files := http.StripPrefix(staticPrefix+"/", http.FileServer(http.FS(cfg.static)))
		r.Handle(staticPrefix+"/*", files)
	}

	if cfg.pages != nil {
		cfg.pages(r)
	}
	if cfg.cart != nil {
		r.Group(func(group chi.Router) {
			group.Use(httpx.NoStore)
			cfg.cart(group)
		})
	}
	for _, reg := range cfg.additional {
		if reg != nil {
			reg(r)
		}
	}

	r.Route(cfg.apiPrefix, func(api chi.Router) {
		api.Route("/cart", func(group chi.Router) {
			group.Use(httpx.NoStore)
			if cfg.cartAPI != nil {
				cfg.cartAPI(group)
				return
			}
			registerNotImplemented(group, "cart")
		})
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithStaticAssets serves fsys under /static/.
func WithStaticAssets(fsys fs.FS) Option {
	return func(cfg *routerConfig) {
		cfg.static = fsys
	}
}

// WithPageRoutes configures the registrar responsible for full page routes.
func WithPageRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.pages = reg
	}
}

// WithCartRoutes configures the registrar responsible for the cart fragment and form routes.
// Responses in this group are never cached.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithCartAPIRoutes configures the registrar responsible for the JSON cart endpoints.
func WithCartAPIRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cartAPI = reg
	}
}

// WithAdditionalRoutes registers extra root level routes.
func WithAdditionalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.additional = append(cfg.additional, reg)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}
