// Package di assembles the storefront: the storage backend, services, views and the HTTP
// router built on top of them.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dmu-smartstyle/storefront/internal/cartview"
	"github.com/dmu-smartstyle/storefront/internal/catalog"
	"github.com/dmu-smartstyle/storefront/internal/handlers"
	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/config"
	pfirestore "github.com/dmu-smartstyle/storefront/internal/platform/firestore"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
	"github.com/dmu-smartstyle/storefront/internal/platform/observability"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
	"github.com/dmu-smartstyle/storefront/internal/templates"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart    services.CartStore
	Catalog services.CatalogService
	Theme   services.ThemeService
	Contact services.ContactService
}

// Container wires storage, services and presentation for runtime use.
type Container struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     kv.Store
	Sessions  *session.Manager
	Services  Services
	Templates *templates.Set
	CartView  *cartview.View
	Flash     *notify.Flash
	Build     handlers.BuildInfo

	readiness map[string]handlers.ReadinessCheck
	closers   []func(context.Context) error
}

// Option customises NewContainer.
type Option func(*options)

type options struct {
	store          kv.Store
	meterProvider  metric.MeterProvider
	sessionOptions []session.Option
	build          handlers.BuildInfo
}

// WithStore bypasses backend selection and uses store for visitor state.
func WithStore(store kv.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithMeterProvider overrides the global meter provider used for cart metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = provider
	}
}

// WithSessionOptions forwards options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) {
		o.sessionOptions = append(o.sessionOptions, opts...)
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(info handlers.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		Build:     o.build,
		readiness: make(map[string]handlers.ReadinessCheck),
	}

	store := o.store
	if store == nil {
		var err error
		store, err = c.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	c.Store = store

	sessions, err := session.NewManager(cfg.Session, o.sessionOptions...)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	c.Sessions = sessions

	if err := c.buildServices(o.meterProvider); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	set, err := templates.Parse()
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c.Templates = set

	view, err := cartview.New(c.Services.Cart, cartview.Options{
		Renderer:  set,
		Formatter: c.formatter(),
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("build cart view: %w", err)
	}
	c.CartView = view

	return c, nil
}

// Close releases backend clients in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Scoped returns the store bound to the request's visitor session.
func (c *Container) Scoped() kv.ScopedStore {
	return kv.NewScopedStore(c.Store, session.ID)
}

func (c *Container) openStore(ctx context.Context) (kv.Store, error) {
	cfg := c.Config
	switch cfg.Storage.Backend {
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("initialise firestore client: %w", err)
		}
		c.closers = append(c.closers, provider.Close)
		c.readiness["firestore"] = provider.Ping
		return kv.NewFirestoreStore(provider, cfg.Firestore.Collection), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := kv.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		c.readiness["redis"] = store.Ping
		return store, nil

	case config.BackendMemory, "":
		return kv.NewMemoryStore(kv.WithQuota(cfg.Storage.QuotaBytes)), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (c *Container) buildServices(provider metric.MeterProvider) error {
	logEvent := observability.ServiceLogger(c.Logger.Named("services"))
	scoped := c.Scoped()

	products, err := c.loadCatalog()
	if err != nil {
		return err
	}
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{Source: products})
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}

	metrics, err := observability.NewCartMetrics(provider)
	if err != nil {
		return fmt.Errorf("build cart metrics: %w", err)
	}
	cartStore, err := services.NewCartStore(services.CartStoreDeps{
		Substrate:  scoped,
		TaxRateBPS: c.Config.Cart.TaxRateBPS,
		Badge:      notify.BadgeObserver,
		Metrics:    metrics,
		Logger:     logEvent,
	})
	if err != nil {
		return fmt.Errorf("build cart store: %w", err)
	}

	themeSvc, err := services.NewThemeService(services.ThemeServiceDeps{
		Substrate: scoped,
		Logger:    logEvent,
	})
	if err != nil {
		return fmt.Errorf("build theme service: %w", err)
	}

	flash, err := notify.NewFlash(scoped)
	if err != nil {
		return fmt.Errorf("build flash: %w", err)
	}
	c.Flash = flash

	c.Services = Services{
		Cart:    cartStore,
		Catalog: catalogSvc,
		Theme:   themeSvc,
		Contact: services.NewContactService(services.ContactServiceDeps{Logger: logEvent}),
	}
	return nil
}

func (c *Container) loadCatalog() (*catalog.Catalog, error) {
	if path := c.Config.Catalog.File; path != "" {
		products, err := catalog.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}
		return products, nil
	}
	products, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load default catalog: %w", err)
	}
	return products, nil
}

func (c *Container) formatter() cartview.Formatter {
	cart := c.Config.Cart
	return cartview.NewFormatter(cart.Locale, cart.CurrencySymbol, cart.PriceSuffix)
}

// Handler builds the HTTP handler with the full middleware chain. projectID enables Cloud
// Logging trace correlation and may be empty.
func (c *Container) Handler(projectID string) (http.Handler, error) {
	dismiss := c.Config.Notify.DismissAfter
	httpLogger := c.Logger.Named("http")

	pages, err := handlers.NewPageHandlers(handlers.PageDeps{
		Renderer:     c.Templates,
		Catalog:      c.Services.Catalog,
		Theme:        c.Services.Theme,
		Carts:        c.Services.Cart,
		View:         c.CartView,
		Flash:        c.Flash,
		Formatter:    c.formatter(),
		DismissAfter: dismiss,
	})
	if err != nil {
		return nil, err
	}
	cart, err := handlers.NewCartHandlers(handlers.CartDeps{
		Carts:    c.Services.Cart,
		Catalog:  c.Services.Catalog,
		View:     c.CartView,
		Renderer: c.Templates,
		Flash:    c.Flash,
	})
	if err != nil {
		return nil, err
	}
	theme, err := handlers.NewThemeHandlers(c.Services.Theme, c.Flash)
	if err != nil {
		return nil, err
	}
	contact, err := handlers.NewContactHandlers(c.Services.Contact, c.Templates, pages, c.Flash)
	if err != nil {
		return nil, err
	}
	cartAPI := handlers.NewCartAPIHandlers(c.Services.Cart, c.Services.Catalog)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(c.Build)}
	for name, check := range c.readiness {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck(name, check))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		httpx.HTMX,
		c.Sessions.Middleware,
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(projectID),
		notify.Middleware(dismiss),
		session.CSRF(nil),
	}

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithStaticAssets(templates.Assets()),
		handlers.WithPageRoutes(pages.Routes),
		handlers.WithCartRoutes(cart.Routes),
		handlers.WithCartAPIRoutes(cartAPI.Routes),
		handlers.WithAdditionalRoutes(theme.Routes),
		handlers.WithAdditionalRoutes(contact.Routes),
	), nil
}
