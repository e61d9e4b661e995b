package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultEnvironment     = "local"
	defaultLogLevel        = "info"

	defaultStorageBackend      = BackendMemory
	defaultStorageQuotaBytes   = 5 * 1024 * 1024
	defaultFirestoreCollection = "storefront_sessions"
	defaultRedisAddr           = "localhost:6379"
	defaultRedisKeyPrefix      = "storefront:kv:"
	defaultRedisTTL            = 30 * 24 * time.Hour

	defaultSessionCookieName = "DMU_SESSION"
	defaultSessionTTL        = 30 * 24 * time.Hour
	defaultLocalSigningKey   = "storefront-local-session-key"

	defaultCartTaxRateBPS   = 2000
	defaultCartLocale       = "en-US"
	defaultCartCurrency     = "$"
	defaultCartPriceSuffix  = "/year"
	defaultNotifyDismissTTL = 3 * time.Second
)

// Storage backends understood by the kv substrate.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	Session     SessionConfig
	Cart        CartConfig
	Notify      NotifyConfig
	Catalog     CatalogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects the per-visitor key-value backend.
type StorageConfig struct {
	Backend    string
	QuotaBytes int
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// RedisConfig stores connection parameters for the redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// SessionConfig controls the visitor session cookie.
type SessionConfig struct {
	CookieName string
	SigningKey string
	TTL        time.Duration
	Secure     bool
}

// CartConfig holds pricing and presentation parameters for the cart.
type CartConfig struct {
	TaxRateBPS     int
	Locale         string
	CurrencySymbol string
	PriceSuffix    string
}

// NotifyConfig controls transient notifications.
type NotifyConfig struct {
	DismissAfter time.Duration
}

// CatalogConfig points at an optional catalog override file.
type CatalogConfig struct {
	File string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables. Precedence is dotenv < OS env < explicit env map.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	environment := strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment))

	cfg := Config{
		Environment: environment,
		LogLevel:    strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(stringWithDefault(lookup, "STOREFRONT_STORAGE_BACKEND", defaultStorageBackend)),
			QuotaBytes: intWithDefault(lookup, "STOREFRONT_STORAGE_QUOTA_BYTES", defaultStorageQuotaBytes),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "STOREFRONT_FIRESTORE_COLLECTION", defaultFirestoreCollection),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", defaultRedisAddr),
			Password:  stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "STOREFRONT_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
			TTL:       durationWithDefault(lookup, "STOREFRONT_REDIS_TTL", defaultRedisTTL),
		},
		Session: SessionConfig{
			CookieName: stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookieName),
			SigningKey: stringWithDefault(lookup, "STOREFRONT_SESSION_SIGNING_KEY", ""),
			TTL:        durationWithDefault(lookup, "STOREFRONT_SESSION_TTL", defaultSessionTTL),
			Secure:     boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE", environment != defaultEnvironment),
		},
		Cart: CartConfig{
			TaxRateBPS:     intWithDefault(lookup, "STOREFRONT_CART_TAX_RATE_BPS", defaultCartTaxRateBPS),
			Locale:         stringWithDefault(lookup, "STOREFRONT_CART_LOCALE", defaultCartLocale),
			CurrencySymbol: stringWithDefault(lookup, "STOREFRONT_CART_CURRENCY_SYMBOL", defaultCartCurrency),
			PriceSuffix:    stringWithDefault(lookup, "STOREFRONT_CART_PRICE_SUFFIX", defaultCartPriceSuffix),
		},
		Notify: NotifyConfig{
			DismissAfter: durationWithDefault(lookup, "STOREFRONT_NOTIFY_DISMISS_AFTER", defaultNotifyDismissTTL),
		},
		Catalog: CatalogConfig{
			File: stringWithDefault(lookup, "STOREFRONT_CATALOG_FILE", ""),
		},
	}

	// Local development runs with a fixed signing key so sessions survive restarts.
	if cfg.Session.SigningKey == "" && cfg.Environment == defaultEnvironment {
		cfg.Session.SigningKey = defaultLocalSigningKey
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsLocal reports whether the configuration targets a developer machine.
func (c Config) IsLocal() bool {
	return c.Environment == defaultEnvironment
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
		if cfg.Storage.QuotaBytes < 0 {
			missing = append(missing, "Storage.QuotaBytes")
		}
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			missing = append(missing, "Redis.Addr")
		}
		if cfg.Redis.TTL < 0 {
			missing = append(missing, "Redis.TTL")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}
	if strings.TrimSpace(cfg.Session.SigningKey) == "" {
		missing = append(missing, "Session.SigningKey")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		missing = append(missing, "Session.CookieName")
	}
	if cfg.Session.TTL <= 0 {
		missing = append(missing, "Session.TTL")
	}
	if cfg.Cart.TaxRateBPS < 0 || cfg.Cart.TaxRateBPS > 10000 {
		missing = append(missing, "Cart.TaxRateBPS")
	}
	if cfg.Notify.DismissAfter <= 0 {
		missing = append(missing, "Notify.DismissAfter")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
