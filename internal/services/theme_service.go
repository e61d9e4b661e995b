package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
)

// ThemeStorageKey is the substrate key holding the visitor's theme.
const ThemeStorageKey = "theme"

var errThemeSubstrateRequired = errors.New("theme service: substrate is required")

// ErrThemePersistence indicates the toggled theme could not be stored.
var ErrThemePersistence = errors.New("theme service: persistence failed")

// ThemeServiceDeps wires the substrate for theme preferences.
type ThemeServiceDeps struct {
	Substrate Substrate
	Logger    func(context.Context, string, map[string]any)
}

type themeService struct {
	substrate Substrate
	logger    func(context.Context, string, map[string]any)
}

// NewThemeService constructs a ThemeService.
func NewThemeService(deps ThemeServiceDeps) (ThemeService, error) {
	if deps.Substrate == nil {
		return nil, errThemeSubstrateRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &themeService{substrate: deps.Substrate, logger: logger}, nil
}

// Current returns the stored theme, defaulting to light when unset or unreadable.
func (s *themeService) Current(ctx context.Context) Theme {
	raw, err := s.substrate.Get(ctx, ThemeStorageKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.logger(ctx, "theme.load_failed", map[string]any{
				"level": "warn",
				"error": err.Error(),
			})
		}
		return domain.ThemeLight
	}
	return domain.ParseTheme(raw)
}

// Toggle flips the theme and persists the new value.
func (s *themeService) Toggle(ctx context.Context) (Theme, error) {
	next := s.Current(ctx).Toggle()
	if err := s.substrate.Set(ctx, ThemeStorageKey, string(next)); err != nil {
		s.logger(ctx, "theme.save_failed", map[string]any{
			"level": "error",
			"error": err.Error(),
		})
		return s.Current(ctx), fmt.Errorf("%w: %w", ErrThemePersistence, err)
	}
	s.logger(ctx, "theme.toggled", map[string]any{"theme": string(next)})
	return next, nil
}
