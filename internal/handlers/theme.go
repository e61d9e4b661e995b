package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

// EventThemeChanged tells the client to switch the body class.
const EventThemeChanged = "theme:changed"

// MessageThemeNotSaved is shown when the preference could not be stored.
const MessageThemeNotSaved = "Your theme preference could not be saved."

// ThemeHandlers flips the visitor's colour scheme.
type ThemeHandlers struct {
	theme services.ThemeService
	flash *notify.Flash
}

// NewThemeHandlers constructs the theme handlers.
func NewThemeHandlers(theme services.ThemeService, flash *notify.Flash) (*ThemeHandlers, error) {
	if theme == nil {
		return nil, errors.New("theme handlers: theme service is required")
	}
	return &ThemeHandlers{theme: theme, flash: flash}, nil
}

// Routes wires the theme routes onto the provided router.
func (h *ThemeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/theme/toggle", h.toggle)
}

func (h *ThemeHandlers) toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collector := notify.FromContext(ctx)

	status := http.StatusOK
	theme, err := h.theme.Toggle(ctx)
	if err != nil {
		collector.Notify(MessageThemeNotSaved, notify.KindError)
		status = failureStatus(err)
	} else {
		collector.Event(EventThemeChanged, map[string]string{"theme": string(theme)})
	}

	if isHTMX(r) {
		swapNothing(w, status)
		return
	}
	redirectWithFlash(w, r, h.flash, backTarget(r, "/"))
}
