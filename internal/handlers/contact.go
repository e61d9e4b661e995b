package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/observability"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

// Notification texts for the contact form.
const (
	MessageContactSent    = "Thank you! We'll get back to you within 48 hours."
	MessageContactInvalid = "Please fill in all required fields"
)

const fragmentContactForm = "contact_form"

var contactFields = []string{"name", "email", "company", "subject", "message"}

// ContactHandlers validates contact form posts.
type ContactHandlers struct {
	contact  services.ContactService
	renderer Renderer
	pages    *PageHandlers
	flash    *notify.Flash
}

// NewContactHandlers constructs the contact handlers. pages renders the full contact page
// for posts made without htmx.
func NewContactHandlers(contact services.ContactService, renderer Renderer, pages *PageHandlers, flash *notify.Flash) (*ContactHandlers, error) {
	switch {
	case contact == nil:
		return nil, errors.New("contact handlers: contact service is required")
	case renderer == nil:
		return nil, errors.New("contact handlers: renderer is required")
	}
	return &ContactHandlers{contact: contact, renderer: renderer, pages: pages, flash: flash}, nil
}

// Routes wires the contact routes onto the provided router.
func (h *ContactHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/contact", h.submit)
}

func (h *ContactHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collector := notify.FromContext(ctx)

	form := ContactForm{Values: map[string]string{}, Errors: map[string]string{}}
	if s, ok := session.FromContext(ctx); ok {
		form.CSRFToken = s.CSRFToken
	}

	if err := parseForm(w, r); err != nil {
		collector.Notify(MessageInvalidRequest, notify.KindError)
		swapNothing(w, http.StatusBadRequest)
		return
	}
	for _, field := range contactFields {
		form.Values[field] = strings.TrimSpace(r.PostForm.Get(field))
	}

	result, err := h.contact.Submit(ctx, services.ContactCommand{
		Name:    form.Values["name"],
		Email:   form.Values["email"],
		Company: form.Values["company"],
		Subject: form.Values["subject"],
		Message: form.Values["message"],
	})
	if err != nil {
		observability.FromContext(ctx).Error("submit contact form", zap.Error(err))
		collector.Notify(MessageInvalidRequest, notify.KindError)
		swapNothing(w, http.StatusInternalServerError)
		return
	}

	if !result.Valid {
		collector.Notify(MessageContactInvalid, notify.KindError)
		form.Errors = result.FieldErrors
		if isHTMX(r) {
			// htmx only swaps 2xx responses.
			renderFragment(ctx, w, h.renderer, http.StatusOK, fragmentContactForm, form)
			return
		}
		h.renderPage(w, r, http.StatusUnprocessableEntity, form)
		return
	}

	collector.Notify(MessageContactSent, notify.KindSuccess)
	if isHTMX(r) {
		renderFragment(ctx, w, h.renderer, http.StatusOK, fragmentContactForm, ContactForm{CSRFToken: form.CSRFToken})
		return
	}
	redirectWithFlash(w, r, h.flash, "/contact")
}

func (h *ContactHandlers) renderPage(w http.ResponseWriter, r *http.Request, status int, form ContactForm) {
	if h.pages == nil {
		renderFragment(r.Context(), w, h.renderer, status, fragmentContactForm, form)
		return
	}
	data := h.pages.basePage(r, "Contact")
	data.Contact = form
	if notes := notify.FromContext(r.Context()).Notifications(); len(notes) > 0 {
		n := notes[len(notes)-1]
		data.Flash = &n
	}
	renderPage(r.Context(), w, h.pages.renderer, status, "contact", data)
}
