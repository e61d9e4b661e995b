package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dmu-smartstyle/storefront/internal/notify"
	"github.com/dmu-smartstyle/storefront/internal/platform/httpx"
	"github.com/dmu-smartstyle/storefront/internal/platform/kv"
	"github.com/dmu-smartstyle/storefront/internal/platform/observability"
	"github.com/dmu-smartstyle/storefront/internal/platform/requestctx"
	"github.com/dmu-smartstyle/storefront/internal/platform/session"
	"github.com/dmu-smartstyle/storefront/internal/services"
)

// Renderer executes the page and fragment templates.
type Renderer interface {
	Page(w io.Writer, name string, data any) error
	Fragment(w io.Writer, name string, data any) error
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

const maxFormBodySize = session.MaxFormBytes

func isHTMX(r *http.Request) bool {
	return requestctx.IsHTMX(r.Context()) || r.Header.Get(httpx.HeaderRequest) == "true"
}

// parseForm reads a url-encoded body no larger than maxFormBodySize.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxFormBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// failureStatus maps a storage or service failure to an HTTP status.
func failureStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCartInvalidInput):
		return http.StatusBadRequest
	case kv.IsQuotaExceeded(err):
		return http.StatusInsufficientStorage
	default:
		return http.StatusServiceUnavailable
	}
}

// renderFragment buffers a fragment so a template error never leaves a partial body.
func renderFragment(ctx context.Context, w http.ResponseWriter, renderer Renderer, status int, name string, data any) {
	var buf bytes.Buffer
	if err := renderer.Fragment(&buf, name, data); err != nil {
		observability.FromContext(ctx).Error("render fragment", zap.String("fragment", name), zap.Error(err))
		httpx.SkipSwap(w)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func renderPage(ctx context.Context, w http.ResponseWriter, renderer Renderer, status int, name string, data any) {
	var buf bytes.Buffer
	if err := renderer.Page(&buf, name, data); err != nil {
		observability.FromContext(ctx).Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// swapNothing answers an htmx request whose only effect is the events on the collector.
func swapNothing(w http.ResponseWriter, status int) {
	httpx.SkipSwap(w)
	if status == http.StatusOK {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

// redirectWithFlash finishes a plain form post: the latest notification is kept for the
// next page render and the browser is sent to target.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, flash *notify.Flash, target string) {
	ctx := r.Context()
	if flash != nil {
		if err := flash.Keep(ctx, notify.FromContext(ctx)); err != nil {
			observability.FromContext(ctx).Warn("keep flash", zap.Error(err))
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// backTarget returns the same-origin path of the Referer, or fallback.
func backTarget(r *http.Request, fallback string) string {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return fallback
	}
	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}
