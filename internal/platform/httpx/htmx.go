package httpx

import (
	"net/http"

	"github.com/dmu-smartstyle/storefront/internal/platform/requestctx"
)

// htmx request and response headers.
const (
	HeaderRequest  = "HX-Request"
	HeaderTarget   = "HX-Target"
	HeaderReswap   = "HX-Reswap"
	HeaderRetarget = "HX-Retarget"
	HeaderRedirect = "HX-Redirect"
)

// HTMX marks requests issued by htmx on the context. Responses vary on HX-Request because
// the same URL can answer with a fragment or a full page.
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is := r.Header.Get(HeaderRequest) == "true"
		w.Header().Add("Vary", HeaderRequest)
		ctx := requestctx.WithHTMX(r.Context(), is)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NoStore disables caching of the response. Cart and theme state change per visitor.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// SkipSwap tells htmx to leave the page untouched. Used when a mutation failed and only
// the notification should be shown.
func SkipSwap(w http.ResponseWriter) {
	w.Header().Set(HeaderReswap, "none")
}
