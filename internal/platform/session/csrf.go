package session

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// CSRF field and header names.
const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "csrf_token"
)

// MaxFormBytes bounds a url-encoded body read while looking for the form token.
const MaxFormBytes = 64 << 10

// CSRF rejects unsafe requests whose token does not match the session token. The token may
// arrive in the X-CSRF-Token header (htmx, JSON clients) or the csrf_token form field.
// A form body larger than MaxFormBytes is answered with 413 before the token is checked.
// It must run after Middleware.
func CSRF(reject func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "invalid CSRF token", http.StatusForbidden)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			s, ok := FromContext(r.Context())
			if !ok || s.CSRFToken == "" {
				reject(w, r)
				return
			}
			token := r.Header.Get(CSRFHeader)
			if token == "" {
				if r.Body != nil {
					r.Body = http.MaxBytesReader(w, r.Body, MaxFormBytes)
				}
				if err := r.ParseForm(); err != nil {
					var maxErr *http.MaxBytesError
					if errors.As(err, &maxErr) {
						http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
						return
					}
					http.Error(w, "malformed form body", http.StatusBadRequest)
					return
				}
				token = r.PostForm.Get(CSRFFormField)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.CSRFToken)) != 1 {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
