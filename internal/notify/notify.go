// Package notify collects the notification, modal and badge events raised while a request
// is handled and emits them as htmx client events.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Client event names carried in the HX-Trigger header.
const (
	EventNotify    = "notify"
	EventModalOpen = "modal:open"
	EventCartBadge = "cart:badge"
)

// HeaderTrigger is the htmx response header carrying client events.
const HeaderTrigger = "HX-Trigger"

// DefaultDismissAfter is how long a notification stays on screen.
const DefaultDismissAfter = 3 * time.Second

// Notification is a transient message shown to the visitor.
type Notification struct {
	Message        string `json:"message"`
	Kind           Kind   `json:"kind"`
	DismissAfterMS int64  `json:"dismissAfterMs"`
}

// Modal asks the client to open the dialog with the given element id.
type Modal struct {
	ID string `json:"id"`
}

// Badge carries the cart badge count. Visible is false when the count is zero.
type Badge struct {
	Count   int  `json:"count"`
	Visible bool `json:"visible"`
}

// Collector accumulates events for one response. The zero value is not usable; nil
// collectors ignore every call.
type Collector struct {
	mu            sync.Mutex
	dismissAfter  time.Duration
	notifications []Notification
	modal         *Modal
	badge         *Badge
	events        map[string]any
}

// NewCollector constructs a Collector. Non-positive dismissAfter uses DefaultDismissAfter.
func NewCollector(dismissAfter time.Duration) *Collector {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Collector{dismissAfter: dismissAfter}
}

// Notify records a notification. Kinds other than error are treated as success.
func (c *Collector) Notify(message string, kind Kind) {
	if c == nil || message == "" {
		return
	}
	if kind != KindError {
		kind = KindSuccess
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, Notification{
		Message:        message,
		Kind:           kind,
		DismissAfterMS: c.dismissAfter.Milliseconds(),
	})
}

// OpenModal records a request to open the modal with id.
func (c *Collector) OpenModal(id string) {
	if c == nil || id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modal = &Modal{ID: id}
}

// Badge records the latest badge count.
func (c *Collector) Badge(count int) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.badge = &Badge{Count: count, Visible: count > 0}
}

// Event records a custom client event. Later calls with the same name replace the detail.
func (c *Collector) Event(name string, detail any) {
	if c == nil || name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = make(map[string]any)
	}
	c.events[name] = detail
}

// Notifications returns the recorded notifications in order.
func (c *Collector) Notifications() []Notification {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// Modal returns the requested modal, if any.
func (c *Collector) Modal() (Modal, bool) {
	if c == nil {
		return Modal{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modal == nil {
		return Modal{}, false
	}
	return *c.modal, true
}

// BadgeCount returns the recorded badge, if any.
func (c *Collector) BadgeCount() (Badge, bool) {
	if c == nil {
		return Badge{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.badge == nil {
		return Badge{}, false
	}
	return *c.badge, true
}

// HasErrors reports whether any error notification was recorded.
func (c *Collector) HasErrors() bool {
	for _, n := range c.Notifications() {
		if n.Kind == KindError {
			return true
		}
	}
	return false
}

// TriggerJSON encodes the recorded events as an HX-Trigger payload. Only the latest
// notification is sent; an empty collector yields an empty string.
func (c *Collector) TriggerJSON() (string, error) {
	if c == nil {
		return "", nil
	}
	events := make(map[string]any, 3)
	c.mu.Lock()
	for name, detail := range c.events {
		events[name] = detail
	}
	c.mu.Unlock()

	notes := c.Notifications()
	if len(notes) > 0 {
		events[EventNotify] = notes[len(notes)-1]
	}
	if modal, ok := c.Modal(); ok {
		events[EventModalOpen] = modal
	}
	if badge, ok := c.BadgeCount(); ok {
		events[EventCartBadge] = badge
	}
	if len(events) == 0 {
		return "", nil
	}

	payload, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// WriteHeader sets HX-Trigger on h when events were recorded. It must run before the
// response status is written.
func (c *Collector) WriteHeader(h http.Header) error {
	payload, err := c.TriggerJSON()
	if err != nil || payload == "" {
		return err
	}
	h.Set(HeaderTrigger, payload)
	return nil
}

type collectorKey struct{}

// WithCollector attaches c to ctx.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the collector attached to ctx, or nil.
func FromContext(ctx context.Context) *Collector {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// BadgeObserver adapts the context collector to the cart store's badge callback.
func BadgeObserver(ctx context.Context, count int) {
	FromContext(ctx).Badge(count)
}

// Middleware attaches a fresh Collector to each request and writes its events as the
// HX-Trigger header just before the response headers are sent.
func Middleware(dismissAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := NewCollector(dismissAfter)
			tw := &triggerWriter{ResponseWriter: w, collector: c}
			next.ServeHTTP(tw, r.WithContext(WithCollector(r.Context(), c)))
			tw.flushHeader()
		})
	}
}

type triggerWriter struct {
	http.ResponseWriter
	collector *Collector
	written   bool
}

func (w *triggerWriter) flushHeader() {
	if w.written {
		return
	}
	w.written = true
	_ = w.collector.WriteHeader(w.Header())
}

func (w *triggerWriter) WriteHeader(status int) {
	w.flushHeader()
	w.ResponseWriter.WriteHeader(status)
}

func (w *triggerWriter) Write(b []byte) (int, error) {
	w.flushHeader()
	return w.ResponseWriter.Write(b)
}

func (w *triggerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
