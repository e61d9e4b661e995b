package notify

import (
	"context"
	"encoding/json"
	"errors"
)

// FlashStorageKey is the substrate key holding a notification carried across a redirect.
const FlashStorageKey = "flash"

// FlashSubstrate is the per-visitor storage a Flash writes to.
type FlashSubstrate interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Flash keeps the latest notification of a non-htmx form post until the next full page
// render shows it.
type Flash struct {
	store FlashSubstrate
}

// NewFlash constructs a Flash over store.
func NewFlash(store FlashSubstrate) (*Flash, error) {
	if store == nil {
		return nil, errors.New("notify: flash substrate is required")
	}
	return &Flash{store: store}, nil
}

// Keep stores the latest notification recorded on c, if any.
func (f *Flash) Keep(ctx context.Context, c *Collector) error {
	notes := c.Notifications()
	if len(notes) == 0 {
		return nil
	}
	payload, err := json.Marshal(notes[len(notes)-1])
	if err != nil {
		return err
	}
	return f.store.Set(ctx, FlashStorageKey, string(payload))
}

// Pop returns and deletes the stored notification. Missing or unreadable values report
// false.
func (f *Flash) Pop(ctx context.Context) (Notification, bool) {
	raw, err := f.store.Get(ctx, FlashStorageKey)
	if err != nil || raw == "" {
		return Notification{}, false
	}
	_ = f.store.Delete(ctx, FlashStorageKey)

	var n Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil || n.Message == "" {
		return Notification{}, false
	}
	return n, true
}
