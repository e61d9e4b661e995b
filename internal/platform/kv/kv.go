// Package kv provides the per-visitor key-value substrate that cart, theme and other
// visitor state is persisted to. Each namespace behaves like one browser's local storage.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the key has never been written or was deleted.
	ErrNotFound = errors.New("kv: key not found")
	// ErrQuotaExceeded is returned when a write would exceed the namespace quota.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store persists string values grouped by namespace.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
}

// Error classifies substrate failures. Backends wrap their native errors with it so callers
// can branch on the category without knowing the backend.
type Error struct {
	Op        string
	Namespace string
	Key       string
	Err       error

	notFound    bool
	quota       bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("kv")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the key is absent.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsQuotaExceeded reports whether the write was rejected for size.
func (e *Error) IsQuotaExceeded() bool {
	return e != nil && e.quota
}

// IsUnavailable reports whether the backend could not serve the request.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

func notFoundError(op, namespace, key string) error {
	return &Error{Op: op, Namespace: namespace, Key: key, Err: ErrNotFound, notFound: true}
}

func quotaError(op, namespace, key string, err error) error {
	if err == nil {
		err = ErrQuotaExceeded
	}
	return &Error{Op: op, Namespace: namespace, Key: key, Err: err, quota: true}
}

func unavailableError(op, namespace, key string, err error) error {
	if err == nil {
		err = ErrUnavailable
	}
	return &Error{Op: op, Namespace: namespace, Key: key, Err: err, unavailable: true}
}

type classifier interface {
	IsNotFound() bool
	IsQuotaExceeded() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var cls classifier
	if errors.As(err, &cls) && cls.IsNotFound() {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded reports whether err means a write exceeded the available space.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	var cls classifier
	if errors.As(err, &cls) && cls.IsQuotaExceeded() {
		return true
	}
	return errors.Is(err, ErrQuotaExceeded)
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var cls classifier
	if errors.As(err, &cls) && cls.IsUnavailable() {
		return true
	}
	return errors.Is(err, ErrUnavailable)
}

// Bucket binds a Store to a single namespace.
type Bucket struct {
	store     Store
	namespace string
}

// NewBucket scopes store to namespace.
func NewBucket(store Store, namespace string) Bucket {
	return Bucket{store: store, namespace: strings.TrimSpace(namespace)}
}

// Namespace returns the namespace the bucket is bound to.
func (b Bucket) Namespace() string {
	return b.namespace
}

// Get reads key from the bound namespace.
func (b Bucket) Get(ctx context.Context, key string) (string, error) {
	if b.store == nil {
		return "", unavailableError("get", b.namespace, key, errors.New("kv: bucket has no store"))
	}
	return b.store.Get(ctx, b.namespace, key)
}

// Set writes key in the bound namespace.
func (b Bucket) Set(ctx context.Context, key, value string) error {
	if b.store == nil {
		return unavailableError("set", b.namespace, key, errors.New("kv: bucket has no store"))
	}
	return b.store.Set(ctx, b.namespace, key, value)
}

// Delete removes key from the bound namespace.
func (b Bucket) Delete(ctx context.Context, key string) error {
	if b.store == nil {
		return unavailableError("delete", b.namespace, key, errors.New("kv: bucket has no store"))
	}
	return b.store.Delete(ctx, b.namespace, key)
}

func validate(op, namespace, key string) error {
	if strings.TrimSpace(namespace) == "" {
		return &Error{Op: op, Key: key, Err: errors.New("namespace is required")}
	}
	if strings.TrimSpace(key) == "" {
		return &Error{Op: op, Namespace: namespace, Err: errors.New("key is required")}
	}
	return nil
}

// ErrNoNamespace is returned by ScopedStore when the context carries no namespace.
var ErrNoNamespace = errors.New("kv: no namespace in context")

// ScopedStore resolves the namespace from the context on every call, so one long-lived
// value can serve every visitor.
type ScopedStore struct {
	store     Store
	namespace func(context.Context) string
}

// NewScopedStore binds store to the namespace resolver.
func NewScopedStore(store Store, namespace func(context.Context) string) ScopedStore {
	return ScopedStore{store: store, namespace: namespace}
}

// Bucket returns the bucket for the namespace carried by ctx.
func (s ScopedStore) Bucket(ctx context.Context) (Bucket, error) {
	if s.namespace == nil {
		return Bucket{}, ErrNoNamespace
	}
	ns := strings.TrimSpace(s.namespace(ctx))
	if ns == "" {
		return Bucket{}, ErrNoNamespace
	}
	return NewBucket(s.store, ns), nil
}

// Get reads key from the namespace carried by ctx.
func (s ScopedStore) Get(ctx context.Context, key string) (string, error) {
	bucket, err := s.Bucket(ctx)
	if err != nil {
		return "", unavailableError("get", "", key, err)
	}
	return bucket.Get(ctx, key)
}

// Set writes key in the namespace carried by ctx.
func (s ScopedStore) Set(ctx context.Context, key, value string) error {
	bucket, err := s.Bucket(ctx)
	if err != nil {
		return unavailableError("set", "", key, err)
	}
	return bucket.Set(ctx, key, value)
}

// Delete removes key from the namespace carried by ctx.
func (s ScopedStore) Delete(ctx context.Context, key string) error {
	bucket, err := s.Bucket(ctx)
	if err != nil {
		return unavailableError("delete", "", key, err)
	}
	return bucket.Delete(ctx, key)
}
