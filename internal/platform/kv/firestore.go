package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/dmu-smartstyle/storefront/internal/platform/firestore"
)

const (
	firestoreValuesField    = "values"
	firestoreUpdatedAtField = "updatedAt"
)

// FirestoreStore keeps one document per namespace with every key stored as a field of the
// nested "values" map.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

// NewFirestoreStore binds the store to collection using the shared client provider.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	return &FirestoreStore{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, namespace, key string) (string, error) {
	if err := validate("get", namespace, key); err != nil {
		return "", err
	}
	doc, err := s.document(ctx, namespace)
	if err != nil {
		return "", s.wrap("get", namespace, key, err)
	}

	snap, err := doc.Get(ctx)
	if err != nil {
		return "", s.wrap("get", namespace, key, err)
	}

	values, _ := snap.Data()[firestoreValuesField].(map[string]any)
	raw, ok := values[key]
	if !ok {
		return "", notFoundError("get", namespace, key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", notFoundError("get", namespace, key)
	}
	return value, nil
}

// Set implements Store.
func (s *FirestoreStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := validate("set", namespace, key); err != nil {
		return err
	}
	doc, err := s.document(ctx, namespace)
	if err != nil {
		return s.wrap("set", namespace, key, err)
	}

	payload := map[string]any{
		firestoreValuesField:    map[string]any{key: value},
		firestoreUpdatedAtField: s.now(),
	}
	if _, err := doc.Set(ctx, payload, firestore.MergeAll); err != nil {
		return s.wrap("set", namespace, key, err)
	}
	return nil
}

// Delete implements Store. Missing documents and fields are ignored.
func (s *FirestoreStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validate("delete", namespace, key); err != nil {
		return err
	}
	doc, err := s.document(ctx, namespace)
	if err != nil {
		return s.wrap("delete", namespace, key, err)
	}

	_, err = doc.Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{firestoreValuesField, key}, Value: firestore.Delete},
		{Path: firestoreUpdatedAtField, Value: s.now()},
	})
	if err != nil {
		wrapped := s.wrap("delete", namespace, key, err)
		if IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

func (s *FirestoreStore) document(ctx context.Context, namespace string) (*firestore.DocumentRef, error) {
	if s.provider == nil {
		return nil, errors.New("firestore provider not configured")
	}
	if s.collection == "" {
		return nil, errors.New("firestore collection not configured")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(namespace), nil
}

func (s *FirestoreStore) wrap(op, namespace, key string, err error) error {
	wrapped := pfirestore.WrapError("kv.firestore."+op, err)
	if errors.Is(wrapped, context.Canceled) || errors.Is(wrapped, context.DeadlineExceeded) {
		return wrapped
	}

	var fsErr *pfirestore.Error
	if errors.As(wrapped, &fsErr) {
		switch {
		case fsErr.IsNotFound():
			return notFoundError(op, namespace, key)
		case fsErr.IsQuotaExceeded():
			return quotaError(op, namespace, key, wrapped)
		}
	}
	return unavailableError(op, namespace, key, wrapped)
}
