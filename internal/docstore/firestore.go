package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Store backed by Cloud Firestore. Live subscriptions use
// Firestore's native snapshot listeners.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client, logger *slog.Logger) *FirestoreStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FirestoreStore{client: client, logger: logger}
}

// Get loads a single document.
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return firestoreDocument(snap), nil
}

// Query returns documents matching every filter, ordered by id.
func (s *FirestoreStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q, err := s.query(collection, filters)
	if err != nil {
		return nil, err
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, firestoreDocument(snap))
	}
	sortByID(docs)
	return docs, nil
}

func (s *FirestoreStore) query(collection string, filters []Filter) (firestore.Query, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		switch f.Op {
		case OpEqual, OpArrayContains:
			q = q.Where(f.Field, string(f.Op), f.Value)
		default:
			return firestore.Query{}, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}
	}
	return q, nil
}

// Set replaces or creates a document.
func (s *FirestoreStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, firestoreUpdates(fields))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Batch applies the mutations inside a Firestore transaction.
func (s *FirestoreStore) Batch(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, m := range mutations {
			ref := s.client.Collection(m.Collection).Doc(m.ID)
			var err error
			switch m.Kind {
			case MutationSet:
				err = tx.Set(ref, m.Fields)
			case MutationUpdate:
				err = tx.Update(ref, firestoreUpdates(m.Fields))
			default:
				err = fmt.Errorf("unknown mutation kind %d", m.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("batch: %w", ErrNotFound)
		}
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

func firestoreUpdates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for key, value := range fields {
		if union, ok := value.(ArrayUnionValue); ok {
			value = firestore.ArrayUnion(union.Values...)
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{key}, Value: value})
	}
	return updates
}

// SubscribeDocument attaches a Firestore document listener.
func (s *FirestoreStore) SubscribeDocument(ctx context.Context, collection, id string, fn DocumentListener) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Doc(id).Snapshots(subCtx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				s.logListenerExit(subCtx, collection, err)
				return
			}
			if !snap.Exists() {
				fn(Document{ID: id}, false)
				continue
			}
			fn(firestoreDocument(snap), true)
		}
	}()

	return onceFunc(cancel), nil
}

// SubscribeQuery attaches a Firestore query listener.
func (s *FirestoreStore) SubscribeQuery(ctx context.Context, collection string, filters []Filter, fn QueryListener) (Unsubscribe, error) {
	q, err := s.query(collection, filters)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(subCtx)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				s.logListenerExit(subCtx, collection, err)
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				s.logger.Warn("read query snapshot", "collection", collection, "error", err)
				continue
			}
			docs := make([]Document, 0, len(snaps))
			for _, snap := range snaps {
				docs = append(docs, firestoreDocument(snap))
			}
			sortByID(docs)
			fn(docs)
		}
	}()

	return onceFunc(cancel), nil
}

func (s *FirestoreStore) logListenerExit(ctx context.Context, collection string, err error) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error("firestore listener stopped", "collection", collection, "error", err)
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func firestoreDocument(snap *firestore.DocumentSnapshot) Document {
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	return Document{ID: snap.Ref.ID, Data: data}
}

func onceFunc(fn func()) Unsubscribe {
	var once sync.Once
	return func() { once.Do(fn) }
}

var _ Store = (*FirestoreStore)(nil)
