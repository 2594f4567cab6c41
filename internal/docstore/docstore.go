// Package docstore defines the document store collaborator consumed by the
// sync engine together with its backends: an in-memory store, a PostgreSQL
// JSONB store fanned out through a change bus, Firestore and MongoDB.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("document store closed")
	// ErrUnsupportedFilter indicates a filter operator the backend cannot evaluate.
	ErrUnsupportedFilter = errors.New("unsupported filter operator")
)

// Document is a single JSON-like record.
type Document struct {
	ID   string
	Data map[string]any
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Unsubscribe detaches a live subscription. Implementations are idempotent.
type Unsubscribe func()

// DocumentListener receives every snapshot of a single document. exists is
// false while the document is absent.
type DocumentListener func(doc Document, exists bool)

// QueryListener receives the complete result set of a live query.
type QueryListener func(docs []Document)

// Store is the document store contract. Listeners are invoked sequentially
// per subscription, in the order changes were observed, starting with the
// current state.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	SubscribeDocument(ctx context.Context, collection, id string, fn DocumentListener) (Unsubscribe, error)
	SubscribeQuery(ctx context.Context, collection string, filters []Filter, fn QueryListener) (Unsubscribe, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Batch(ctx context.Context, mutations []Mutation) error
	Close() error
}

// MutationKind distinguishes full writes from partial updates.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationUpdate
)

// Mutation is one write inside an atomic Batch.
type Mutation struct {
	Kind       MutationKind
	Collection string
	ID         string
	Fields     map[string]any
}

// SetMutation replaces (or creates) a document.
func SetMutation(collection, id string, fields map[string]any) Mutation {
	return Mutation{Kind: MutationSet, Collection: collection, ID: id, Fields: fields}
}

// UpdateMutation merges fields into an existing document.
func UpdateMutation(collection, id string, fields map[string]any) Mutation {
	return Mutation{Kind: MutationUpdate, Collection: collection, ID: id, Fields: fields}
}

// ArrayUnionValue is the field transform produced by ArrayUnion.
type ArrayUnionValue struct {
	Values []any
}

// ArrayUnion, used as an Update field value, appends the given values to the
// stored array, skipping values that are already present.
func ArrayUnion(values ...any) ArrayUnionValue {
	return ArrayUnionValue{Values: values}
}
