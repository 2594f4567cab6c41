package docstore

import (
	"context"
	"fmt"
	"sync"
)

type docSnapshot struct {
	doc    Document
	exists bool
}

type memorySub struct {
	collection string
	id         string
	filters    []Filter

	docs    *dispatcher[docSnapshot]
	queries *dispatcher[[]Document]
	last    []Document
}

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]map[string]map[string]any
	subs    map[int]*memorySub
	nextSub int
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]map[string]any),
		subs: make(map[int]*memorySub),
	}
}

// Get returns a copy of the stored document.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Document{}, ErrClosed
	}
	data, ok := s.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: cloneMap(data)}, nil
}

// Query returns the documents matching every filter, ordered by id.
func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(collection, filters)
}

func (s *MemoryStore) queryLocked(collection string, filters []Filter) ([]Document, error) {
	docs := []Document{}
	for id, data := range s.data[collection] {
		ok, err := matches(data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, Document{ID: id, Data: cloneMap(data)})
		}
	}
	sortByID(docs)
	return docs, nil
}

// SubscribeDocument streams snapshots of a single document, starting with its current state.
func (s *MemoryStore) SubscribeDocument(ctx context.Context, collection, id string, fn DocumentListener) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		collection: collection,
		id:         id,
		docs:       newDispatcher(func(snap docSnapshot) { fn(snap.doc, snap.exists) }),
	}
	sub.docs.push(s.documentSnapshotLocked(collection, id))
	return s.registerLocked(sub), nil
}

// SubscribeQuery streams the result set of a query, starting with its current state.
func (s *MemoryStore) SubscribeQuery(ctx context.Context, collection string, filters []Filter, fn QueryListener) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	docs, err := s.queryLocked(collection, filters)
	if err != nil {
		return nil, err
	}

	sub := &memorySub{
		collection: collection,
		filters:    append([]Filter(nil), filters...),
		queries:    newDispatcher(func(docs []Document) { fn(docs) }),
		last:       docs,
	}
	sub.queries.push(cloneDocuments(docs))
	return s.registerLocked(sub), nil
}

func (s *MemoryStore) registerLocked(sub *memorySub) Unsubscribe {
	key := s.nextSub
	s.nextSub++
	s.subs[key] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, key)
			s.mu.Unlock()
			sub.stop()
		})
	}
}

func (sub *memorySub) stop() {
	if sub.docs != nil {
		sub.docs.stop()
	}
	if sub.queries != nil {
		sub.queries.stop()
	}
}

// Set replaces or creates a document.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.Batch(ctx, []Mutation{SetMutation(collection, id, fields)})
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.Batch(ctx, []Mutation{UpdateMutation(collection, id, fields)})
}

// Batch applies all mutations atomically: either every mutation is applied or none is.
func (s *MemoryStore) Batch(ctx context.Context, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	type write struct {
		collection string
		id         string
		data       map[string]any
	}
	staged := make(map[string]write, len(mutations))
	order := make([]string, 0, len(mutations))

	current := func(collection, id string) (map[string]any, bool) {
		if w, ok := staged[collection+"/"+id]; ok {
			return w.data, true
		}
		data, ok := s.data[collection][id]
		return data, ok
	}

	for _, m := range mutations {
		if m.Collection == "" || m.ID == "" {
			return fmt.Errorf("mutation requires collection and id")
		}
		var (
			next map[string]any
			err  error
		)
		switch m.Kind {
		case MutationSet:
			next, err = normalizeFields(m.Fields)
		case MutationUpdate:
			existing, ok := current(m.Collection, m.ID)
			if !ok {
				return fmt.Errorf("update %s/%s: %w", m.Collection, m.ID, ErrNotFound)
			}
			next, err = applyUpdate(existing, m.Fields)
		default:
			return fmt.Errorf("unknown mutation kind %d", m.Kind)
		}
		if err != nil {
			return fmt.Errorf("mutate %s/%s: %w", m.Collection, m.ID, err)
		}

		key := m.Collection + "/" + m.ID
		if _, seen := staged[key]; !seen {
			order = append(order, key)
		}
		staged[key] = write{collection: m.Collection, id: m.ID, data: next}
	}

	touched := make(map[string]struct{})
	for _, key := range order {
		w := staged[key]
		if s.data[w.collection] == nil {
			s.data[w.collection] = make(map[string]map[string]any)
		}
		s.data[w.collection][w.id] = w.data
		touched[w.collection] = struct{}{}
	}

	for _, key := range order {
		w := staged[key]
		s.notifyDocumentLocked(w.collection, w.id)
	}
	for collection := range touched {
		s.notifyQueriesLocked(collection)
	}
	return nil
}

func (s *MemoryStore) notifyDocumentLocked(collection, id string) {
	for _, sub := range s.subs {
		if sub.docs == nil || sub.collection != collection || sub.id != id {
			continue
		}
		sub.docs.push(s.documentSnapshotLocked(collection, id))
	}
}

func (s *MemoryStore) notifyQueriesLocked(collection string) {
	for _, sub := range s.subs {
		if sub.queries == nil || sub.collection != collection {
			continue
		}
		docs, err := s.queryLocked(collection, sub.filters)
		if err != nil || sameDocuments(sub.last, docs) {
			continue
		}
		sub.last = docs
		sub.queries.push(cloneDocuments(docs))
	}
}

func (s *MemoryStore) documentSnapshotLocked(collection, id string) docSnapshot {
	data, ok := s.data[collection][id]
	if !ok {
		return docSnapshot{doc: Document{ID: id}}
	}
	return docSnapshot{doc: Document{ID: id, Data: cloneMap(data)}, exists: true}
}

// Close detaches every subscription and rejects further calls.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[int]*memorySub)
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func cloneDocuments(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Data: cloneMap(d.Data)}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
