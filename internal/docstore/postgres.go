package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/groupify/backend/internal/db"
)

// PostgresStore keeps documents as JSONB rows in a single `documents` table
// and drives live subscriptions through a ChangeBus.
type PostgresStore struct {
	pool   db.Pool
	bus    ChangeBus
	logger *slog.Logger
}

// NewPostgresStore constructs a store over the pool. A nil bus falls back to
// an in-process LocalBus, which only sees writes made through this store.
func NewPostgresStore(pool db.Pool, bus ChangeBus, logger *slog.Logger) *PostgresStore {
	if bus == nil {
		bus = NewLocalBus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, bus: bus, logger: logger}
}

// Get loads a single document.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var data map[string]any
	err = conn.QueryRow(ctx, `
        SELECT data
        FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("select document %s/%s: %w", collection, id, err)
	}
	if data == nil {
		data = map[string]any{}
	}

	return Document{ID: id, Data: data}, nil
}

// Query returns documents matching every filter, ordered by id.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			id   string
			data map[string]any
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		if data == nil {
			data = map[string]any{}
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", collection, err)
	}

	return docs, nil
}

func buildQuery(collection string, filters []Filter) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range filters {
		var operand any
		var op string
		switch f.Op {
		case OpEqual:
			operand, op = f.Value, "="
		case OpArrayContains:
			operand, op = []any{f.Value}, "@>"
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}

		raw, err := json.Marshal(operand)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(raw))
		fmt.Fprintf(&sb, ` AND data -> $%d::text %s $%d::text::jsonb`, len(args)-1, op, len(args))
	}

	sb.WriteString(` ORDER BY id`)
	return sb.String(), args, nil
}

// Set replaces or creates a document.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.Batch(ctx, []Mutation{SetMutation(collection, id, fields)})
}

// Update merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.Batch(ctx, []Mutation{UpdateMutation(collection, id, fields)})
}

// Batch applies every mutation inside one transaction and announces the
// touched collections once it commits.
func (s *PostgresStore) Batch(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	touched := make(map[string]struct{})
	for _, m := range mutations {
		if err := applyMutation(ctx, tx, m); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		touched[m.Collection] = struct{}{}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for collection := range touched {
		if err := s.bus.Publish(ctx, collection); err != nil {
			s.logger.Warn("publish document change", "collection", collection, "error", err)
		}
	}
	return nil
}

func applyMutation(ctx context.Context, tx pgx.Tx, m Mutation) error {
	if m.Collection == "" || m.ID == "" {
		return errors.New("mutation requires collection and id")
	}

	var (
		next map[string]any
		err  error
	)
	switch m.Kind {
	case MutationSet:
		next, err = normalizeFields(m.Fields)
	case MutationUpdate:
		var existing map[string]any
		scanErr := tx.QueryRow(ctx, `
            SELECT data
            FROM documents
            WHERE collection = $1 AND id = $2
            FOR UPDATE
        `, m.Collection, m.ID).Scan(&existing)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return fmt.Errorf("update %s/%s: %w", m.Collection, m.ID, ErrNotFound)
			}
			return fmt.Errorf("lock %s/%s: %w", m.Collection, m.ID, scanErr)
		}
		next, err = applyUpdate(existing, m.Fields)
	default:
		return fmt.Errorf("unknown mutation kind %d", m.Kind)
	}
	if err != nil {
		return fmt.Errorf("mutate %s/%s: %w", m.Collection, m.ID, err)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", m.Collection, m.ID, err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO documents (collection, id, data, updated_at)
        VALUES ($1, $2, $3::text::jsonb, now())
        ON CONFLICT (collection, id)
        DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
    `, m.Collection, m.ID, string(raw))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", m.Collection, m.ID, err)
	}
	return nil
}

// SubscribeDocument re-reads the document whenever its collection changes and
// delivers snapshots that differ from the previous one.
func (s *PostgresStore) SubscribeDocument(ctx context.Context, collection, id string, fn DocumentListener) (Unsubscribe, error) {
	disp := newDispatcher(func(snap docSnapshot) { fn(snap.doc, snap.exists) })

	var last *docSnapshot
	read := func(ctx context.Context) {
		doc, err := s.Get(ctx, collection, id)
		snap := docSnapshot{doc: doc, exists: err == nil}
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				if ctx.Err() == nil {
					s.logger.Warn("refresh document subscription", "collection", collection, "id", id, "error", err)
				}
				return
			}
			snap.doc = Document{ID: id}
		}
		if last != nil && last.exists == snap.exists && reflect.DeepEqual(last.doc.Data, snap.doc.Data) {
			return
		}
		last = &snap
		disp.push(snap)
	}

	return s.watch(ctx, collection, read, disp.stop)
}

// SubscribeQuery re-runs the query whenever its collection changes and
// delivers result sets that differ from the previous one.
func (s *PostgresStore) SubscribeQuery(ctx context.Context, collection string, filters []Filter, fn QueryListener) (Unsubscribe, error) {
	if _, _, err := buildQuery(collection, filters); err != nil {
		return nil, err
	}

	disp := newDispatcher(func(docs []Document) { fn(docs) })
	filters = append([]Filter(nil), filters...)

	var (
		last    []Document
		started bool
	)
	read := func(ctx context.Context) {
		docs, err := s.Query(ctx, collection, filters...)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("refresh query subscription", "collection", collection, "error", err)
			}
			return
		}
		if started && sameDocuments(last, docs) {
			return
		}
		started = true
		last = docs
		disp.push(cloneDocuments(docs))
	}

	return s.watch(ctx, collection, read, disp.stop)
}

// watch runs read once and then after every bus notification until unsubscribed.
func (s *PostgresStore) watch(ctx context.Context, collection string, read func(context.Context), stop func()) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)

	changes, cancelBus, err := s.bus.Subscribe(subCtx, collection)
	if err != nil {
		cancel()
		stop()
		return nil, fmt.Errorf("subscribe to %s: %w", collection, err)
	}

	go func() {
		read(subCtx)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-changes:
				read(subCtx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			cancelBus()
			stop()
		})
	}, nil
}

// Close releases the change bus. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return s.bus.Close()
}

var _ Store = (*PostgresStore)(nil)
