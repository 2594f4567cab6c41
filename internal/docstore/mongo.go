package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Store backed by MongoDB. Documents use the store id as
// their _id. Live subscriptions use change streams, which require a replica
// set deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore wraps the named database of an existing client.
func NewMongoStore(client *mongo.Client, database string, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoStore{client: client, db: client.Database(database), logger: logger}
}

// Get loads a single document.
func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	if err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return mongoDocument(raw), nil
}

// Query returns documents matching every filter, ordered by id.
func (s *MongoStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	filter, err := mongoFilter(filters)
	if err != nil {
		return nil, err
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	docs := []Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		docs = append(docs, mongoDocument(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", collection, err)
	}
	return docs, nil
}

func mongoFilter(filters []Filter) (bson.D, error) {
	filter := bson.D{}
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.M{"$eq": f.Value}})
		case OpArrayContains:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.M{"$elemMatch": bson.M{"$eq": f.Value}}})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}
	}
	return filter, nil
}

// Set replaces or creates a document.
func (s *MongoStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.set(ctx, collection, id, fields)
}

func (s *MongoStore) set(ctx context.Context, collection, id string, fields map[string]any) error {
	doc := bson.M{}
	for k, v := range fields {
		doc[k] = v
	}
	doc["_id"] = id

	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.update(ctx, collection, id, fields)
}

func (s *MongoStore) update(ctx context.Context, collection, id string, fields map[string]any) error {
	set := bson.M{}
	addToSet := bson.M{}
	for k, v := range fields {
		if union, ok := v.(ArrayUnionValue); ok {
			addToSet[k] = bson.M{"$each": union.Values}
			continue
		}
		set[k] = v
	}

	change := bson.M{}
	if len(set) > 0 {
		change["$set"] = set
	}
	if len(addToSet) > 0 {
		change["$addToSet"] = addToSet
	}
	if len(change) == 0 {
		return nil
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, change)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Batch applies the mutations inside a multi-document transaction.
func (s *MongoStore) Batch(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, m := range mutations {
			var err error
			switch m.Kind {
			case MutationSet:
				err = s.set(sc, m.Collection, m.ID, m.Fields)
			case MutationUpdate:
				err = s.update(sc, m.Collection, m.ID, m.Fields)
			default:
				err = fmt.Errorf("unknown mutation kind %d", m.Kind)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

// SubscribeDocument watches the document through a change stream and delivers
// a fresh read after every change.
func (s *MongoStore) SubscribeDocument(ctx context.Context, collection, id string, fn DocumentListener) (Unsubscribe, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": id}}}}
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

	return s.watch(ctx, collection, pipeline, read, disp.stop)
}

// SubscribeQuery watches the collection through a change stream and re-runs
// the query after every change.
func (s *MongoStore) SubscribeQuery(ctx context.Context, collection string, filters []Filter, fn QueryListener) (Unsubscribe, error) {
	if _, err := mongoFilter(filters); err != nil {
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

	return s.watch(ctx, collection, mongo.Pipeline{}, read, disp.stop)
}

func (s *MongoStore) watch(ctx context.Context, collection string, pipeline mongo.Pipeline, read func(context.Context), stop func()) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := s.db.Collection(collection).Watch(subCtx, pipeline)
	if err != nil {
		cancel()
		stop()
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}

	go func() {
		defer stream.Close(context.Background())
		read(subCtx)
		for stream.Next(subCtx) {
			read(subCtx)
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			s.logger.Error("mongo change stream stopped", "collection", collection, "error", err)
		}
	}()

	return onceFunc(func() {
		cancel()
		stop()
	}), nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func mongoDocument(raw bson.M) Document {
	id := ""
	switch v := raw["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		id = v.Hex()
	}
	delete(raw, "_id")

	data, _ := fromBSON(raw).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return Document{ID: id, Data: data}
}

// fromBSON converts driver-specific container and scalar types into the
// plain JSON-like model shared by every backend.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromBSON(t[i])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromBSON(t[i])
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	default:
		return v
	}
}

var _ Store = (*MongoStore)(nil)
