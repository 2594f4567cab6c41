package docstore

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// exerciseStore runs the behaviour every backend must share. Collection
// names are randomised so runs against shared servers do not collide.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	trips := "trips_" + uuid.NewString()[:8]

	mustSet(t, store, trips, "t1", map[string]any{"createdBy": "bob", "members": []string{"alice"}})
	mustSet(t, store, trips, "t2", map[string]any{"createdBy": "alice", "members": []string{}})

	if _, err := store.Get(ctx, trips, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	docs, err := store.Query(ctx, trips, Where("members", OpArrayContains, "alice"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ids := documentIDs(docs); !reflect.DeepEqual(ids, []string{"t1"}) {
		t.Fatalf("unexpected ids: %v", ids)
	}

	results := make(chan []string, 8)
	unsubscribe, err := store.SubscribeQuery(ctx, trips, []Filter{Where("createdBy", OpEqual, "alice")}, func(docs []Document) {
		results <- documentIDs(docs)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()
	expectIDs(t, results, []string{"t2"})

	if err := store.Batch(ctx, []Mutation{
		SetMutation(trips, "t3", map[string]any{"createdBy": "alice"}),
		UpdateMutation(trips, "t1", map[string]any{"members": ArrayUnion("alice", "dave")}),
	}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ids := <-results:
			if reflect.DeepEqual(ids, []string{"t2", "t3"}) {
				doc, err := store.Get(ctx, trips, "t1")
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if got := doc.Data["members"]; !reflect.DeepEqual(got, []any{"alice", "dave"}) {
					t.Fatalf("unexpected members: %v", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for query snapshot")
		}
	}
}

func TestMemoryStoreConformance(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestMongoStoreConformance(t *testing.T) {
	uri := os.Getenv("GROUPIFY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GROUPIFY_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := NewMongoStore(client, "groupify_test", nil)
	defer store.Close()

	exerciseStore(t, store)
}

func TestFirestoreStoreConformance(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), "groupify-test")
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}
	store := NewFirestoreStore(client, nil)
	defer store.Close()

	exerciseStore(t, store)
}
