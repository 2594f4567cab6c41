package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	cockroachOnce sync.Once
	cockroachErr  error
	cockroachSrv  testserver.TestServer
	testPool      *pgxpool.Pool
)

func TestMain(m *testing.M) {
	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if cockroachSrv != nil {
		cockroachSrv.Stop()
	}

	os.Exit(code)
}

// postgresPool lazily starts a CockroachDB test server shared by the
// PostgreSQL store tests, so the in-memory tests never pay for it.
func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping cockroach integration test in short mode")
	}

	cockroachOnce.Do(func() {
		server, err := testserver.NewTestServer()
		if err != nil {
			cockroachErr = fmt.Errorf("start cockroach test server: %w", err)
			return
		}
		cockroachSrv = server

		ctx := context.Background()
		pool, err := pgxpool.New(ctx, server.PGURL().String())
		if err != nil {
			cockroachErr = fmt.Errorf("connect to cockroach test server: %w", err)
			return
		}
		testPool = pool

		migration, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_create_documents.sql"))
		if err != nil {
			cockroachErr = fmt.Errorf("read migration: %w", err)
			return
		}
		if _, err := pool.Exec(ctx, string(migration)); err != nil {
			cockroachErr = fmt.Errorf("apply migration: %w", err)
		}
	})
	if cockroachErr != nil {
		t.Skipf("cockroach unavailable: %v", cockroachErr)
	}

	if _, err := testPool.Exec(context.Background(), `DELETE FROM documents WHERE true`); err != nil {
		t.Fatalf("reset documents: %v", err)
	}
	return testPool
}

func TestPostgresStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(postgresPool(t), nil, nil)

	mustSet(t, store, "trips", "t1", map[string]any{"createdBy": "bob", "members": []string{"alice", "bob"}, "name": "Lisbon"})
	mustSet(t, store, "trips", "t2", map[string]any{"createdBy": "alice", "members": []string{"carol"}})

	doc, err := store.Get(ctx, "trips", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["name"] != "Lisbon" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if _, err := store.Get(ctx, "trips", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	created, err := store.Query(ctx, "trips", Where("createdBy", OpEqual, "alice"))
	if err != nil {
		t.Fatalf("query created: %v", err)
	}
	if ids := documentIDs(created); !reflect.DeepEqual(ids, []string{"t2"}) {
		t.Fatalf("unexpected created ids: %v", ids)
	}

	member, err := store.Query(ctx, "trips", Where("members", OpArrayContains, "alice"))
	if err != nil {
		t.Fatalf("query members: %v", err)
	}
	if ids := documentIDs(member); !reflect.DeepEqual(ids, []string{"t1"}) {
		t.Fatalf("unexpected member ids: %v", ids)
	}

	if err := store.Update(ctx, "trips", "t1", map[string]any{"members": ArrayUnion("carol", "bob")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = store.Get(ctx, "trips", "t1")
	if got := doc.Data["members"]; !reflect.DeepEqual(got, []any{"alice", "bob", "carol"}) {
		t.Fatalf("unexpected members: %v", got)
	}

	if err := store.Update(ctx, "trips", "ghost", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestPostgresStoreBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(postgresPool(t), nil, nil)
	mustSet(t, store, "friendRequests", "r1", map[string]any{"status": "pending"})

	err := store.Batch(ctx, []Mutation{
		UpdateMutation("friendRequests", "r1", map[string]any{"status": "accepted"}),
		UpdateMutation("users", "ghost", map[string]any{"friends": ArrayUnion("x")}),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	doc, _ := store.Get(ctx, "friendRequests", "r1")
	if doc.Data["status"] != "pending" {
		t.Fatalf("expected rollback got %v", doc.Data["status"])
	}
}

func TestPostgresStoreSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(postgresPool(t), NewLocalBus(), nil)
	defer store.Close()

	results := make(chan []string, 8)
	unsubscribe, err := store.SubscribeQuery(ctx, "friendRequests", []Filter{
		Where("to", OpEqual, "u1"),
		Where("status", OpEqual, "pending"),
	}, func(docs []Document) {
		results <- documentIDs(docs)
	})
	if err != nil {
		t.Fatalf("subscribe query: %v", err)
	}
	defer unsubscribe()
	expectIDs(t, results, nil)

	exists := make(chan bool, 8)
	unsubscribeDoc, err := store.SubscribeDocument(ctx, "users", "u1", func(_ Document, ok bool) {
		exists <- ok
	})
	if err != nil {
		t.Fatalf("subscribe document: %v", err)
	}
	defer unsubscribeDoc()
	expectBool(t, exists, false)

	mustSet(t, store, "friendRequests", "r1", map[string]any{"to": "u1", "status": "pending"})
	expectIDs(t, results, []string{"r1"})

	mustSet(t, store, "users", "u1", map[string]any{"friends": []string{}})
	expectBool(t, exists, true)
}

func expectBool(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected %v got %v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}
