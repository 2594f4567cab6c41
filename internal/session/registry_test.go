package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegistryStartsOneLoaderPerUser(t *testing.T) {
	h := newHarness(t)
	var built int
	var mu sync.Mutex
	registry := NewRegistry(func() *Loader {
		mu.Lock()
		built++
		mu.Unlock()
		return NewLoader(h.deps)
	}, nil)
	defer registry.Close()

	var wg sync.WaitGroup
	loaders := make([]*Loader, 8)
	for i := range loaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loader, err := registry.Get(context.Background(), "alice")
			if err == nil {
				loaders[i] = loader
			}
		}()
	}
	wg.Wait()

	for _, loader := range loaders {
		if loader == nil || loader != loaders[0] {
			t.Fatal("expected every caller to share one loader")
		}
	}
	if built != 1 {
		t.Fatalf("expected one loader built got %d", built)
	}

	if _, ok := registry.Lookup("alice"); !ok {
		t.Fatal("expected running session")
	}
	if !registry.Stop("alice") {
		t.Fatal("expected session to be stopped")
	}
	if registry.Stop("alice") {
		t.Fatal("expected second stop to report no session")
	}
	if _, err := loaders[0].View(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stopped loader got %v", err)
	}
}

func TestRegistryDoesNotCacheFailedStart(t *testing.T) {
	h := newHarness(t)
	failing := h.deps
	failing.Invites = failingInvites{InviteStore: h.deps.Invites, listErr: errors.New("offline")}

	fail := true
	registry := NewRegistry(func() *Loader {
		if fail {
			return NewLoader(failing)
		}
		return NewLoader(h.deps)
	}, nil)
	defer registry.Close()

	var bootErr *BootstrapError
	if _, err := registry.Get(context.Background(), "alice"); !errors.As(err, &bootErr) {
		t.Fatalf("expected bootstrap error got %v", err)
	}
	if _, ok := registry.Lookup("alice"); ok {
		t.Fatal("expected failed session to be forgotten")
	}

	fail = false
	if _, err := registry.Get(context.Background(), "alice"); err != nil {
		t.Fatalf("expected retry to succeed got %v", err)
	}
}

func TestRegistryClose(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry(func() *Loader { return NewLoader(h.deps) }, nil)

	loader, err := registry.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	registry.Close()

	if _, err := loader.View(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected stopped got %v", err)
	}
	if _, err := registry.Get(context.Background(), "alice"); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("expected closed registry got %v", err)
	}
}
