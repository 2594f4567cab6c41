package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestLocalBusCoalescesNotifications(t *testing.T) {
	ctx := context.Background()
	bus := NewLocalBus()

	changes, cancel, err := bus.Subscribe(ctx, "users")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := bus.Publish(ctx, "users"); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.Publish(ctx, "trips"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	expectPoke(t, changes)
	select {
	case <-changes:
		t.Fatal("expected notifications to be coalesced")
	default:
	}

	cancel()
	cancel()
	_ = bus.Publish(ctx, "users")
	select {
	case <-changes:
		t.Fatal("expected no notification after cancel")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRedisBusDeliversAcrossClients(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	subscriber, err := NewRedisBus(ctx, "redis://"+server.Addr(), nil)
	if err != nil {
		t.Fatalf("subscriber bus: %v", err)
	}
	defer subscriber.Close()

	publisher, err := NewRedisBus(ctx, "redis://"+server.Addr(), nil)
	if err != nil {
		t.Fatalf("publisher bus: %v", err)
	}
	defer publisher.Close()

	changes, cancel, err := subscriber.Subscribe(ctx, "friendRequests")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := publisher.Publish(ctx, "friendRequests"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectPoke(t, changes)
}

func TestNewRedisBusRejectsBadURL(t *testing.T) {
	if _, err := NewRedisBus(context.Background(), "://nope", nil); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestDispatcherPreservesOrder(t *testing.T) {
	got := make(chan int, 100)
	d := newDispatcher(func(v int) {
		time.Sleep(time.Millisecond)
		got <- v
	})
	defer d.stop()

	for i := 0; i < 10; i++ {
		d.push(i)
	}
	for i := 0; i < 10; i++ {
		select {
		case v := <-got:
			if v != i {
				t.Fatalf("expected %d got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d", i)
		}
	}
}

func expectPoke(t *testing.T, changes <-chan struct{}) {
	t.Helper()
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
}
