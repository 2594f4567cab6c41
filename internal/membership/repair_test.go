package membership

import (
	"context"
	"errors"
	"testing"
	"time"
)

type blockingWriter struct {
	started chan string
	release chan struct{}
}

func (w *blockingWriter) AddTrips(ctx context.Context, userID string, _ []string) error {
	w.started <- userID
	select {
	case <-w.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRepairQueueRejectsWhenFull(t *testing.T) {
	writer := &blockingWriter{started: make(chan string, 4), release: make(chan struct{})}
	queue := NewRepairQueue(writer, RepairQueueConfig{QueueSize: 1, Workers: 1}, nil)

	if err := queue.Enqueue("u1", []string{"t1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-writer.started:
	case <-time.After(time.Second):
		t.Fatal("expected worker to pick up the first job")
	}
	if err := queue.Enqueue("u2", []string{"t2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Enqueue("u3", []string{"t3"}); !errors.Is(err, ErrRepairQueueFull) {
		t.Fatalf("expected queue full got %v", err)
	}

	close(writer.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := queue.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case id := <-writer.started:
		if id != "u2" {
			t.Fatalf("expected queued job to drain got %s", id)
		}
	default:
		t.Fatal("expected queued job to run before shutdown returned")
	}

	if err := queue.Enqueue("u4", nil); !errors.Is(err, ErrRepairQueueClosed) {
		t.Fatalf("expected closed got %v", err)
	}
	if err := queue.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRepairQueueShutdownTimeoutCancelsWrites(t *testing.T) {
	writer := &blockingWriter{started: make(chan string, 1), release: make(chan struct{})}
	queue := NewRepairQueue(writer, RepairQueueConfig{QueueSize: 1, Workers: 1, Timeout: time.Minute}, nil)

	if err := queue.Enqueue("u1", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-writer.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := queue.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded got %v", err)
	}

	done := make(chan struct{})
	go func() {
		queue.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected in-flight write to be cancelled")
	}
}

func TestRepairQueueLogsWriterFailure(t *testing.T) {
	writer := &recordingWriter{err: errors.New("write refused")}
	queue := NewRepairQueue(writer, RepairQueueConfig{}, nil)

	if err := queue.Enqueue("u1", []string{"t1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := queue.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if calls := writer.snapshot(); len(calls) != 1 {
		t.Fatalf("expected one attempt got %d", len(calls))
	}
}
