package membership

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// TripWriter merges trip ids into the denormalized trip list of a user.
type TripWriter interface {
	AddTrips(ctx context.Context, userID string, tripIDs []string) error
}

// RepairQueueConfig controls the concurrency characteristics of the queue.
type RepairQueueConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

var (
	// ErrRepairQueueClosed is returned by Enqueue after Shutdown.
	ErrRepairQueueClosed = errors.New("repair queue closed")
	// ErrRepairQueueFull is returned by Enqueue when every slot is taken.
	ErrRepairQueueFull = errors.New("repair queue full")
)

type repairJob struct {
	userID  string
	tripIDs []string
}

// RepairQueue writes reconciled trip lists back to user records on a
// bounded pool of background workers. Callers never wait for the write.
type RepairQueue struct {
	writer  TripWriter
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan repairJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRepairQueue starts the worker pool.
func NewRepairQueue(writer TripWriter, cfg RepairQueueConfig, logger *slog.Logger) *RepairQueue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &RepairQueue{
		writer:  writer,
		logger:  logger,
		timeout: cfg.Timeout,
		jobs:    make(chan repairJob, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.worker()
	}

	return q
}

// Enqueue schedules a write-back without blocking.
func (q *RepairQueue) Enqueue(userID string, tripIDs []string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrRepairQueueClosed
	}

	job := repairJob{userID: userID, tripIDs: append([]string(nil), tripIDs...)}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrRepairQueueFull
	}
}

// Shutdown stops accepting work and waits for queued write-backs to finish.
// When ctx expires first, in-flight writes are cancelled.
func (q *RepairQueue) Shutdown(ctx context.Context) error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	case <-done:
		q.cancel()
		return nil
	}
}

func (q *RepairQueue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		q.handleJob(job)
	}
}

func (q *RepairQueue) handleJob(job repairJob) {
	if q.writer == nil {
		q.logger.Error("repair queue missing writer", "userId", job.userID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	if err := q.writer.AddTrips(ctx, job.userID, job.tripIDs); err != nil {
		q.logger.Warn("trip write-back failed", "userId", job.userID, "tripCount", len(job.tripIDs), "error", err)
		return
	}
	q.logger.Debug("trip write-back applied", "userId", job.userID, "tripCount", len(job.tripIDs))
}
