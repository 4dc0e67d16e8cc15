package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no capacity
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Submit after Stop was called
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// WorkerPool runs jobs on a fixed number of goroutines
type WorkerPool struct {
	workers    int
	jobs       chan Job
	executorFn ExecutorFunc
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, jobQueueSize int, fn ExecutorFunc) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:    workers,
		jobs:       make(chan Job, jobQueueSize),
		executorFn: fn,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	slog.Info("Starting worker pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting jobs, drains the queue and waits for the workers.
// When ctx expires first, running jobs are cancelled.
func (wp *WorkerPool) Stop(ctx context.Context) {
	slog.Info("Stopping worker pool", "queued", len(wp.jobs))

	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Timeout waiting for workers, cancelling running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()

	slog.Info("Worker pool stopped")
}

// Submit queues a job without blocking
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobs <- job:
		slog.Debug("Job submitted to worker pool",
			"job_id", job.ID,
			"shop_id", job.ShopID,
			"correlation_id", job.CorrelationID,
		)
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueLength returns the current number of queued jobs
func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobs)
}

// worker is the worker goroutine that processes jobs
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for job := range wp.jobs {
		slog.Debug("Worker processing job",
			"worker_id", id,
			"job_id", job.ID,
			"correlation_id", job.CorrelationID,
		)

		if err := wp.run(job); err != nil {
			slog.Warn("Job failed",
				"worker_id", id,
				"job_id", job.ID,
				"shop_id", job.ShopID,
				"correlation_id", job.CorrelationID,
				"error", err,
			)
		}
	}

	slog.Debug("Worker stopped", "worker_id", id)
}

// run shields the worker from a panicking executor
func (wp *WorkerPool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job panicked", "job_id", job.ID, "panic", r)
			err = errors.New("job panicked")
		}
	}()
	return wp.executorFn(wp.ctx, job)
}
