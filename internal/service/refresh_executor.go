package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/worker"
	"github.com/google/uuid"
)

// ShopProcessor runs the pipeline for one shop
type ShopProcessor interface {
	RefreshShop(ctx context.Context, shop *model.Shop, correlationID string) (*ShopResult, error)
}

// ShopGetter loads a shop by ID
type ShopGetter interface {
	GetByID(ctx context.Context, id string) (*model.Shop, error)
}

// JobSubmitter queues work for the worker pool
type JobSubmitter interface {
	Submit(job worker.Job) error
}

// RefreshExecutor runs on-demand shop refreshes through the worker pool and
// tracks their progress in memory
type RefreshExecutor struct {
	processor ShopProcessor
	shops     ShopGetter
	jobs      *model.RefreshJobStore
	pool      JobSubmitter
}

// NewRefreshExecutor creates a new refresh executor. SetPool must be called
// before Submit.
func NewRefreshExecutor(processor ShopProcessor, shops ShopGetter) *RefreshExecutor {
	return &RefreshExecutor{
		processor: processor,
		shops:     shops,
		jobs:      model.NewRefreshJobStore(),
	}
}

// SetPool attaches the pool running Execute
func (e *RefreshExecutor) SetPool(pool JobSubmitter) {
	e.pool = pool
}

// Submit validates the shop and queues a refresh job
func (e *RefreshExecutor) Submit(ctx context.Context, shopID string) (model.RefreshJob, error) {
	shop, err := e.shops.GetByID(ctx, shopID)
	if err != nil {
		return model.RefreshJob{}, err
	}

	job := model.RefreshJob{
		JobID:         uuid.New().String(),
		ShopID:        shop.Key(),
		Status:        model.JobQueued,
		CorrelationID: uuid.New().String(),
	}
	e.jobs.Set(job)

	if err := e.pool.Submit(worker.Job{
		ID:            job.JobID,
		ShopID:        job.ShopID,
		CorrelationID: job.CorrelationID,
	}); err != nil {
		e.jobs.Update(job.JobID, func(j *model.RefreshJob) {
			j.Status = model.JobFailed
			j.Error = err.Error()
		})
		return model.RefreshJob{}, fmt.Errorf("failed to queue refresh: %w", err)
	}

	slog.Info("Refresh job queued",
		"job_id", job.JobID,
		"shop_id", job.ShopID,
		"correlation_id", job.CorrelationID,
	)

	queued, _ := e.jobs.Get(job.JobID)
	return queued, nil
}

// Job returns the status of a refresh job
func (e *RefreshExecutor) Job(jobID string) (model.RefreshJob, bool) {
	return e.jobs.Get(jobID)
}

// Prune drops finished jobs older than maxAge
func (e *RefreshExecutor) Prune(maxAge time.Duration) int {
	return e.jobs.Prune(time.Now().UTC().Add(-maxAge))
}

// Execute is the worker.ExecutorFunc for refresh jobs
func (e *RefreshExecutor) Execute(ctx context.Context, job worker.Job) error {
	e.jobs.Update(job.ID, func(j *model.RefreshJob) {
		j.Status = model.JobProcessing
	})

	start := time.Now()
	result, err := e.run(ctx, job)

	e.jobs.Update(job.ID, func(j *model.RefreshJob) {
		if err != nil {
			j.Status = model.JobFailed
			j.Error = err.Error()
			return
		}
		j.Status = model.JobCompleted
		j.Result = result.Status
	})

	slog.Info("Refresh job finished",
		"job_id", job.ID,
		"shop_id", job.ShopID,
		"correlation_id", job.CorrelationID,
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", err != nil,
	)
	return err
}

func (e *RefreshExecutor) run(ctx context.Context, job worker.Job) (*ShopResult, error) {
	shop, err := e.shops.GetByID(ctx, job.ShopID)
	if err != nil {
		return nil, err
	}
	result, err := e.processor.RefreshShop(ctx, shop, job.CorrelationID)
	if errors.Is(err, ErrLockConflict) {
		return nil, fmt.Errorf("refresh skipped: %w", err)
	}
	return result, err
}
