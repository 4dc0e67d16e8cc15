package service

import (
	"context"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshExecutor_RunsJobThroughPool(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	svc := NewShopService(f.shops, f.snapshots, f.statuses, &fakeNotifications{})

	executor := NewRefreshExecutor(f.monitor, svc)
	pool := worker.NewWorkerPool(1, 4, executor.Execute)
	executor.SetPool(pool)
	pool.Start()

	job, err := executor.Submit(context.Background(), shop.Key())
	require.NoError(t, err)
	assert.Equal(t, shop.Key(), job.ShopID)
	assert.NotEmpty(t, job.CorrelationID)

	require.Eventually(t, func() bool {
		j, ok := executor.Job(job.JobID)
		return ok && j.Status == model.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop(context.Background())

	done, _ := executor.Job(job.JobID)
	require.NotNil(t, done.Result)
	assert.Equal(t, model.LevelWarning, done.Result.Level)
}

func TestRefreshExecutor_LockConflictFailsJob(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.locker.held[LeaseKey(shop.Key())] = true
	svc := NewShopService(f.shops, f.snapshots, f.statuses, &fakeNotifications{})

	executor := NewRefreshExecutor(f.monitor, svc)
	err := executor.Execute(context.Background(), worker.Job{ID: "job-1", ShopID: shop.Key()})
	assert.ErrorIs(t, err, ErrLockConflict)
}

func TestRefreshExecutor_SubmitUnknownShop(t *testing.T) {
	f := newMonitorFixture()
	svc := NewShopService(f.shops, f.snapshots, f.statuses, &fakeNotifications{})
	executor := NewRefreshExecutor(f.monitor, svc)

	ghost := newShop("ghost")
	_, err := executor.Submit(context.Background(), ghost.Key())
	assert.Error(t, err)
}

type rejectingPool struct{}

func (rejectingPool) Submit(worker.Job) error { return worker.ErrQueueFull }

func TestRefreshExecutor_QueueFullMarksJobFailed(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	svc := NewShopService(f.shops, f.snapshots, f.statuses, &fakeNotifications{})
	executor := NewRefreshExecutor(f.monitor, svc)
	executor.SetPool(rejectingPool{})

	_, err := executor.Submit(context.Background(), shop.Key())
	assert.ErrorIs(t, err, worker.ErrQueueFull)
}
