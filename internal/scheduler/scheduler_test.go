package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCycle struct {
	runs atomic.Int32
}

func (c *countingCycle) RunCycle(context.Context) (service.CycleResult, error) {
	c.runs.Add(1)
	return service.CycleResult{}, nil
}

type fakeLeases struct {
	swept    atomic.Int32
	released atomic.Int32
}

func (f *fakeLeases) SweepExpired(context.Context) (int64, error) {
	f.swept.Add(1)
	return 0, nil
}

func (f *fakeLeases) ReleaseOwned(context.Context) (int64, error) {
	f.released.Add(1)
	return 2, nil
}

func (f *fakeLeases) Owner() string { return "worker-1" }

type fakePruner struct {
	calls atomic.Int32
}

func (f *fakePruner) Prune(time.Duration) int {
	f.calls.Add(1)
	return 0
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	_, err := New(Config{ScrapeSchedule: "not a cron", LockSweepSchedule: "@every 1m"}, &countingCycle{}, &fakeLeases{}, nil)
	assert.ErrorContains(t, err, "scrape schedule")

	_, err = New(Config{ScrapeSchedule: "@every 1m", LockSweepSchedule: "bogus"}, &countingCycle{}, &fakeLeases{}, nil)
	assert.ErrorContains(t, err, "lock sweep schedule")
}

func TestScheduler_RunsCycleOnStartAndReleasesOnStop(t *testing.T) {
	cycle := &countingCycle{}
	leases := &fakeLeases{}
	pruner := &fakePruner{}

	s, err := New(Config{ScrapeSchedule: "@every 1h", LockSweepSchedule: "@every 1s"}, cycle, leases, pruner)
	require.NoError(t, err)

	s.Start(context.Background())

	require.Eventually(t, func() bool { return cycle.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return leases.swept.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Equal(t, int32(1), leases.released.Load())
	assert.GreaterOrEqual(t, pruner.calls.Load(), int32(1))
}
