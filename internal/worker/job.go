package worker

import "context"

// Job is an on-demand pipeline run for one shop
type Job struct {
	ID            string
	ShopID        string
	CorrelationID string
}

// ExecutorFunc processes a job. Errors are reported by the executor itself;
// the pool only logs them.
type ExecutorFunc func(ctx context.Context, job Job) error
