package model

import (
	"sync"
	"time"
)

// Refresh job states
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// RefreshJob represents the status of an on-demand shop refresh
type RefreshJob struct {
	JobID         string    `json:"job_id"`
	ShopID        string    `json:"shop_id"`
	Status        string    `json:"status"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Result        *Status   `json:"result,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RefreshJobStore is an in-memory store for refresh job statuses
type RefreshJobStore struct {
	mu   sync.RWMutex
	jobs map[string]RefreshJob
}

// NewRefreshJobStore creates a new job store
func NewRefreshJobStore() *RefreshJobStore {
	return &RefreshJobStore{
		jobs: make(map[string]RefreshJob),
	}
}

// Set stores a copy of the job status
func (s *RefreshJobStore) Set(job RefreshJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.JobID] = job
}

// Get retrieves a job status
func (s *RefreshJobStore) Get(jobID string) (RefreshJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobID]
	return job, exists
}

// Update applies fn to a stored job; no-op when the job is unknown
func (s *RefreshJobStore) Update(jobID string, fn func(*RefreshJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, exists := s.jobs[jobID]
	if !exists {
		return
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
}

// Prune removes finished jobs not updated since cutoff
func (s *RefreshJobStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if (job.Status == JobCompleted || job.Status == JobFailed) && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
