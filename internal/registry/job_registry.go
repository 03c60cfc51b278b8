package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"case-retriever/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultRetainFor  = 60 * time.Minute
	defaultSweepEvery = 10 * time.Minute
)

// InMemoryJobRegistry tracks background jobs for this process. Jobs stay
// queryable for a retention window measured from their start time and are
// swept afterwards, so a restart or an expired id both surface as not-found
// to callers.
type InMemoryJobRegistry struct {
	retainFor  time.Duration
	sweepEvery time.Duration
	logger     *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*domain.Job

	stopChan chan struct{}
}

func NewInMemoryJobRegistry(retainFor, sweepEvery time.Duration, logger *slog.Logger) *InMemoryJobRegistry {
	if retainFor <= 0 {
		retainFor = defaultRetainFor
	}
	if sweepEvery <= 0 {
		sweepEvery = defaultSweepEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryJobRegistry{
		retainFor:  retainFor,
		sweepEvery: sweepEvery,
		logger:     logger,
		jobs:       make(map[string]*domain.Job),
		stopChan:   make(chan struct{}),
	}
}

func (r *InMemoryJobRegistry) Create(total int) *domain.Job {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Status:    domain.JobStatusInProgress,
		Total:     total,
		StartTime: time.Now().UTC(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return copyJob(job)
}

func (r *InMemoryJobRegistry) Get(id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "job lookup", fmt.Errorf("no job with id %s", id))
	}
	return copyJob(job), nil
}

func (r *InMemoryJobRegistry) ListActive() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*domain.Job
	for _, job := range r.jobs {
		if job.Active() {
			active = append(active, copyJob(job))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime.Before(active[j].StartTime)
	})
	return active
}

func (r *InMemoryJobRegistry) Update(id string, mutate func(*domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "job update", fmt.Errorf("no job with id %s", id))
	}
	mutate(job)
	return nil
}

// Start launches the retention sweeper.
func (r *InMemoryJobRegistry) Start() {
	r.logger.Info("starting job registry sweeper",
		"retain_for", r.retainFor.String(),
		"sweep_every", r.sweepEvery.String(),
	)
	go r.run()
}

func (r *InMemoryJobRegistry) Stop() {
	r.logger.Info("stopping job registry sweeper")
	close(r.stopChan)
}

func (r *InMemoryJobRegistry) run() {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if removed := r.sweepOnce(time.Now()); removed > 0 {
				r.logger.Info("swept expired jobs", "removed", removed)
			}
		}
	}
}

// sweepOnce drops jobs whose start time is older than the retention window
// and reports how many were removed. Age is measured from start, not from
// completion, so a stuck in-progress record cannot outlive the window either.
func (r *InMemoryJobRegistry) sweepOnce(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if now.Sub(job.StartTime) > r.retainFor {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

var _ domain.JobRegistry = (*InMemoryJobRegistry)(nil)

func copyJob(job *domain.Job) *domain.Job {
	out := *job
	if job.Results != nil {
		out.Results = make([]domain.JobBatchResult, len(job.Results))
		copy(out.Results, job.Results)
	}
	if job.EndTime != nil {
		end := *job.EndTime
		out.EndTime = &end
	}
	return &out
}
