package domain

import "time"

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobBatchResult records the outcome of one processed batch.
type JobBatchResult struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Job is a background embedding-build work unit. Jobs are owned by the
// registry; callers always see copies.
type Job struct {
	ID        string           `json:"id"`
	Status    JobStatus        `json:"status"`
	Total     int              `json:"total"`
	Progress  int              `json:"progress"`
	Results   []JobBatchResult `json:"results,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartTime time.Time        `json:"startTime"`
	EndTime   *time.Time       `json:"endTime,omitempty"`
}

// Active reports whether the job is still running.
func (j *Job) Active() bool {
	return j.Status == JobStatusInProgress
}

// JobRegistry tracks background jobs in-process. All operations are safe
// under concurrent callers; Update applies the mutation under the registry
// lock so readers never observe a torn record.
type JobRegistry interface {
	Create(total int) *Job
	Get(id string) (*Job, error)
	ListActive() []*Job
	Update(id string, mutate func(*Job)) error
}
