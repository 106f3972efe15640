// Package job tracks extraction jobs from submission to terminal state.
package job

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// Status is the lifecycle state of a job.
//
//	queued -> processing -> (completed | failed)
//	failed -> retrying   -> (completed | failed)   (batch second pass only)
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned when a job id is unknown. It is a client error,
// not a retryable condition.
var ErrNotFound = eris.New("job not found")

// Record is the full status snapshot for one job.
type Record struct {
	Status   Status                  `json:"status"`
	Progress int                     `json:"progress"`
	Message  string                  `json:"message,omitempty"`
	Result   *model.ExtractionResult `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Registry is the process-lifetime map from job id to status record. Records
// are never deleted while the process runs; this is a known simplification
// (restart clears all history) rather than a design goal.
//
// Records are keyed by unique id, so concurrent writers to different jobs
// never conflict. Concurrent writers to the same id are not a supported
// scenario.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Record)}
}

// Create registers a new job in the queued state.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = Record{Status: StatusQueued, Progress: 0, Message: "Job queued"}
}

// Update replaces the job's record with a full new snapshot. Each pipeline
// stage writes the whole record; there are no field-level merge semantics.
func (r *Registry) Update(id string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = rec
}

// Get returns a copy of the job's record, or ErrNotFound for unknown ids.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
