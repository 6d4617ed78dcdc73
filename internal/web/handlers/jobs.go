package handlers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/ingest"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IngestJob is a directory ingest running in the background.
type IngestJob struct {
	EventBroadcaster

	ID             string          `json:"id"`
	Status         JobStatus       `json:"status"`
	Directories    []string        `json:"directories"`
	Recursive      bool            `json:"recursive"`
	TotalFiles     int             `json:"total_files"`
	ProcessedFiles int             `json:"processed_files"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Result         *ingest.Summary `json:"result,omitempty"`
}

// GetStatus returns the current job status.
func (j *IngestJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Snapshot returns a copy safe to encode while the job runs.
func (j *IngestJob) Snapshot() *IngestJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return &IngestJob{
		ID:             j.ID,
		Status:         j.Status,
		Directories:    slices.Clone(j.Directories),
		Recursive:      j.Recursive,
		TotalFiles:     j.TotalFiles,
		ProcessedFiles: j.ProcessedFiles,
		Error:          j.Error,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		Result:         j.Result,
	}
}

// Cancel cancels the ingest job.
func (j *IngestJob) Cancel() {
	j.mu.Lock()
	if j.Status == JobStatusPending || j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
	}
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

// update mutates the job under its lock.
func (j *IngestJob) update(fn func(j *IngestJob)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster fans job events out to SSE subscribers and holds the
// job's cancel func. Its mutex also guards the embedding job's fields.
type EventBroadcaster struct {
	mu        sync.RWMutex
	cancel    context.CancelFunc
	listeners []chan JobEvent
}

// AddListener subscribes a buffered channel to the job's events.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.mu.Lock()
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()
	return ch
}

// RemoveListener unsubscribes and closes ch. Unknown channels are ignored.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.listeners, ch); i >= 0 {
		b.listeners = slices.Delete(b.listeners, i, i+1)
		close(ch)
	}
}

// SendEvent delivers event to every subscriber without blocking; slow
// subscribers miss events.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// Cancel stops the job's context and tells subscribers.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "job cancelled"})
}

// JobManager tracks ingest jobs.
type JobManager struct {
	jobs map[string]*IngestJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*IngestJob),
	}
}

func newIngestJob(id string, dirs []string, recursive bool) *IngestJob {
	return &IngestJob{
		ID:          id,
		Status:      JobStatusPending,
		Directories: dirs,
		Recursive:   recursive,
		StartedAt:   time.Now(),
	}
}

// CreateJob registers a pending ingest job.
func (m *JobManager) CreateJob(id string, dirs []string, recursive bool) *IngestJob {
	job := newIngestJob(id, dirs, recursive)

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// TryCreateJob registers a pending ingest job unless another job is still
// pending or running. The check and the insert happen under one lock.
func (m *JobManager) TryCreateJob(id string, dirs []string, recursive bool) (*IngestJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runningLocked() {
		return nil, false
	}
	job := newIngestJob(id, dirs, recursive)
	m.jobs[id] = job
	return job, true
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *IngestJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Running reports whether any job is pending or running.
func (m *JobManager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runningLocked()
}

func (m *JobManager) runningLocked() bool {
	for _, job := range m.jobs {
		if !isJobTerminal(job.GetStatus()) {
			return true
		}
	}
	return false
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*IngestJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*IngestJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *IngestJob) int { return b.StartedAt.Compare(a.StartedAt) })
	return jobs
}
