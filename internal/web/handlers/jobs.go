package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
)

// JobStatus represents the status of a background video job.
type JobStatus string

// JobStatus constants define the lifecycle states of a job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// isJobTerminal returns true if the job status is a terminal state
func isJobTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// VideoJob is one background ProcessVideo run.
type VideoJob struct {
	EventBroadcaster

	ID          string
	VideoPath   string
	Status      JobStatus
	FramesRead  int
	Faces       int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Options     VideoJobOptions
	Result      *VideoJobResult
}

// VideoJobOptions are the per-job overrides accepted by the upload endpoint.
type VideoJobOptions struct {
	Stride    int     `json:"stride"`
	Threshold float64 `json:"threshold"`
}

// VideoJobResult summarises a completed job.
type VideoJobResult struct {
	FramesRead  int    `json:"frames_read"`
	Faces       int    `json:"faces"`
	Matches     int    `json:"matches"`
	ResultsPath string `json:"results_path,omitempty"`
}

// JobView is a point-in-time copy of a VideoJob for responses.
type JobView struct {
	ID          string          `json:"id"`
	VideoPath   string          `json:"video_path"`
	Status      JobStatus       `json:"status"`
	FramesRead  int             `json:"frames_read"`
	Faces       int             `json:"faces"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Options     VideoJobOptions `json:"options"`
	Result      *VideoJobResult `json:"result,omitempty"`
}

func (j *VideoJob) snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		VideoPath:   j.VideoPath,
		Status:      j.Status,
		FramesRead:  j.FramesRead,
		Faces:       j.Faces,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Options:     j.Options,
		Result:      j.Result,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *VideoJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels a job that has not finished yet.
func (j *VideoJob) Cancel() bool {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return false
	}
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
	return true
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners. Slow listeners miss events.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager tracks background video jobs.
type JobManager struct {
	jobs map[string]*VideoJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*VideoJob),
	}
}

// CreateJob registers a pending job whose context is derived from parent.
func (m *JobManager) CreateJob(parent context.Context, id, videoPath string, options VideoJobOptions) (*VideoJob, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	job := &VideoJob{
		ID:        id,
		VideoPath: videoPath,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Options:   options,
	}
	job.cancel = cancel

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job, ctx
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *VideoJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*VideoJob {
	m.mu.RLock()
	jobs := make([]*VideoJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartedAt.After(jobs[k].StartedAt)
	})
	return jobs
}

// ActiveCount returns the number of pending or running jobs.
func (m *JobManager) ActiveCount() int {
	n := 0
	for _, job := range m.ListJobs() {
		if !isJobTerminal(job.GetStatus()) {
			n++
		}
	}
	return n
}

// CancelAll cancels every unfinished job.
func (m *JobManager) CancelAll() {
	for _, job := range m.ListJobs() {
		job.Cancel()
	}
}
