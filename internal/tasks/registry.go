// Package tasks tracks background task state for API-triggered work.
package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a snapshot of one background task
type Task struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     Status     `json:"status"`
	Progress   string     `json:"progress,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Registry is a concurrency-safe in-memory task store. It also gates
// exclusive resources: at most one running task per gate key.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	gates map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		gates: make(map[string]string),
	}
}

// ErrBusy is returned when a gate is already held by a running task
type ErrBusy struct {
	Gate   string
	TaskID string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("a %s task is already running (id %s)", e.Gate, e.TaskID)
}

// Start registers a new queued task. If gate is non-empty the task
// claims exclusive ownership of it; a second task on the same gate is
// rejected with ErrBusy until the first finishes.
func (r *Registry) Start(taskType, gate string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gate != "" {
		if holder, held := r.gates[gate]; held {
			return "", &ErrBusy{Gate: gate, TaskID: holder}
		}
	}

	id := uuid.New().String()
	r.tasks[id] = &Task{
		ID:        id,
		Type:      taskType,
		Status:    StatusQueued,
		StartedAt: time.Now().UTC(),
	}
	if gate != "" {
		r.gates[gate] = id
	}
	return id, nil
}

// Run marks a task as running
func (r *Registry) Run(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = StatusRunning
	}
}

// Progress updates the human-readable progress line of a task
func (r *Registry) Progress(id, progress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Progress = progress
	}
}

// Complete marks a task as finished successfully and releases its gate
func (r *Registry) Complete(id, progress string) {
	r.finish(id, StatusCompleted, progress, "")
}

// Fail marks a task as failed and releases its gate
func (r *Registry) Fail(id, errMsg string) {
	r.finish(id, StatusFailed, "", errMsg)
}

func (r *Registry) finish(id string, status Status, progress, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	t.Status = status
	if progress != "" {
		t.Progress = progress
	}
	t.Error = errMsg
	now := time.Now().UTC()
	t.FinishedAt = &now

	for gate, holder := range r.gates {
		if holder == id {
			delete(r.gates, gate)
		}
	}
}

// Active counts tasks that are queued or running
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Status == StatusQueued || t.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Get returns a copy of the task, false when unknown
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}
