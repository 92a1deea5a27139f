package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status tracks an ingestion task through its lifecycle. Transitions are
// pending -> processing -> completed | failed; terminal states never change.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task records the progress of one document ingestion.
type Task struct {
	ID              string
	Source          string
	DocumentID      string
	Status          Status
	TotalChunks     int
	ProcessedChunks int
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Progress reports completion in [0, 1]. A task with no chunks reports 1
// once it leaves the pending state.
func (t *Task) Progress() float64 {
	if t.TotalChunks <= 0 {
		if t.Status == StatusCompleted {
			return 1
		}
		return 0
	}
	ratio := float64(t.ProcessedChunks) / float64(t.TotalChunks)
	if ratio > 1 {
		return 1
	}
	return ratio
}

func (t *Task) terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Registry tracks ingestion tasks in memory. Reads return snapshots so
// callers never observe a task mid-update.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewRegistry builds an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task), now: time.Now}
}

// Create registers a pending task for one source file.
func (r *Registry) Create(source string) Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	task := &Task{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[task.ID] = task
	return *task
}

// Get returns a snapshot of one task.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// List returns snapshots of every task, newest first.
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByStatus tallies tasks per lifecycle state.
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[Status]int, 4)
	for _, task := range r.tasks {
		counts[task.Status]++
	}
	return counts
}

func (r *Registry) markProcessing(id, documentID string, totalChunks int) {
	r.update(id, func(task *Task) {
		task.Status = StatusProcessing
		task.DocumentID = documentID
		task.TotalChunks = totalChunks
	})
}

func (r *Registry) advance(id string, processed int) {
	r.update(id, func(task *Task) {
		task.ProcessedChunks = processed
	})
}

func (r *Registry) complete(id string) {
	r.update(id, func(task *Task) {
		task.Status = StatusCompleted
		task.ProcessedChunks = task.TotalChunks
	})
}

func (r *Registry) fail(id string, err error) {
	r.update(id, func(task *Task) {
		task.Status = StatusFailed
		if err != nil {
			task.Error = err.Error()
		}
	})
}

// update applies fn under the lock, skipping tasks already in a terminal
// state.
func (r *Registry) update(id string, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.terminal() {
		return
	}
	fn(task)
	task.UpdatedAt = r.now()
}
