package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("Should create pending tasks with unique IDs", func(t *testing.T) {
		registry := NewRegistry()
		first := registry.Create("/docs/a.md")
		second := registry.Create("/docs/b.md")
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, StatusPending, first.Status)
		assert.Equal(t, "/docs/a.md", first.Source)
	})

	t.Run("Should walk a task through its lifecycle", func(t *testing.T) {
		registry := NewRegistry()
		task := registry.Create("/docs/a.md")
		registry.markProcessing(task.ID, "doc-1", 10)
		current, ok := registry.Get(task.ID)
		require.True(t, ok)
		assert.Equal(t, StatusProcessing, current.Status)
		assert.Equal(t, "doc-1", current.DocumentID)
		assert.Equal(t, 10, current.TotalChunks)
		registry.advance(task.ID, 4)
		current, _ = registry.Get(task.ID)
		assert.Equal(t, 4, current.ProcessedChunks)
		registry.complete(task.ID)
		current, _ = registry.Get(task.ID)
		assert.Equal(t, StatusCompleted, current.Status)
		assert.Equal(t, 10, current.ProcessedChunks)
	})

	t.Run("Should freeze tasks once they reach a terminal state", func(t *testing.T) {
		registry := NewRegistry()
		task := registry.Create("/docs/a.md")
		registry.markProcessing(task.ID, "doc-1", 5)
		registry.fail(task.ID, errors.New("embedding failed"))
		registry.complete(task.ID)
		registry.advance(task.ID, 5)
		current, _ := registry.Get(task.ID)
		assert.Equal(t, StatusFailed, current.Status)
		assert.Equal(t, "embedding failed", current.Error)
		assert.Zero(t, current.ProcessedChunks)
	})

	t.Run("Should list tasks newest first", func(t *testing.T) {
		registry := NewRegistry()
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		registry.now = func() time.Time { return base }
		old := registry.Create("/docs/old.md")
		registry.now = func() time.Time { return base.Add(time.Minute) }
		recent := registry.Create("/docs/recent.md")
		tasks := registry.List()
		require.Len(t, tasks, 2)
		assert.Equal(t, recent.ID, tasks[0].ID)
		assert.Equal(t, old.ID, tasks[1].ID)
	})

	t.Run("Should tally tasks by status", func(t *testing.T) {
		registry := NewRegistry()
		done := registry.Create("/docs/a.md")
		registry.markProcessing(done.ID, "doc-a", 1)
		registry.complete(done.ID)
		registry.Create("/docs/b.md")
		counts := registry.CountByStatus()
		assert.Equal(t, 1, counts[StatusCompleted])
		assert.Equal(t, 1, counts[StatusPending])
	})
}

func TestTaskProgress(t *testing.T) {
	t.Run("Should report zero before any chunks are known", func(t *testing.T) {
		task := &Task{Status: StatusPending}
		assert.Zero(t, task.Progress())
	})

	t.Run("Should report the processed ratio", func(t *testing.T) {
		task := &Task{Status: StatusProcessing, TotalChunks: 10, ProcessedChunks: 4}
		assert.InDelta(t, 0.4, task.Progress(), 1e-9)
	})

	t.Run("Should saturate at one", func(t *testing.T) {
		task := &Task{Status: StatusProcessing, TotalChunks: 4, ProcessedChunks: 9}
		assert.Equal(t, 1.0, task.Progress())
	})

	t.Run("Should report one for an empty completed document", func(t *testing.T) {
		task := &Task{Status: StatusCompleted}
		assert.Equal(t, 1.0, task.Progress())
	})
}
