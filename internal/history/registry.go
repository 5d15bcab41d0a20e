// Package history implements conversation history optimization: pruning,
// summary caching, and asynchronous summary regeneration.
package history

import (
	"context"
	"sync"
	"time"
)

// Task is the handle for one in-flight background regeneration. The
// goroutine doing the work calls Complete or Fail exactly once; the
// registry's cleanup is the single observer of completion.
type Task struct {
	sessionID string
	reg       *TaskRegistry
	cancel    context.CancelFunc
	done      chan struct{}

	// Written before done is closed, read only after done is closed.
	result string
	err    error
}

// Complete records a successful result and clears the registry entry.
func (t *Task) Complete(result string) {
	t.result = result
	t.finish()
}

// Fail records a failure (including cancellation) and clears the
// registry entry. Cancellation is swallowed here and never becomes a
// caller-visible error.
func (t *Task) Fail(err error) {
	t.err = err
	t.finish()
}

func (t *Task) finish() {
	close(t.done)
	t.reg.remove(t.sessionID, t)
}

// TaskRegistry tracks at most one in-flight background regeneration per
// session. Starting a new task for a session cancels and replaces any
// unfinished prior one.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]*Task)}
}

// Start registers a new task for a session, cancelling and replacing
// any unfinished prior task. The returned context governs the task's
// work; it is independent of any request context because the task
// outlives the request that spawned it.
func (r *TaskRegistry) Start(sessionID string) (*Task, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		sessionID: sessionID,
		reg:       r,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if prev, ok := r.tasks[sessionID]; ok {
		prev.cancel()
	}
	r.tasks[sessionID] = t
	r.mu.Unlock()

	return t, ctx
}

// Wait blocks until the session's in-flight task (if any) completes, up
// to timeout. Returns the task's result when it finished successfully
// within the window. A task that was already finished when Wait is
// called yields nothing; its output, if any, is in the summary cache.
// Waiting never cancels the task; on timeout it is left to finish and
// populate the cache for future calls.
func (r *TaskRegistry) Wait(ctx context.Context, sessionID string, timeout time.Duration) (string, bool) {
	r.mu.Lock()
	t, ok := r.tasks[sessionID]
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	select {
	case <-t.done:
		// Finished before we started waiting; treat as no live task.
		return "", false
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		if t.err != nil {
			return "", false
		}
		return t.result, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Active reports whether a session has a registered task.
func (r *TaskRegistry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[sessionID]
	return ok
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// CancelAll cancels every registered task. Used during shutdown; the
// tasks clear their own entries as they observe cancellation.
func (r *TaskRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		t.cancel()
	}
}

// remove clears the entry for sessionID if it still points at t. A
// superseded task must not remove its replacement.
func (r *TaskRegistry) remove(sessionID string, t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[sessionID] == t {
		delete(r.tasks, sessionID)
	}
}
