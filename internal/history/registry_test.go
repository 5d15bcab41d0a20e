package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitNoTask(t *testing.T) {
	r := NewTaskRegistry()
	if _, ok := r.Wait(context.Background(), "none", 10*time.Millisecond); ok {
		t.Error("Wait returned a result for an unknown session")
	}
}

func TestWaitReturnsResult(t *testing.T) {
	r := NewTaskRegistry()
	task, _ := r.Start("s1")

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.Complete("done")
	}()

	got, ok := r.Wait(context.Background(), "s1", time.Second)
	if !ok || got != "done" {
		t.Errorf("Wait = %q, %v", got, ok)
	}
	if r.Active("s1") {
		t.Error("completed task still registered")
	}
}

func TestWaitTimeout(t *testing.T) {
	r := NewTaskRegistry()
	r.Start("s1")

	start := time.Now()
	if _, ok := r.Wait(context.Background(), "s1", 20*time.Millisecond); ok {
		t.Error("Wait returned a result for an unfinished task")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait blocked past its timeout")
	}
	// The task is left running for a later caller.
	if !r.Active("s1") {
		t.Error("timed-out wait must not clear the task")
	}
}

func TestWaitFinishedTaskYieldsNothing(t *testing.T) {
	r := NewTaskRegistry()
	task, _ := r.Start("s1")
	task.Complete("done")

	if _, ok := r.Wait(context.Background(), "s1", 10*time.Millisecond); ok {
		t.Error("already-finished task should yield nothing; the cache has its output")
	}
}

func TestWaitFailedTask(t *testing.T) {
	r := NewTaskRegistry()
	task, _ := r.Start("s1")

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.Fail(errors.New("boom"))
	}()

	if _, ok := r.Wait(context.Background(), "s1", time.Second); ok {
		t.Error("failed task must not return a result")
	}
}

func TestStartSupersedesAndCancels(t *testing.T) {
	r := NewTaskRegistry()
	first, firstCtx := r.Start("s1")
	second, _ := r.Start("s1")

	select {
	case <-firstCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded task's context never cancelled")
	}

	// The superseded task finishing must not clear its replacement.
	first.Fail(firstCtx.Err())
	if !r.Active("s1") {
		t.Fatal("superseded task cleared its replacement from the registry")
	}

	second.Complete("fresh")
	if r.Active("s1") {
		t.Error("replacement task still registered after completion")
	}
	if r.Len() != 0 {
		t.Errorf("registry size = %d", r.Len())
	}
}

func TestTasksAreIndependentPerSession(t *testing.T) {
	r := NewTaskRegistry()
	_, ctx1 := r.Start("s1")
	r.Start("s2")

	select {
	case <-ctx1.Done():
		t.Error("starting a task for s2 cancelled s1")
	default:
	}
	if r.Len() != 2 {
		t.Errorf("registry size = %d, want 2", r.Len())
	}
}

func TestCancelAll(t *testing.T) {
	r := NewTaskRegistry()
	_, ctx1 := r.Start("s1")
	_, ctx2 := r.Start("s2")

	r.CancelAll()

	for _, ctx := range []context.Context{ctx1, ctx2} {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("CancelAll left a task running")
		}
	}
}

func TestWaitRespectsCallerContext(t *testing.T) {
	r := NewTaskRegistry()
	r.Start("s1")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if _, ok := r.Wait(ctx, "s1", 5*time.Second); ok {
		t.Error("cancelled wait returned a result")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait ignored caller cancellation")
	}
}
