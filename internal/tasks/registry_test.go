package tasks

import (
	"errors"
	"testing"
)

func TestTaskLifecycle(t *testing.T) {
	r := NewRegistry()

	id, err := r.Start("scrape", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	task, ok := r.Get(id)
	if !ok {
		t.Fatal("task not found")
	}
	if task.Status != StatusQueued {
		t.Errorf("status = %q, want queued", task.Status)
	}

	r.Run(id)
	r.Progress(id, "Processing combination 1/3")
	task, _ = r.Get(id)
	if task.Status != StatusRunning {
		t.Errorf("status = %q, want running", task.Status)
	}
	if task.Progress != "Processing combination 1/3" {
		t.Errorf("progress = %q", task.Progress)
	}

	r.Complete(id, "Completed: Sent 2/3")
	task, _ = r.Get(id)
	if task.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if task.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if task.Progress != "Completed: Sent 2/3" {
		t.Errorf("progress = %q", task.Progress)
	}
}

func TestTaskFailure(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Start("campaign", "")
	r.Run(id)
	r.Fail(id, "initialization failed")

	task, _ := r.Get(id)
	if task.Status != StatusFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
	if task.Error != "initialization failed" {
		t.Errorf("error = %q", task.Error)
	}
	if task.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestGateExclusion(t *testing.T) {
	r := NewRegistry()

	first, err := r.Start("campaign", "campaign:email")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = r.Start("campaign", "campaign:email")
	var busy *ErrBusy
	if !errors.As(err, &busy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if busy.TaskID != first {
		t.Errorf("holder = %q, want %q", busy.TaskID, first)
	}

	// a different channel runs concurrently
	if _, err := r.Start("campaign", "campaign:whatsapp"); err != nil {
		t.Errorf("other gate should be free: %v", err)
	}

	// gate is released on completion
	r.Complete(first, "")
	if _, err := r.Start("campaign", "campaign:email"); err != nil {
		t.Errorf("gate should be released: %v", err)
	}
}

func TestGateReleasedOnFailure(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Start("campaign", "campaign:email")
	r.Fail(id, "boom")
	if _, err := r.Start("campaign", "campaign:email"); err != nil {
		t.Errorf("gate should be released after failure: %v", err)
	}
}

func TestActiveCount(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Start("scrape", "")
	b, _ := r.Start("campaign", "campaign:email")
	r.Run(b)
	if got := r.Active(); got != 2 {
		t.Errorf("Active() = %d, want 2", got)
	}
	r.Complete(a, "done")
	r.Fail(b, "boom")
	if got := r.Active(); got != 0 {
		t.Errorf("Active() = %d, want 0", got)
	}
}

func TestGetUnknownTask(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("no-such-id"); ok {
		t.Error("expected not found")
	}
}
