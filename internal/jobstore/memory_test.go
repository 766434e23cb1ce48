package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

func newTestJob(taskID string) *domain.PendingJob {
	return &domain.PendingJob{
		TaskID:   taskID,
		UserID:   "user-1",
		JobType:  domain.JobTypeImage,
		Provider: domain.ProviderRunware,
		Status:   domain.JobStatusPending,
		Metadata: domain.Metadata{Model: "flux-dev", Prompt: "a red fox", Cost: 0.04},
	}
}

func TestCreateRejectsDuplicateTaskID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestJob("task-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newTestJob("task-1")); err != domain.ErrDuplicateTaskID {
		t.Fatalf("err = %v, want ErrDuplicateTaskID", err)
	}
}

func TestUpdateStatusIdempotentTerminal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newTestJob("task-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateStatus(ctx, "task-1", domain.JobStatusCompleted, "https://cdn.example.com/out.png", ""); err != nil {
		t.Fatalf("first terminal update: %v", err)
	}
	first, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.CompletedAt == nil {
		t.Fatalf("completed_at not set on terminal transition")
	}

	// Identical outcome again: must be a no-op, not an error.
	if err := store.UpdateStatus(ctx, "task-1", domain.JobStatusCompleted, "https://cdn.example.com/out.png", ""); err != nil {
		t.Fatalf("repeat terminal update: %v", err)
	}

	// Conflicting outcome must not flip the row.
	if err := store.UpdateStatus(ctx, "task-1", domain.JobStatusFailed, "", "late provider error"); err != nil {
		t.Fatalf("conflicting terminal update: %v", err)
	}
	after, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", after.Status)
	}
	if after.ResultURL != "https://cdn.example.com/out.png" {
		t.Fatalf("result url changed: %q", after.ResultURL)
	}
	if after.ErrorMessage != "" {
		t.Fatalf("error message leaked onto completed row: %q", after.ErrorMessage)
	}
	if !after.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("completed_at changed on repeat update")
	}
}

func TestTerminalRowsAreMutuallyExclusive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestJob("ok")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newTestJob("bad")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateStatus(ctx, "ok", domain.JobStatusCompleted, "https://cdn.example.com/a.png", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.UpdateStatus(ctx, "bad", domain.JobStatusFailed, "", "provider exploded"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	for _, id := range []string{"ok", "bad"} {
		job, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		hasResult := job.ResultURL != ""
		hasError := job.ErrorMessage != ""
		if hasResult == hasError {
			t.Fatalf("%s: exactly one of result/error must be set (result=%q error=%q)", id, job.ResultURL, job.ErrorMessage)
		}
		if job.CompletedAt == nil {
			t.Fatalf("%s: terminal row missing completed_at", id)
		}
	}

	// Passing both outcomes at once is rejected outright.
	if err := store.UpdateStatus(ctx, "ok", domain.JobStatusCompleted, "https://u", "and an error"); err != domain.ErrConflictingOutcome {
		t.Fatalf("err = %v, want ErrConflictingOutcome", err)
	}
}

func TestUpdateStatusMissingRow(t *testing.T) {
	store := NewMemoryStore()
	err := store.UpdateStatus(context.Background(), "ghost", domain.JobStatusCompleted, "https://u", "")
	if err != domain.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProvider(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newTestJob("task-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateProvider(ctx, "task-1", domain.ProviderWaveSpeed); err != nil {
		t.Fatalf("update provider: %v", err)
	}
	job, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Provider != domain.ProviderWaveSpeed {
		t.Fatalf("provider = %q, want wavespeed after re-route", job.Provider)
	}

	if err := store.UpdateProvider(ctx, "ghost", domain.ProviderFalAI); err != domain.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMetadata(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newTestJob("task-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	before, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	enriched := before.Metadata.Merge(domain.Metadata{
		RequestID:      "req-77",
		SourceImageURL: "https://cdn.example.com/seed.jpg",
	})
	if err := store.UpdateMetadata(ctx, "task-1", enriched); err != nil {
		t.Fatalf("update metadata: %v", err)
	}

	after, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Metadata.RequestID != "req-77" {
		t.Fatalf("request id = %q", after.Metadata.RequestID)
	}
	if after.Metadata.SourceImageURL != "https://cdn.example.com/seed.jpg" {
		t.Fatalf("source image url = %q", after.Metadata.SourceImageURL)
	}
	if after.Metadata.Model != "flux-dev" || after.Metadata.Prompt != "a red fox" {
		t.Fatalf("metadata = %+v, enrichment must keep existing fields", after.Metadata)
	}

	if err := store.UpdateMetadata(ctx, "ghost", enriched); err != domain.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		job := newTestJob(id)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	jobs, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	if jobs[0].TaskID != "new" || jobs[2].TaskID != "old" {
		t.Fatalf("order = [%s %s %s], want newest first", jobs[0].TaskID, jobs[1].TaskID, jobs[2].TaskID)
	}
}

func TestCleanupAndReapWindows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Now().Add(-time.Minute)

	stale := newTestJob("stale-done")
	stale.CreatedAt = cutoff.Add(-time.Hour)
	if err := store.Create(ctx, stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.mu.Lock()
	store.jobs["stale-done"].Status = domain.JobStatusCompleted
	store.jobs["stale-done"].UpdatedAt = cutoff.Add(-time.Hour)
	store.mu.Unlock()

	orphan := newTestJob("orphan")
	orphan.CreatedAt = cutoff.Add(-time.Hour)
	if err := store.Create(ctx, orphan); err != nil {
		t.Fatalf("create: %v", err)
	}

	fresh := newTestJob("fresh")
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := store.CleanupByAge(ctx, []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}, cutoff)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleanup count = %d, want 1", n)
	}

	n, err = store.ReapOrphaned(ctx, cutoff)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reap count = %d, want 1", n)
	}

	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh job should survive: %v", err)
	}
}
