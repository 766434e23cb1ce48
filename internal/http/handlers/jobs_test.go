package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
)

func TestCancelBeforeAcceptanceDeletesRow(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-1", UserID: "u1", JobType: domain.JobTypeImage,
		Provider: domain.ProviderRunware,
		Metadata: domain.Metadata{Model: "m1", Prompt: "a castle", Cost: 0.04},
	})
	err := app.Map.Associate(context.Background(), reconcile.Entry{
		NotificationID: "notif-1", TaskID: "task-1", Model: "m1", Prompt: "a castle", CanCancel: true,
	})
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/notif-1/cancel", nil)
	req.Header.Set("X-User-ID", "u1")
	req = routeParam(req, "notification_id", "notif-1")
	rec := httptest.NewRecorder()
	app.CancelNotification(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"deleted":true`) {
		t.Fatalf("body = %s, want deleted:true", rec.Body.String())
	}

	if _, err := store.Get(context.Background(), "task-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("row must be deleted, got err = %v", err)
	}
	if len(store.Archived()) != 0 {
		t.Fatalf("pre-acceptance cancellation must not archive anything")
	}
	if _, err := app.Map.TaskID(context.Background(), "notif-1"); !errors.Is(err, reconcile.ErrNoMatch) {
		t.Fatalf("mapping must be removed, got err = %v", err)
	}
}

func TestCancelAfterBillingArchivesWithCost(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-2", UserID: "u1", JobType: domain.JobTypeVideo,
		Provider: domain.ProviderRunware, Status: domain.JobStatusProcessing,
		Metadata: domain.Metadata{Model: "klingai:5@3", Prompt: "a storm", Cost: 0.80},
	})
	err := app.Map.Associate(context.Background(), reconcile.Entry{
		NotificationID: "notif-2", TaskID: "task-2", Model: "klingai:5@3", Prompt: "a storm", CanCancel: false,
	})
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/notif-2/cancel", nil)
	req.Header.Set("X-User-ID", "u1")
	req = routeParam(req, "notification_id", "notif-2")
	rec := httptest.NewRecorder()
	app.CancelNotification(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"deleted":false`) {
		t.Fatalf("body = %s, want deleted:false", rec.Body.String())
	}

	// The row survives as a terminal failure, never silently deleted.
	job, err := store.Get(context.Background(), "task-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}

	archived := store.Archived()
	if len(archived) != 1 {
		t.Fatalf("archived = %d records, want 1", len(archived))
	}
	rec0 := archived[0]
	if rec0.Cost != 0.80 || rec0.Model != "klingai:5@3" || rec0.Prompt != "a storm" {
		t.Fatalf("archived record = %+v, billing fields must be preserved", rec0)
	}
	if rec0.ErrorMessage != "cancelled by user" {
		t.Fatalf("archived error = %q", rec0.ErrorMessage)
	}
}

func TestCancelFallsBackToFuzzyMatch(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-3", UserID: "u1", JobType: domain.JobTypeImage,
		Provider: domain.ProviderRunware,
		Metadata: domain.Metadata{Model: "m1", Prompt: "a red fox in the snow"},
	})
	// Associated under a different notification id than the one the client
	// cancels with, simulating the lost-association race.
	err := app.Map.Associate(context.Background(), reconcile.Entry{
		NotificationID: "notif-other", TaskID: "task-3", Model: "m1", Prompt: "a red fox in the snow", CanCancel: true,
	})
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	body := `{"model":"m1","prompt":"red fox in snow"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/notif-lost/cancel", strings.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	req = routeParam(req, "notification_id", "notif-lost")
	rec := httptest.NewRecorder()
	app.CancelNotification(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := store.Get(context.Background(), "task-3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("fuzzy-matched job must be cancelled, got err = %v", err)
	}
}

func TestAckRemovesTerminalJob(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-4", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware,
	})
	if err := store.UpdateStatus(context.Background(), "task-4", domain.JobStatusCompleted, "https://cdn/x.jpg", ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/task-4/ack", nil)
	req.Header.Set("X-User-ID", "u1")
	req = routeParam(req, "task_id", "task-4")
	rec := httptest.NewRecorder()
	app.AckJob(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := store.Get(context.Background(), "task-4"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("acked job must be deleted, got err = %v", err)
	}
}

func TestAckRejectsInFlightJob(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-5", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/task-5/ack", nil)
	req.Header.Set("X-User-ID", "u1")
	req = routeParam(req, "task_id", "task-5")
	rec := httptest.NewRecorder()
	app.AckJob(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409 for non-terminal job", rec.Code)
	}
	if _, err := store.Get(context.Background(), "task-5"); err != nil {
		t.Fatalf("in-flight job must survive ack attempt: %v", err)
	}
}

func TestGetJobScopedToUser(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{
		TaskID: "task-6", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/task-6", nil)
	req.Header.Set("X-User-ID", "u2")
	req = routeParam(req, "task_id", "task-6")
	rec := httptest.NewRecorder()
	app.GetJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404 for another user's job", rec.Code)
	}
}
