package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
)

type jobDTO struct {
	TaskID       string     `json:"task_id"`
	JobType      string     `json:"job_type"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	ResultURL    string     `json:"result_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Model        string     `json:"model,omitempty"`
	Prompt       string     `json:"prompt,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toJobDTO(job *domain.PendingJob) jobDTO {
	return jobDTO{
		TaskID:       job.TaskID,
		JobType:      string(job.JobType),
		Provider:     string(job.Provider),
		Status:       string(job.Status),
		ResultURL:    job.ResultURL,
		ErrorMessage: job.ErrorMessage,
		Model:        job.Metadata.Model,
		Prompt:       job.Metadata.Prompt,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// ListJobs returns the caller's pending and recently finished jobs, newest
// first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Store.ListByUser(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobDTO(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "items": items})
}

// GetJob returns a single job by task id.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	job, err := a.Store.Get(r.Context(), taskID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "job": toJobDTO(job)})
}

// AckJob acknowledges a terminal job: the client has consumed the outcome,
// so the row and its reconciliation entry are removed.
func (a *App) AckJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	job, err := a.Store.Get(r.Context(), taskID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if !job.Status.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "job is still in progress")
		return
	}
	if err := a.Store.Delete(r.Context(), taskID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to remove job")
		return
	}
	if err := a.Map.Remove(r.Context(), taskID); err != nil {
		a.Logger.Debug().Str("task_id", taskID).Err(err).Msg("no reconciliation entry to remove")
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok"})
}

type cancelRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// CancelNotification cancels the job behind a client notification. When the
// provider has not yet accepted billable work the pending row is deleted
// outright; once billing has started the row is marked failed and a
// cancelled-with-cost record is archived first, so payment evidence is
// never silently dropped.
func (a *App) CancelNotification(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	notificationID := chi.URLParam(r, "notification_id")

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	entry, err := a.resolveNotification(r, notificationID, req.Model, req.Prompt)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no job associated with notification")
		return
	}
	taskID := entry.TaskID

	job, err := a.Store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Row already cleaned up; just drop the mapping.
			_ = a.Map.Remove(r.Context(), taskID)
			a.json(w, http.StatusOK, map[string]any{"status": "ok", "deleted": false})
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "no job associated with notification")
		return
	}

	if entry.CanCancel {
		if err := a.Store.Delete(r.Context(), taskID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
			return
		}
		_ = a.Map.Remove(r.Context(), taskID)
		a.Logger.Info().Str("task_id", taskID).Msg("job cancelled before provider acceptance")
		a.json(w, http.StatusOK, map[string]any{"status": "ok", "deleted": true})
		return
	}

	// Billable work already started: archive first, then mark failed.
	rec := domain.ArchiveFromJob(job, "cancelled by user")
	if err := a.Archive.Record(r.Context(), rec); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to archive cancellation")
		return
	}
	if err := a.Store.UpdateStatus(r.Context(), taskID, domain.JobStatusFailed, "", "cancelled by user"); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	_ = a.Map.Remove(r.Context(), taskID)
	a.Logger.Info().
		Str("task_id", taskID).
		Float64("cost", job.Metadata.Cost).
		Msg("job cancelled after billing, archived with cost")
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "deleted": false})
}

// resolveNotification looks up the task behind a notification id, falling
// back to the approximate model-and-prompt match when the direct index
// misses.
func (a *App) resolveNotification(r *http.Request, notificationID, model, prompt string) (*reconcile.Entry, error) {
	taskID, err := a.Map.TaskID(r.Context(), notificationID)
	if err == nil {
		return a.Map.Get(r.Context(), taskID)
	}
	if !errors.Is(err, reconcile.ErrNoMatch) {
		return nil, err
	}
	if model == "" && prompt == "" {
		return nil, reconcile.ErrNoMatch
	}
	return a.Map.FindByPrompt(r.Context(), model, prompt)
}
