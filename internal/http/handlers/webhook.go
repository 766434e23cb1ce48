package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/notify"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookReceive handles provider callbacks for all three backends. The
// request moves through authenticate, normalize and apply steps; a rejection
// at any step leaves the store untouched. A callback for a row that no
// longer exists is acknowledged with 200, since the provider retries
// non-2xx deliveries and a cleaned-up job is not a delivery failure.
func (a *App) WebhookReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	provider, err := a.webhookProvider(r, body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "unknown_provider", "payload matches no known provider shape")
		return
	}

	if err := a.Auth.Authenticate(provider, r, body); err != nil {
		a.Logger.Warn().
			Str("provider", string(provider)).
			Err(err).
			Msg("webhook authentication failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}

	result, err := webhook.Parse(provider, body)
	if err != nil {
		if errors.Is(err, domain.ErrMissingTaskID) {
			a.error(w, http.StatusBadRequest, "bad_request", "No task ID found")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "malformed payload")
		return
	}

	if err := a.Store.UpdateStatus(r.Context(), result.TaskID, result.Status, result.ResultURL, result.ErrorMessage); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, map[string]any{
				"status":  "ok",
				"details": "job not found, already cleaned up",
			})
			return
		}
		a.Logger.Error().
			Str("task_id", result.TaskID).
			Err(err).
			Msg("webhook store update failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply update")
		return
	}

	a.Logger.Info().
		Str("provider", string(provider)).
		Str("task_id", result.TaskID).
		Str("status", string(result.Status)).
		Msg("webhook applied")

	switch result.Status {
	case domain.JobStatusProcessing:
		// Billable work has started; cancellation can no longer delete.
		if err := a.Map.SetCanCancel(r.Context(), result.TaskID, false); err != nil {
			a.Logger.Debug().Str("task_id", result.TaskID).Err(err).Msg("no reconciliation entry to lock")
		}
	case domain.JobStatusCompleted:
		a.notifyCompletion(r.Context(), result.TaskID, result.ResultURL)
	}

	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"job": map[string]any{
			"task_id": result.TaskID,
			"status":  result.Status,
		},
	})
}

// webhookProvider resolves the provider from the query parameter, falling
// back to payload-shape detection.
func (a *App) webhookProvider(r *http.Request, body []byte) (domain.Provider, error) {
	switch strings.ToLower(r.URL.Query().Get("provider")) {
	case "runware":
		return domain.ProviderRunware, nil
	case "wavespeed":
		return domain.ProviderWaveSpeed, nil
	case "falai", "fal":
		return domain.ProviderFalAI, nil
	case "":
		return webhook.Detect(body)
	default:
		return "", domain.ErrUnknownProvider
	}
}

// notifyCompletion delivers the completion push at most once per job.
// Failures here are logged and swallowed; the webhook response must not
// depend on the push relay being up.
func (a *App) notifyCompletion(ctx context.Context, taskID, resultURL string) {
	job, err := a.Store.Get(ctx, taskID)
	if err != nil || job == nil {
		return
	}
	if job.DeviceToken == "" || job.NotificationSent {
		return
	}
	push := notify.Push{
		DeviceToken: job.DeviceToken,
		Title:       "Generation complete",
		Body:        "Your " + string(job.JobType) + " is ready",
		TaskID:      taskID,
		ResultURL:   resultURL,
	}
	if err := a.Notifier.Send(ctx, push); err != nil {
		a.Logger.Warn().Str("task_id", taskID).Err(err).Msg("push delivery failed")
		return
	}
	if err := a.Store.MarkNotificationSent(ctx, taskID); err != nil {
		a.Logger.Warn().Str("task_id", taskID).Err(err).Msg("failed to record push delivery")
	}
}
