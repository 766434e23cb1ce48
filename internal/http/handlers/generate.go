package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/providers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
)

type generateRequest struct {
	JobType         string  `json:"job_type" validate:"required,oneof=image video"`
	Provider        string  `json:"provider" validate:"omitempty,oneof=runware wavespeed falai"`
	Model           string  `json:"model" validate:"required"`
	Prompt          string  `json:"prompt" validate:"required,max=4000"`
	NegativePrompt  string  `json:"negative_prompt" validate:"omitempty,max=4000"`
	AspectRatio     string  `json:"aspect_ratio"`
	Resolution      string  `json:"resolution"`
	DurationSeconds int     `json:"duration_seconds" validate:"omitempty,min=1,max=60"`
	DeliveryMethod  string  `json:"delivery_method" validate:"omitempty,oneof=sync async"`
	NotificationID  string  `json:"notification_id"`
	DeviceToken     string  `json:"device_token"`
	SourceImage     string  `json:"source_image"`
	Cost            float64 `json:"cost" validate:"omitempty,min=0"`
	Title           string  `json:"title" validate:"omitempty,max=200"`
}

// Generate submits a generation request. delivery_method=sync blocks until
// the provider returns a result URL; async creates a pending job row,
// registers the webhook callback, and links the client notification to the
// provider task in the reconciliation map.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	providerName := domain.Provider(req.Provider)
	if providerName == "" {
		providerName = domain.ProviderRunware
	}
	gateway, err := a.Gateways.Get(providerName)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported provider")
		return
	}

	var sourceImage []byte
	if req.SourceImage != "" {
		sourceImage, err = base64.StdEncoding.DecodeString(req.SourceImage)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "source_image is not valid base64")
			return
		}
	}

	async := req.DeliveryMethod == "async"
	submission := providers.Request{
		TaskID:          uuid.NewString(),
		JobType:         domain.JobType(req.JobType),
		Model:           req.Model,
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		DurationSeconds: req.DurationSeconds,
		SourceImage:     sourceImage,
		Async:           async,
	}
	if async {
		// Without a configured public base URL no callback can be
		// registered; the submission stays async and the outcome is
		// recovered by the polling fallback below.
		submission.WebhookURL = a.callbackURL(providerName)
	}

	result, err := gateway.Submit(r.Context(), submission)
	if err != nil {
		a.Logger.Error().
			Str("provider", string(providerName)).
			Str("model", req.Model).
			Err(err).
			Msg("provider submission failed")
		a.submitError(w, err)
		return
	}

	if !result.Accepted {
		a.json(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"result_url": result.ResultURL,
		})
		return
	}

	job := &domain.PendingJob{
		TaskID:      result.TaskID,
		UserID:      userID,
		JobType:     domain.JobType(req.JobType),
		Provider:    providerName,
		Status:      domain.JobStatusPending,
		DeviceToken: req.DeviceToken,
		Metadata: domain.Metadata{
			Model:           req.Model,
			Prompt:          req.Prompt,
			AspectRatio:     req.AspectRatio,
			Cost:            req.Cost,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
			Title:           req.Title,
			RequestID:       result.RequestID,
			NotificationID:  req.NotificationID,
		},
	}
	if err := a.Store.Create(r.Context(), job); err != nil {
		a.Logger.Error().Str("task_id", result.TaskID).Err(err).Msg("failed to persist pending job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist job")
		return
	}

	if req.NotificationID != "" {
		entry := reconcile.Entry{
			NotificationID: req.NotificationID,
			TaskID:         result.TaskID,
			Model:          req.Model,
			Prompt:         req.Prompt,
			CanCancel:      true,
		}
		if err := a.Map.Associate(r.Context(), entry); err != nil {
			a.Logger.Warn().Str("task_id", result.TaskID).Err(err).Msg("failed to associate notification")
		}
	}

	a.persistSourceImage(r.Context(), userID, job, sourceImage)

	if submission.WebhookURL == "" {
		a.spawn(func() { a.pollOutcome(gateway, job) })
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"status": "ok",
		"job": map[string]any{
			"task_id":  result.TaskID,
			"status":   domain.JobStatusPending,
			"provider": providerName,
		},
	})
}

// callbackURL builds the webhook endpoint registered with the provider.
func (a *App) callbackURL(provider domain.Provider) string {
	if a.Config == nil || a.Config.WebhookBaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("provider", string(provider))
	if a.Config.WebhookToken != "" && provider != domain.ProviderFalAI {
		q.Set("token", a.Config.WebhookToken)
	}
	return a.Config.WebhookBaseURL + "/webhook-receiver?" + q.Encode()
}

// persistSourceImage keeps the seed image so a failed job can be resubmitted
// without re-uploading from the device, and records where it landed in the
// job metadata. Best effort.
func (a *App) persistSourceImage(ctx context.Context, userID string, job *domain.PendingJob, data []byte) {
	if a.Uploads == nil || len(data) == 0 {
		return
	}
	key := userID + "/" + job.TaskID + "-source.jpg"
	storedURL, err := a.Uploads.Write(ctx, key, "image/jpeg", data)
	if err != nil {
		a.Logger.Warn().Str("task_id", job.TaskID).Err(err).Msg("failed to persist source image")
		return
	}
	meta := job.Metadata.Merge(domain.Metadata{SourceImageURL: storedURL})
	if err := a.Store.UpdateMetadata(ctx, job.TaskID, meta); err != nil {
		a.Logger.Warn().Str("task_id", job.TaskID).Err(err).Msg("failed to record source image location")
	}
}

// pollOutcome drives the polling fallback for an accepted job with no
// registered webhook. The observed outcome flows through the same store
// update as a webhook delivery, so the terminal-state guard arbitrates any
// race between the two.
func (a *App) pollOutcome(gateway providers.Gateway, job *domain.PendingJob) {
	ctx := context.Background()
	opts := providers.PollOptions{Logger: a.Logger}
	if a.Config != nil {
		opts.Interval = a.Config.PollInterval
		opts.MaxAttempts = a.Config.PollMaxAttempts
		if job.JobType == domain.JobTypeVideo {
			opts.InitialDelay = a.Config.VideoPollDelay
		}
	}

	resultURL, err := providers.Await(ctx, providers.ForModel(gateway, job.Metadata.Model), job.TaskID, opts)

	status := domain.JobStatusCompleted
	errorMessage := ""
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTimeout):
		status, errorMessage = domain.JobStatusFailed, "Generation timed out"
	case errors.Is(err, domain.ErrNoResult):
		status, errorMessage = domain.JobStatusFailed, domain.ErrNoResult.Error()
	default:
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			// Cancellation or persistent transport failure; no outcome was
			// observed, so leave the row to the webhook or the reaper.
			a.Logger.Warn().Str("task_id", job.TaskID).Err(err).Msg("polling ended without an outcome")
			return
		}
		status, errorMessage = domain.JobStatusFailed, pe.Message
	}

	if err := a.Store.UpdateStatus(ctx, job.TaskID, status, resultURL, errorMessage); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.Logger.Debug().Str("task_id", job.TaskID).Msg("polled job already cleaned up")
			return
		}
		a.Logger.Error().Str("task_id", job.TaskID).Err(err).Msg("failed to apply polled outcome")
		return
	}
	a.Logger.Info().
		Str("task_id", job.TaskID).
		Str("status", string(status)).
		Msg("polled outcome applied")
	if status == domain.JobStatusCompleted {
		a.notifyCompletion(ctx, job.TaskID, resultURL)
	}
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	var pe *domain.ProviderError
	var httpErr *domain.HTTPError
	switch {
	case errors.As(err, &pe):
		a.error(w, http.StatusBadGateway, "provider_error", pe.Message)
	case errors.As(err, &httpErr):
		a.error(w, http.StatusBadGateway, "provider_error", httpErr.Error())
	case errors.Is(err, domain.ErrNoResult):
		a.error(w, http.StatusBadGateway, "no_result", domain.ErrNoResult.Error())
	case errors.Is(err, domain.ErrEncoding):
		a.error(w, http.StatusBadRequest, "bad_request", "source image could not be encoded")
	case errors.Is(err, domain.ErrTimeout):
		a.error(w, http.StatusGatewayTimeout, "timeout", domain.ErrTimeout.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "submission failed")
	}
}
