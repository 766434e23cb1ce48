package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/imaging"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
)

const defaultRunwareBaseURL = "https://api.runware.ai/v1"

// RunwareOptions configures the Runware task-array client.
type RunwareOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// RunwareClient speaks the Runware batch protocol: every call POSTs a JSON
// array whose first element is an authentication task and whose second is
// the actual work item (imageInference, videoInference, imageUpload or
// getResponse).
type RunwareClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// runwareTask is one element of the request array. Resolution is not a wire
// field; quirks translate it into provider settings where a model needs it.
type runwareTask struct {
	TaskType         string         `json:"taskType"`
	TaskUUID         string         `json:"taskUUID,omitempty"`
	APIKey           string         `json:"apiKey,omitempty"`
	Model            string         `json:"model,omitempty"`
	PositivePrompt   string         `json:"positivePrompt,omitempty"`
	NegativePrompt   string         `json:"negativePrompt,omitempty"`
	Width            int            `json:"width,omitempty"`
	Height           int            `json:"height,omitempty"`
	NumberResults    int            `json:"numberResults,omitempty"`
	OutputType       string         `json:"outputType,omitempty"`
	OutputFormat     string         `json:"outputFormat,omitempty"`
	Steps            int            `json:"steps,omitempty"`
	CFGScale         float64        `json:"CFGScale,omitempty"`
	SeedImage        string         `json:"seedImage,omitempty"`
	Duration         int            `json:"duration,omitempty"`
	DeliveryMethod   string         `json:"deliveryMethod,omitempty"`
	WebhookURL       string         `json:"webhookURL,omitempty"`
	Image            string         `json:"image,omitempty"`
	ProviderSettings map[string]any `json:"providerSettings,omitempty"`

	Resolution string `json:"-"`
}

func (t *runwareTask) setProviderSetting(key string, value any) {
	if t.ProviderSettings == nil {
		t.ProviderSettings = make(map[string]any)
	}
	t.ProviderSettings[key] = value
}

type runwareEnvelope struct {
	Data   []map[string]any `json:"data"`
	Errors []struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		TaskUUID string `json:"taskUUID"`
	} `json:"errors"`
}

// NewRunwareClient constructs a client with defaults applied.
func NewRunwareClient(opts RunwareOptions) *RunwareClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultRunwareBaseURL
	}
	return &RunwareClient{
		apiKey:     trimSecret(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Name implements Gateway.
func (c *RunwareClient) Name() domain.Provider {
	return domain.ProviderRunware
}

// Submit builds the inference task, uploads the seed image first when one is
// present, and POSTs the task array. Async submissions return as soon as the
// task is accepted, with or without a webhook registered; sync submissions
// block until the provider responds with a result URL.
func (c *RunwareClient) Submit(ctx context.Context, req Request) (*SubmissionResult, error) {
	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	task := runwareTask{
		TaskUUID:       taskID,
		Model:          req.Model,
		PositivePrompt: req.Prompt,
		NegativePrompt: req.NegativePrompt,
		NumberResults:  1,
		OutputType:     "URL",
		Resolution:     req.Resolution,
	}
	switch req.JobType {
	case domain.JobTypeVideo:
		task.TaskType = "videoInference"
		task.Duration = req.DurationSeconds
	default:
		task.TaskType = "imageInference"
		task.Width, task.Height = ResolveSize(req.Model, req.AspectRatio, c.logger)
	}

	if len(req.SourceImage) > 0 {
		assetID, err := c.uploadImage(ctx, req.SourceImage)
		if err != nil {
			return nil, err
		}
		task.SeedImage = assetID
	}

	async := req.Async || req.WebhookURL != ""
	if async {
		task.DeliveryMethod = "async"
		task.WebhookURL = req.WebhookURL
	}

	applied := applyQuirks(&task)
	if c.logger != nil && len(applied) > 0 {
		c.logger.Debug().
			Str("model", req.Model).
			Strs("quirks", applied).
			Msg("runware: applied model quirks")
	}

	envelope, err := c.post(ctx, []runwareTask{c.authTask(), task})
	if err != nil {
		return nil, err
	}
	if err := envelope.errorFor(taskID); err != nil {
		return nil, err
	}

	if async {
		return &SubmissionResult{TaskID: taskID, Accepted: true}, nil
	}

	resultURL := envelope.resultURL(taskID)
	if resultURL == "" {
		return nil, domain.ErrNoResult
	}
	return &SubmissionResult{TaskID: taskID, ResultURL: resultURL}, nil
}

// Status queries the outcome of a previously submitted task via a
// getResponse task.
func (c *RunwareClient) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	envelope, err := c.post(ctx, []runwareTask{
		c.authTask(),
		{TaskType: "getResponse", TaskUUID: taskID},
	})
	if err != nil {
		return nil, err
	}
	if err := envelope.errorFor(taskID); err != nil {
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			return &TaskStatus{Status: domain.JobStatusFailed, ErrorMessage: pe.Message}, nil
		}
		return nil, err
	}
	if url := envelope.resultURL(taskID); url != "" {
		return &TaskStatus{Status: domain.JobStatusCompleted, ResultURL: url}, nil
	}
	return &TaskStatus{Status: domain.JobStatusProcessing}, nil
}

// uploadImage normalizes the seed image and registers it as a provider
// asset, returning the asset id referenced by seedImage.
func (c *RunwareClient) uploadImage(ctx context.Context, raw []byte) (string, error) {
	dataURI, err := imaging.SourceImageDataURI(raw)
	if err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	envelope, err := c.post(ctx, []runwareTask{
		c.authTask(),
		{TaskType: "imageUpload", TaskUUID: uploadID, Image: dataURI},
	})
	if err != nil {
		return "", err
	}
	if err := envelope.errorFor(uploadID); err != nil {
		return "", err
	}
	for _, item := range envelope.Data {
		if pickString(item, "taskUUID", "taskUuid", "task_uuid") != uploadID {
			continue
		}
		if id := pickString(item, "imageUUID", "imageUuid", "image_uuid"); id != "" {
			return id, nil
		}
	}
	return "", &domain.ProviderError{Provider: domain.ProviderRunware, Message: "upload returned no asset id"}
}

func (c *RunwareClient) authTask() runwareTask {
	return runwareTask{TaskType: "authentication", APIKey: c.apiKey}
}

func (c *RunwareClient) post(ctx context.Context, tasks []runwareTask) (*runwareEnvelope, error) {
	body, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("runware: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runware: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runware: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("runware: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope runwareEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("runware: decode response: %w", err)
	}
	return &envelope, nil
}

// errorFor returns a ProviderError when the envelope carries an explicit
// error for the given task (or an untagged global error).
func (e *runwareEnvelope) errorFor(taskID string) error {
	for _, item := range e.Errors {
		if item.TaskUUID == "" || item.TaskUUID == taskID {
			msg := item.Message
			if msg == "" {
				msg = item.Code
			}
			return &domain.ProviderError{Provider: domain.ProviderRunware, Message: msg}
		}
	}
	return nil
}

// resultURL extracts the media URL for a task from the data array. Key
// casing differs across task types and API revisions, so each field is
// probed under its known spellings.
func (e *runwareEnvelope) resultURL(taskID string) string {
	for _, item := range e.Data {
		id := pickString(item, "taskUUID", "taskUuid", "task_uuid")
		if id != "" && id != taskID {
			continue
		}
		if url := pickString(item, "imageURL", "imageUrl", "image_url"); url != "" {
			return url
		}
		if url := pickString(item, "videoURL", "videoUrl", "video_url"); url != "" {
			return url
		}
	}
	return ""
}

// pickString returns the first non-empty string value found under any of
// the candidate keys.
func pickString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
