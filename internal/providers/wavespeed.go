package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/imaging"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
)

const defaultWaveSpeedBaseURL = "https://api.wavespeed.ai/api/v3"

// WaveSpeedOptions configures the WaveSpeed prediction client.
type WaveSpeedOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// WaveSpeedClient submits predictions to per-model endpoints and polls the
// shared predictions result endpoint. The provider assigns the task id, so
// the client-side id is only known after submission.
type WaveSpeedClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type waveSpeedRequest struct {
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
	Image           string `json:"image,omitempty"`
	Size            string `json:"size,omitempty"`
	Duration        int    `json:"duration,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	EnableSyncMode  bool   `json:"enable_sync_mode"`
	WebhookURL      string `json:"webhook_url,omitempty"`
	NumInferenceSteps int  `json:"num_inference_steps,omitempty"`
}

type waveSpeedEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewWaveSpeedClient constructs a client with defaults applied.
func NewWaveSpeedClient(opts WaveSpeedOptions) *WaveSpeedClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultWaveSpeedBaseURL
	}
	return &WaveSpeedClient{
		apiKey:     trimSecret(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Name implements Gateway.
func (c *WaveSpeedClient) Name() domain.Provider {
	return domain.ProviderWaveSpeed
}

// Submit POSTs a prediction to the model endpoint. Sync mode blocks until
// outputs are present; otherwise the provider-assigned prediction id comes
// back immediately and the outcome arrives via webhook or polling.
func (c *WaveSpeedClient) Submit(ctx context.Context, req Request) (*SubmissionResult, error) {
	async := req.Async || req.WebhookURL != ""
	payload := waveSpeedRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		EnableSyncMode: !async,
		WebhookURL:     req.WebhookURL,
	}
	switch req.JobType {
	case domain.JobTypeVideo:
		payload.Duration = req.DurationSeconds
		payload.Resolution = req.Resolution
	default:
		w, h := ResolveSize(req.Model, req.AspectRatio, c.logger)
		payload.Size = fmt.Sprintf("%d*%d", w, h)
	}
	if len(req.SourceImage) > 0 {
		dataURI, err := imaging.SourceImageDataURI(req.SourceImage)
		if err != nil {
			return nil, err
		}
		payload.Image = dataURI
	}

	endpoint := c.baseURL + "/" + strings.TrimPrefix(req.Model, "/")
	data, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		ID      string   `json:"id"`
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("wavespeed: decode prediction: %w", err)
	}
	if decoded.ID == "" {
		return nil, &domain.ProviderError{Provider: domain.ProviderWaveSpeed, Message: "prediction response missing id"}
	}

	if async {
		return &SubmissionResult{TaskID: decoded.ID, Accepted: true}, nil
	}
	if decoded.Error != "" || decoded.Status == "failed" {
		msg := decoded.Error
		if msg == "" {
			msg = "prediction failed"
		}
		return nil, &domain.ProviderError{Provider: domain.ProviderWaveSpeed, Message: msg}
	}
	if len(decoded.Outputs) == 0 || decoded.Outputs[0] == "" {
		return nil, domain.ErrNoResult
	}
	return &SubmissionResult{TaskID: decoded.ID, ResultURL: decoded.Outputs[0]}, nil
}

// Status queries the shared result endpoint for a prediction id.
func (c *WaveSpeedClient) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := c.baseURL + "/predictions/" + url.PathEscape(taskID) + "/result"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope waveSpeedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("wavespeed: decode response: %w", err)
	}
	var decoded struct {
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	}
	if err := json.Unmarshal(envelope.Data, &decoded); err != nil {
		return nil, fmt.Errorf("wavespeed: decode result: %w", err)
	}

	switch {
	case decoded.Status == "completed" && len(decoded.Outputs) > 0 && decoded.Outputs[0] != "":
		return &TaskStatus{Status: domain.JobStatusCompleted, ResultURL: decoded.Outputs[0]}, nil
	case decoded.Status == "failed":
		msg := decoded.Error
		if msg == "" {
			msg = "prediction failed"
		}
		return &TaskStatus{Status: domain.JobStatusFailed, ErrorMessage: msg}, nil
	default:
		return &TaskStatus{Status: domain.JobStatusProcessing}, nil
	}
}

func (c *WaveSpeedClient) post(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wavespeed: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wavespeed: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope waveSpeedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("wavespeed: decode response: %w", err)
	}
	if envelope.Code != 0 && envelope.Code != http.StatusOK {
		return nil, &domain.ProviderError{Provider: domain.ProviderWaveSpeed, Message: envelope.Message}
	}
	return envelope.Data, nil
}
