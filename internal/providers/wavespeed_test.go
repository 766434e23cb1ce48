package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

func newTestWaveSpeedClient(transport *captureTransport) *WaveSpeedClient {
	return NewWaveSpeedClient(WaveSpeedOptions{
		APIKey:     "ws-key",
		BaseURL:    "https://wavespeed.test/api/v3",
		HTTPClient: &http.Client{Transport: transport},
	})
}

func TestWaveSpeedSubmitSync(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/api/v3/wavespeed/flux-dev", map[string]any{
		"code": 200,
		"data": map[string]any{
			"id":      "pred-1",
			"status":  "completed",
			"outputs": []any{"https://cdn.wavespeed.test/out.png"},
		},
	})

	client := newTestWaveSpeedClient(transport)
	result, err := client.Submit(context.Background(), Request{
		JobType:     domain.JobTypeImage,
		Model:       "wavespeed/flux-dev",
		Prompt:      "a harbor at dawn",
		AspectRatio: "16:9",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.TaskID != "pred-1" || result.ResultURL != "https://cdn.wavespeed.test/out.png" {
		t.Fatalf("result = %+v", result)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody(), &payload); err != nil {
		t.Fatalf("decode captured body: %v", err)
	}
	if size := payload["size"]; size != "1344*768" {
		t.Fatalf("size = %v, want 1344*768", size)
	}
	if sync := payload["enable_sync_mode"]; sync != true {
		t.Fatalf("enable_sync_mode = %v, want true without webhook", sync)
	}
}

func TestWaveSpeedSubmitAsync(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/api/v3/wavespeed/flux-dev", map[string]any{
		"code": 200,
		"data": map[string]any{"id": "pred-2", "status": "created"},
	})

	client := newTestWaveSpeedClient(transport)
	result, err := client.Submit(context.Background(), Request{
		JobType:    domain.JobTypeImage,
		Model:      "wavespeed/flux-dev",
		Prompt:     "a harbor at dawn",
		WebhookURL: "https://api.example.com/webhook-receiver?provider=wavespeed",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Accepted || result.TaskID != "pred-2" {
		t.Fatalf("result = %+v, want accepted pred-2", result)
	}
}

func TestWaveSpeedStatusFailed(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/api/v3/predictions/pred-3/result", map[string]any{
		"code": 200,
		"data": map[string]any{"status": "failed", "error": "quota exceeded"},
	})

	client := newTestWaveSpeedClient(transport)
	status, err := client.Status(context.Background(), "pred-3")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.JobStatusFailed || status.ErrorMessage != "quota exceeded" {
		t.Fatalf("status = %+v", status)
	}
}

func TestWaveSpeedEnvelopeErrorCode(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/api/v3/wavespeed/flux-dev", map[string]any{
		"code":    401,
		"message": "invalid api key",
		"data":    map[string]any{},
	})

	client := newTestWaveSpeedClient(transport)
	_, err := client.Submit(context.Background(), Request{
		JobType: domain.JobTypeImage,
		Model:   "wavespeed/flux-dev",
		Prompt:  "a harbor",
	})
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Message != "invalid api key" {
		t.Fatalf("message = %q", pe.Message)
	}
}
