package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/providers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/webhook"
)

// pollingGateway accepts every submission and answers status queries from a
// script, recording what it saw.
type pollingGateway struct {
	taskID   string
	lastReq  providers.Request
	statuses []providers.TaskStatus
	calls    int
}

func (g *pollingGateway) Name() domain.Provider { return domain.ProviderRunware }

func (g *pollingGateway) Submit(ctx context.Context, req providers.Request) (*providers.SubmissionResult, error) {
	g.lastReq = req
	return &providers.SubmissionResult{TaskID: g.taskID, Accepted: true}, nil
}

func (g *pollingGateway) Status(ctx context.Context, taskID string) (*providers.TaskStatus, error) {
	idx := g.calls
	g.calls++
	if idx >= len(g.statuses) {
		idx = len(g.statuses) - 1
	}
	s := g.statuses[idx]
	return &s, nil
}

type recordingUploader struct {
	keys []string
}

func (u *recordingUploader) Write(ctx context.Context, key, contentType string, data []byte) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.test/" + key, nil
}

// newPollTestApp builds an app with no webhook base URL configured, so async
// submissions cannot register a callback. Background work runs inline.
func newPollTestApp(t *testing.T, gw providers.Gateway) (*App, *jobstore.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	logger := infra.Logger(zerolog.Nop())
	notifier := &recordingNotifier{}
	registry := &providers.Registry{}
	registry.Register(gw)
	cfg := &infra.Config{PollInterval: time.Millisecond, PollMaxAttempts: 5}
	app := NewApp(
		store, store, reconcile.NewMemoryMap(), registry,
		&webhook.Authenticator{Token: "hook-secret", Required: true, Logger: &logger},
		notifier, nil, cfg, &logger,
	)
	app.spawn = func(fn func()) { fn() }
	return app, store, notifier
}

func postGenerate(app *App, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	app.Generate(rec, req)
	return rec
}

func TestAsyncWithoutWebhookFallsBackToPolling(t *testing.T) {
	gw := &pollingGateway{
		taskID: "poll-1",
		statuses: []providers.TaskStatus{
			{Status: domain.JobStatusProcessing},
			{Status: domain.JobStatusCompleted, ResultURL: "https://cdn.test/out.jpg"},
		},
	}
	app, store, notifier := newPollTestApp(t, gw)

	rec := postGenerate(app, `{"job_type":"image","model":"runware:101@1","prompt":"a fox","delivery_method":"async","device_token":"dev-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, async submission must be accepted: %s", rec.Code, rec.Body.String())
	}
	if !gw.lastReq.Async {
		t.Fatalf("submission must stay async when no callback can be registered")
	}
	if gw.lastReq.WebhookURL != "" {
		t.Fatalf("webhook url = %q, want empty", gw.lastReq.WebhookURL)
	}
	if gw.calls != 2 {
		t.Fatalf("status calls = %d, want 2", gw.calls)
	}

	job, err := store.Get(context.Background(), "poll-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed via polling", job.Status)
	}
	if job.ResultURL != "https://cdn.test/out.jpg" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].DeviceToken != "dev-1" {
		t.Fatalf("pushes = %+v, want one delivery to dev-1", notifier.sent)
	}
}

func TestAsyncPollingBudgetExhaustedMarksJobFailed(t *testing.T) {
	gw := &pollingGateway{
		taskID:   "poll-2",
		statuses: []providers.TaskStatus{{Status: domain.JobStatusProcessing}},
	}
	app, store, _ := newPollTestApp(t, gw)

	rec := postGenerate(app, `{"job_type":"image","model":"runware:101@1","prompt":"a fox","delivery_method":"async"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if gw.calls != 5 {
		t.Fatalf("status calls = %d, want exactly the attempt budget", gw.calls)
	}

	job, err := store.Get(context.Background(), "poll-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed after budget exhaustion", job.Status)
	}
	if job.ErrorMessage != "Generation timed out" {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
}

func TestAsyncPollingProviderFailureRecorded(t *testing.T) {
	gw := &pollingGateway{
		taskID: "poll-3",
		statuses: []providers.TaskStatus{
			{Status: domain.JobStatusFailed, ErrorMessage: "nsfw content rejected"},
		},
	}
	app, store, _ := newPollTestApp(t, gw)

	rec := postGenerate(app, `{"job_type":"image","model":"runware:101@1","prompt":"a fox","delivery_method":"async"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}

	job, _ := store.Get(context.Background(), "poll-3")
	if job.Status != domain.JobStatusFailed || job.ErrorMessage != "nsfw content rejected" {
		t.Fatalf("job = %+v, want provider failure recorded", job)
	}
}

func TestGenerateRecordsSourceImageLocation(t *testing.T) {
	gw := &pollingGateway{
		taskID:   "poll-4",
		statuses: []providers.TaskStatus{{Status: domain.JobStatusCompleted, ResultURL: "https://cdn.test/out.jpg"}},
	}
	app, store, _ := newPollTestApp(t, gw)
	uploader := &recordingUploader{}
	app.Uploads = uploader

	seed := base64.StdEncoding.EncodeToString([]byte("seed-bytes"))
	body := fmt.Sprintf(`{"job_type":"image","model":"runware:101@1","prompt":"a fox","delivery_method":"async","source_image":"%s"}`, seed)
	rec := postGenerate(app, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if len(uploader.keys) != 1 || uploader.keys[0] != "u1/poll-4-source.jpg" {
		t.Fatalf("uploaded keys = %v", uploader.keys)
	}

	job, err := store.Get(context.Background(), "poll-4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Metadata.SourceImageURL != "https://cdn.test/u1/poll-4-source.jpg" {
		t.Fatalf("source image url = %q", job.Metadata.SourceImageURL)
	}
	if job.Metadata.Prompt != "a fox" {
		t.Fatalf("prompt = %q, enrichment must not clobber existing metadata", job.Metadata.Prompt)
	}
}
