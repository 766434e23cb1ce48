package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/notify"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/providers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/webhook"
)

type recordingNotifier struct {
	sent []notify.Push
}

func (n *recordingNotifier) Send(ctx context.Context, p notify.Push) error {
	n.sent = append(n.sent, p)
	return nil
}

type acceptingGateway struct {
	provider domain.Provider
	taskID   string
	lastReq  providers.Request
}

func (g *acceptingGateway) Name() domain.Provider { return g.provider }

func (g *acceptingGateway) Submit(ctx context.Context, req providers.Request) (*providers.SubmissionResult, error) {
	g.lastReq = req
	return &providers.SubmissionResult{TaskID: g.taskID, Accepted: true}, nil
}

func (g *acceptingGateway) Status(ctx context.Context, taskID string) (*providers.TaskStatus, error) {
	return &providers.TaskStatus{Status: domain.JobStatusProcessing}, nil
}

func newTestApp(t *testing.T) (*App, *jobstore.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	logger := infra.Logger(zerolog.Nop())
	notifier := &recordingNotifier{}
	registry := &providers.Registry{}
	registry.Register(&acceptingGateway{provider: domain.ProviderRunware, taskID: "abc"})
	cfg := &infra.Config{WebhookBaseURL: "https://api.example.com", WebhookToken: "hook-secret"}
	app := NewApp(
		store, store, reconcile.NewMemoryMap(), registry,
		&webhook.Authenticator{Token: "hook-secret", Required: true, Logger: &logger},
		notifier, nil, cfg, &logger,
	)
	return app, store, notifier
}

func postWebhook(app *App, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.WebhookReceive(rec, req)
	return rec
}

func seedJob(t *testing.T, store jobstore.Store, job domain.PendingJob) {
	t.Helper()
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if err := store.Create(context.Background(), &job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func TestWebhookUnknownShapeRejectedWithoutStoreMutation(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{TaskID: "abc", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware})

	rec := postWebhook(app, "/webhook-receiver?token=hook-secret", `{"mystery":"payload"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}

	job, err := store.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, store must be untouched", job.Status)
	}
}

func TestWebhookMissingTaskIDRejected(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{TaskID: "abc", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware})

	rec := postWebhook(app, "/webhook-receiver?provider=runware&token=hook-secret", `{"imageURL":"https://cdn/x.jpg"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No task ID found") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	job, _ := store.Get(context.Background(), "abc")
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, store must be untouched", job.Status)
	}
}

func TestWebhookUnauthenticatedRejected(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{TaskID: "abc", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware})

	rec := postWebhook(app, "/webhook-receiver?provider=runware&token=wrong", `{"taskUUID":"abc","imageURL":"https://cdn/x.jpg"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	job, _ := store.Get(context.Background(), "abc")
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, store must be untouched", job.Status)
	}
}

func TestWebhookOrphanedTaskAcknowledged(t *testing.T) {
	app, _, _ := newTestApp(t)

	rec := postWebhook(app, "/webhook-receiver?provider=runware&token=hook-secret", `{"taskUUID":"ghost","imageURL":"https://cdn/x.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 for already cleaned up job", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already cleaned up") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAsyncImageHappyPath(t *testing.T) {
	app, store, notifier := newTestApp(t)

	// Submit with delivery_method=async.
	body := `{"job_type":"image","model":"runware:101@1","prompt":"a lighthouse","delivery_method":"async","notification_id":"notif-1","device_token":"dev-token-1","aspect_ratio":"1:1"}`
	genReq := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	genReq.Header.Set("X-User-ID", "u1")
	genRec := httptest.NewRecorder()
	app.Generate(genRec, genReq)
	if genRec.Code != http.StatusAccepted {
		t.Fatalf("generate code = %d: %s", genRec.Code, genRec.Body.String())
	}

	// Provider callback completes the task.
	rec := postWebhook(app, "/webhook-receiver?provider=runware&token=hook-secret",
		`{"taskUUID":"abc","imageURL":"https://cdn/final.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook code = %d: %s", rec.Code, rec.Body.String())
	}

	job, err := store.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if job.ResultURL != "https://cdn/final.jpg" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	if job.CompletedAt == nil {
		t.Fatalf("completedAt must be set on terminal transition")
	}

	// The reconciliation map resolves the task back to the notification.
	notifID, err := app.Map.NotificationID(context.Background(), "abc")
	if err != nil {
		t.Fatalf("notification lookup: %v", err)
	}
	if notifID != "notif-1" {
		t.Fatalf("notification id = %q, want notif-1", notifID)
	}

	// The completion push went out exactly once and was recorded.
	if len(notifier.sent) != 1 {
		t.Fatalf("pushes sent = %d, want 1", len(notifier.sent))
	}
	if notifier.sent[0].DeviceToken != "dev-token-1" {
		t.Fatalf("push device token = %q", notifier.sent[0].DeviceToken)
	}
	if !job.NotificationSent {
		t.Fatalf("notificationSent must be recorded")
	}
}

func TestWebhookDuplicateDeliveryKeepsFirstOutcome(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{TaskID: "abc", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderRunware})

	first := postWebhook(app, "/webhook-receiver?provider=runware&token=hook-secret",
		`{"taskUUID":"abc","imageURL":"https://cdn/first.jpg"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first code = %d", first.Code)
	}
	second := postWebhook(app, "/webhook-receiver?provider=runware&token=hook-secret",
		`{"taskUUID":"abc","error":{"message":"late failure"}}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second code = %d, duplicate delivery must be harmless", second.Code)
	}

	job, _ := store.Get(context.Background(), "abc")
	if job.Status != domain.JobStatusCompleted || job.ResultURL != "https://cdn/first.jpg" {
		t.Fatalf("job = %+v, first terminal outcome must stand", job)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("error message = %q, want empty", job.ErrorMessage)
	}
}

func TestWebhookProcessingLocksCancellation(t *testing.T) {
	app, store, _ := newTestApp(t)
	seedJob(t, store, domain.PendingJob{TaskID: "abc", UserID: "u1", JobType: domain.JobTypeImage, Provider: domain.ProviderWaveSpeed})
	err := app.Map.Associate(context.Background(), reconcile.Entry{
		NotificationID: "notif-1", TaskID: "abc", Model: "m", Prompt: "p", CanCancel: true,
	})
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	rec := postWebhook(app, "/webhook-receiver?provider=wavespeed&token=hook-secret", `{"id":"abc","status":"created"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	entry, err := app.Map.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.CanCancel {
		t.Fatalf("canCancel must flip to false once the provider starts work")
	}
}

// routeParam installs a chi route context carrying one URL parameter, for
// handlers invoked outside a router.
func routeParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
