// Package providers translates generation requests into the wire formats of
// the supported backends (Runware, WaveSpeed, Fal.ai), submits them, and
// exposes status-by-task-id queries for the polling fallback.
package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
)

// Request captures the provider-independent inputs of a generation job.
// Async selects queued delivery: the submission returns as soon as the
// provider accepts the task. When WebhookURL is also set the outcome arrives
// via callback; otherwise the caller is expected to poll. SourceImage, when
// set, holds the raw bytes of a seed image for image-to-image or
// image-to-video modes.
type Request struct {
	TaskID          string
	JobType         domain.JobType
	Model           string
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	Resolution      string
	DurationSeconds int
	SourceImage     []byte
	Async           bool
	WebhookURL      string
}

// SubmissionResult is the outcome of a submit call. Exactly one of the two
// shapes applies: ResultURL non-empty means the provider completed the work
// inline (sync path); Accepted true means the task was queued and TaskID is
// the correlation id for the webhook or poll that follows. RequestID carries
// a secondary provider-side id when one exists.
type SubmissionResult struct {
	TaskID    string
	RequestID string
	ResultURL string
	Accepted  bool
}

// TaskStatus is a single observation from a status-by-task-id query.
type TaskStatus struct {
	Status       domain.JobStatus
	ResultURL    string
	ErrorMessage string
}

// Gateway is the per-provider submission and status interface.
type Gateway interface {
	Name() domain.Provider
	Submit(ctx context.Context, req Request) (*SubmissionResult, error)
	Status(ctx context.Context, taskID string) (*TaskStatus, error)
}

// ModelStatusGateway is implemented by gateways whose status endpoint is
// addressed by model path in addition to the task id (Fal routes its queue
// under the model).
type ModelStatusGateway interface {
	StatusForModel(ctx context.Context, model, taskID string) (*TaskStatus, error)
}

// ForModel binds a model path to status queries when the gateway needs one.
// Gateways addressed by task id alone are returned unchanged.
func ForModel(g Gateway, model string) Gateway {
	if mg, ok := g.(ModelStatusGateway); ok && model != "" {
		return modelBoundGateway{Gateway: g, statuses: mg, model: model}
	}
	return g
}

type modelBoundGateway struct {
	Gateway
	statuses ModelStatusGateway
	model    string
}

func (g modelBoundGateway) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	return g.statuses.StatusForModel(ctx, g.model, taskID)
}

// Registry holds one constructed gateway per configured provider.
type Registry struct {
	gateways map[domain.Provider]Gateway
}

// NewRegistry wires a gateway for every provider that has credentials
// configured. Providers without an API key are simply absent and requests
// routed to them fail with ErrUnknownProvider.
func NewRegistry(cfg *infra.Config, logger *infra.Logger, httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	r := &Registry{gateways: make(map[domain.Provider]Gateway)}
	if cfg.RunwareAPIKey != "" {
		r.gateways[domain.ProviderRunware] = NewRunwareClient(RunwareOptions{
			APIKey:     cfg.RunwareAPIKey,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	if cfg.WaveSpeedAPIKey != "" {
		r.gateways[domain.ProviderWaveSpeed] = NewWaveSpeedClient(WaveSpeedOptions{
			APIKey:     cfg.WaveSpeedAPIKey,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	if cfg.FalAPIKey != "" {
		r.gateways[domain.ProviderFalAI] = NewFalClient(FalOptions{
			APIKey:     cfg.FalAPIKey,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	return r
}

// Register adds or replaces a gateway. Used by tests and by callers that
// construct gateways with custom transports.
func (r *Registry) Register(g Gateway) {
	if r.gateways == nil {
		r.gateways = make(map[domain.Provider]Gateway)
	}
	r.gateways[g.Name()] = g
}

// Get returns the gateway for a provider, or ErrUnknownProvider.
func (r *Registry) Get(p domain.Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return g, nil
}

// Providers lists the configured providers.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	return out
}

func trimSecret(s string) string {
	return strings.TrimSpace(s)
}
