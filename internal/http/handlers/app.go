// Package handlers implements the HTTP surface: generation submission, job
// queries, cancellation, and the provider webhook receiver.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/notify"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/providers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/storage"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/webhook"
)

// App carries the request handlers' dependencies. It is constructed once at
// startup and shared across requests; all mutable state lives behind the
// store and the reconciliation map.
type App struct {
	Store    jobstore.Store
	Archive  jobstore.Archive
	Map      reconcile.Map
	Gateways *providers.Registry
	Auth     *webhook.Authenticator
	Notifier notify.Notifier
	Uploads  storage.Uploader
	Config   *infra.Config
	Logger   *infra.Logger
	Validate *validator.Validate

	// spawn runs background work started by a handler, normally in a fresh
	// goroutine. Tests substitute a synchronous runner.
	spawn func(fn func())
}

// NewApp wires an App with a fresh validator instance.
func NewApp(store jobstore.Store, archive jobstore.Archive, m reconcile.Map, gateways *providers.Registry, auth *webhook.Authenticator, notifier notify.Notifier, uploads storage.Uploader, cfg *infra.Config, logger *infra.Logger) *App {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &App{
		Store:    store,
		Archive:  archive,
		Map:      m,
		Gateways: gateways,
		Auth:     auth,
		Notifier: notifier,
		Uploads:  uploads,
		Config:   cfg,
		Logger:   logger,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		spawn:    func(fn func()) { go fn() },
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, details string) {
	a.json(w, code, map[string]any{
		"status":  "error",
		"error":   errCode,
		"details": details,
	})
}

// currentUserID resolves the caller's identity. Requests arrive from the
// mobile client with the Supabase user id in a header.
func (a *App) currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
