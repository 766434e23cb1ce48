// Package jobstore persists pending generation jobs and the append-only
// media history they are archived into. Two durable backends are provided:
// Postgres (direct pgx) and Supabase (PostgREST), selected by
// JOB_STORE_BACKEND, plus an in-memory store for development and tests.
package jobstore

import (
	"context"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

// Store is the durable ledger of in-flight generation jobs.
//
// UpdateStatus carries the concurrency contract the webhook receiver relies
// on: it is idempotent for repeated identical terminal outcomes, and it
// silently ignores an attempt to overwrite an already-terminal row with a
// different outcome. The guard lives inside the store's own conditional
// update, so no external locking is needed even under duplicate concurrent
// webhook delivery for the same task id.
type Store interface {
	Create(ctx context.Context, job *domain.PendingJob) error
	Get(ctx context.Context, taskID string) (*domain.PendingJob, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PendingJob, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.JobStatus, resultURL, errorMessage string) error
	UpdateProvider(ctx context.Context, taskID string, provider domain.Provider) error
	UpdateMetadata(ctx context.Context, taskID string, meta domain.Metadata) error
	MarkNotificationSent(ctx context.Context, taskID string) error
	Delete(ctx context.Context, taskID string) error
	CleanupByAge(ctx context.Context, statuses []domain.JobStatus, olderThan time.Time) (int64, error)
	ReapOrphaned(ctx context.Context, olderThan time.Time) (int64, error)
	ListStuck(ctx context.Context, olderThan time.Time) ([]domain.PendingJob, error)
}

// Archive appends failure records to the user_media history table. Rows are
// written before the corresponding pending row is deleted and are never
// mutated afterwards.
type Archive interface {
	Record(ctx context.Context, rec domain.MediaRecord) error
}
