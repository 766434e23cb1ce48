package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

const (
	pendingJobsTable = "pending_jobs"
	userMediaTable   = "user_media"
)

// SupabaseStore implements Store and Archive against a Supabase project's
// PostgREST endpoint, for deployments where the service shares tables with
// the hosted backend instead of owning a database.
type SupabaseStore struct {
	client *postgrest.Client
	now    func() time.Time
}

// NewSupabaseStore builds a store talking to {projectURL}/rest/v1 with the
// service role key.
func NewSupabaseStore(projectURL, serviceKey string) (*SupabaseStore, error) {
	client := postgrest.NewClient(strings.TrimRight(projectURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("init postgrest client: %w", client.ClientError)
	}
	return &SupabaseStore{client: client, now: time.Now}, nil
}

// pendingJobRow mirrors the pending_jobs columns. Pointers mark nullable
// columns; omitempty keeps nulls out of insert payloads.
type pendingJobRow struct {
	TaskID           string          `json:"task_id"`
	UserID           string          `json:"user_id"`
	JobType          string          `json:"job_type"`
	Provider         string          `json:"provider"`
	Status           string          `json:"status"`
	ResultURL        *string         `json:"result_url,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	DeviceToken      *string         `json:"device_token,omitempty"`
	NotificationSent bool            `json:"notification_sent"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

func (r pendingJobRow) toDomain() (domain.PendingJob, error) {
	job := domain.PendingJob{
		TaskID:           r.TaskID,
		UserID:           r.UserID,
		JobType:          domain.JobType(r.JobType),
		Provider:         domain.Provider(r.Provider),
		Status:           domain.JobStatus(r.Status),
		NotificationSent: r.NotificationSent,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		CompletedAt:      r.CompletedAt,
	}
	if r.ResultURL != nil {
		job.ResultURL = *r.ResultURL
	}
	if r.ErrorMessage != nil {
		job.ErrorMessage = *r.ErrorMessage
	}
	if r.DeviceToken != nil {
		job.DeviceToken = *r.DeviceToken
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &job.Metadata); err != nil {
			return job, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return job, nil
}

func (s *SupabaseStore) Create(_ context.Context, job *domain.PendingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	status := job.Status
	if status == "" {
		status = domain.JobStatusPending
	}
	row := pendingJobRow{
		TaskID:   job.TaskID,
		UserID:   job.UserID,
		JobType:  string(job.JobType),
		Provider: string(job.Provider),
		Status:   string(status),
		Metadata: domain.MustMarshal(job.Metadata),
	}
	if job.DeviceToken != "" {
		row.DeviceToken = &job.DeviceToken
	}
	var inserted []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "23505") {
			return domain.ErrDuplicateTaskID
		}
		return fmt.Errorf("insert pending job: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Get(_ context.Context, taskID string) (*domain.PendingJob, error) {
	data, _, err := s.client.From(pendingJobsTable).
		Select("*", "", false).
		Eq("task_id", taskID).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}
	var rows []pendingJobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode pending job: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	job, err := rows[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *SupabaseStore) ListByUser(_ context.Context, userID string) ([]domain.PendingJob, error) {
	data, _, err := s.client.From(pendingJobsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	var rows []pendingJobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode pending jobs: %w", err)
	}
	jobs := make([]domain.PendingJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpdateStatus applies the terminal-state guard server side: the update is
// filtered to rows that are not yet completed or failed, so a duplicate or
// conflicting callback matches zero rows atomically.
func (s *SupabaseStore) UpdateStatus(ctx context.Context, taskID string, status domain.JobStatus, resultURL, errorMessage string) error {
	if resultURL != "" && errorMessage != "" {
		return domain.ErrConflictingOutcome
	}
	payload := map[string]any{
		"status":     string(status),
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	if resultURL != "" {
		payload["result_url"] = resultURL
	}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	if status.Terminal() {
		payload["completed_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}
	var updated []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Update(payload, "representation", "").
		Eq("task_id", taskID).
		Neq("status", string(domain.JobStatusCompleted)).
		Neq("status", string(domain.JobStatusFailed)).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if len(updated) > 0 {
		return nil
	}
	// Zero rows: distinguish "already terminal" (no-op) from "gone".
	if _, err := s.Get(ctx, taskID); err != nil {
		return err
	}
	return nil
}

func (s *SupabaseStore) UpdateProvider(ctx context.Context, taskID string, provider domain.Provider) error {
	return s.patch(ctx, taskID, map[string]any{"provider": string(provider)})
}

func (s *SupabaseStore) UpdateMetadata(ctx context.Context, taskID string, meta domain.Metadata) error {
	return s.patch(ctx, taskID, map[string]any{"metadata": json.RawMessage(domain.MustMarshal(meta))})
}

func (s *SupabaseStore) MarkNotificationSent(ctx context.Context, taskID string) error {
	return s.patch(ctx, taskID, map[string]any{"notification_sent": true})
}

func (s *SupabaseStore) patch(_ context.Context, taskID string, fields map[string]any) error {
	fields["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
	var updated []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Update(fields, "representation", "").
		Eq("task_id", taskID).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("update pending job: %w", err)
	}
	if len(updated) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) Delete(_ context.Context, taskID string) error {
	var deleted []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Delete("representation", "").
		Eq("task_id", taskID).
		ExecuteTo(&deleted)
	if err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	if len(deleted) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) CleanupByAge(_ context.Context, statuses []domain.JobStatus, olderThan time.Time) (int64, error) {
	list := make([]string, len(statuses))
	for i, st := range statuses {
		list[i] = string(st)
	}
	var deleted []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Delete("representation", "").
		In("status", list).
		Lt("updated_at", olderThan.UTC().Format(time.RFC3339Nano)).
		ExecuteTo(&deleted)
	if err != nil {
		return 0, fmt.Errorf("cleanup by age: %w", err)
	}
	return int64(len(deleted)), nil
}

func (s *SupabaseStore) ReapOrphaned(_ context.Context, olderThan time.Time) (int64, error) {
	var deleted []pendingJobRow
	_, err := s.client.From(pendingJobsTable).
		Delete("representation", "").
		Eq("status", string(domain.JobStatusPending)).
		Lt("created_at", olderThan.UTC().Format(time.RFC3339Nano)).
		ExecuteTo(&deleted)
	if err != nil {
		return 0, fmt.Errorf("reap orphaned: %w", err)
	}
	return int64(len(deleted)), nil
}

func (s *SupabaseStore) ListStuck(_ context.Context, olderThan time.Time) ([]domain.PendingJob, error) {
	data, _, err := s.client.From(pendingJobsTable).
		Select("*", "", false).
		In("status", []string{string(domain.JobStatusPending), string(domain.JobStatusProcessing)}).
		Lt("created_at", olderThan.UTC().Format(time.RFC3339Nano)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	var rows []pendingJobRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode stuck jobs: %w", err)
	}
	jobs := make([]domain.PendingJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type mediaRow struct {
	UserID       string  `json:"user_id"`
	TaskID       string  `json:"task_id"`
	MediaType    string  `json:"media_type"`
	Status       string  `json:"status"`
	ModelName    string  `json:"model_name,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

func (s *SupabaseStore) Record(_ context.Context, rec domain.MediaRecord) error {
	row := mediaRow{
		UserID:       rec.UserID,
		TaskID:       rec.TaskID,
		MediaType:    string(rec.MediaType),
		Status:       string(rec.Status),
		ModelName:    rec.Model,
		Prompt:       rec.Prompt,
		Cost:         rec.Cost,
		ErrorMessage: rec.ErrorMessage,
	}
	var inserted []mediaRow
	_, err := s.client.From(userMediaTable).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return fmt.Errorf("insert media record: %w", err)
	}
	return nil
}

var (
	_ Store   = (*SupabaseStore)(nil)
	_ Archive = (*SupabaseStore)(nil)
)
