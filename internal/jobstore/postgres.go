package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/sqlinline"
)

// PostgresStore implements Store and Archive against Postgres through the
// marked-SQL runner.
type PostgresStore struct {
	sql infra.SQLExecutor
}

func NewPostgresStore(runner infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{sql: runner}
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.PendingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	_, err := s.sql.Exec(ctx, sqlinline.QInsertPendingJob,
		job.TaskID,
		job.UserID,
		job.JobType,
		job.Provider,
		job.Status,
		domain.MustMarshal(job.Metadata),
		nullable(job.DeviceToken),
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return domain.ErrDuplicateTaskID
		}
		return fmt.Errorf("insert pending job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, taskID string) (*domain.PendingJob, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectPendingJob, taskID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select pending job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]domain.PendingJob, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListPendingJobsByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.PendingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, taskID string, status domain.JobStatus, resultURL, errorMessage string) error {
	if resultURL != "" && errorMessage != "" {
		return domain.ErrConflictingOutcome
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QUpdateJobStatus, taskID, status, resultURL, errorMessage)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Zero rows means either the row is gone or it already reached a
	// terminal status. The latter is the idempotency no-op.
	var current domain.JobStatus
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectJobStatusOnly, taskID).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	if current.Terminal() {
		return nil
	}
	return fmt.Errorf("update job status: no rows updated for %s", taskID)
}

func (s *PostgresStore) UpdateProvider(ctx context.Context, taskID string, provider domain.Provider) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QUpdateJobProvider, taskID, provider)
	if err != nil {
		return fmt.Errorf("update job provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, taskID string, meta domain.Metadata) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QUpdateJobMetadata, taskID, domain.MustMarshal(meta))
	if err != nil {
		return fmt.Errorf("update job metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkNotificationSent(ctx context.Context, taskID string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QMarkNotificationSent, taskID)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, taskID string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeletePendingJob, taskID)
	if err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CleanupByAge(ctx context.Context, statuses []domain.JobStatus, olderThan time.Time) (int64, error) {
	list := make([]string, len(statuses))
	for i, st := range statuses {
		list[i] = string(st)
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QCleanupByAge, list, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cleanup by age: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ReapOrphaned(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QReapOrphaned, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reap orphaned: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, olderThan time.Time) ([]domain.PendingJob, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListStuckJobs, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.PendingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Record(ctx context.Context, rec domain.MediaRecord) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertMediaRecord,
		rec.UserID,
		rec.TaskID,
		rec.MediaType,
		rec.Status,
		rec.Model,
		rec.Prompt,
		rec.Cost,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert media record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.PendingJob, error) {
	var job domain.PendingJob
	var metaBytes []byte
	if err := row.Scan(
		&job.TaskID,
		&job.UserID,
		&job.JobType,
		&job.Provider,
		&job.Status,
		&job.ResultURL,
		&job.ErrorMessage,
		&metaBytes,
		&job.DeviceToken,
		&job.NotificationSent,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Archive = (*PostgresStore)(nil)
)
