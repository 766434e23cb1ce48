package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

// MemoryStore is an in-memory Store and Archive for development and tests.
// It applies the same terminal-state guard as the durable backends.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.PendingJob
	archived []domain.MediaRecord
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.PendingJob),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *domain.PendingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.TaskID]; ok {
		return domain.ErrDuplicateTaskID
	}
	stored := *job
	if stored.Status == "" {
		stored.Status = domain.JobStatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[job.TaskID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (*domain.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]domain.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []domain.PendingJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, taskID string, status domain.JobStatus, resultURL, errorMessage string) error {
	if resultURL != "" && errorMessage != "" {
		return domain.ErrConflictingOutcome
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		// Append-only after a terminal outcome; later callbacks are no-ops.
		return nil
	}
	job.Status = status
	if resultURL != "" {
		job.ResultURL = resultURL
	}
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	job.UpdatedAt = s.now()
	if status.Terminal() && job.CompletedAt == nil {
		completed := s.now()
		job.CompletedAt = &completed
	}
	return nil
}

func (s *MemoryStore) UpdateProvider(_ context.Context, taskID string, provider domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Provider = provider
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, taskID string, meta domain.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Metadata = meta
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkNotificationSent(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	job.NotificationSent = true
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, taskID)
	return nil
}

func (s *MemoryStore) CleanupByAge(_ context.Context, statuses []domain.JobStatus, olderThan time.Time) (int64, error) {
	match := make(map[domain.JobStatus]struct{}, len(statuses))
	for _, st := range statuses {
		match[st] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, job := range s.jobs {
		if _, ok := match[job.Status]; ok && job.UpdatedAt.Before(olderThan) {
			delete(s.jobs, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ReapOrphaned(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, job := range s.jobs {
		if job.Status == domain.JobStatusPending && job.CreatedAt.Before(olderThan) {
			delete(s.jobs, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListStuck(_ context.Context, olderThan time.Time) ([]domain.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []domain.PendingJob
	for _, job := range s.jobs {
		if (job.Status == domain.JobStatusPending || job.Status == domain.JobStatusProcessing) && job.CreatedAt.Before(olderThan) {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) Record(_ context.Context, rec domain.MediaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.archived = append(s.archived, rec)
	return nil
}

// Archived returns a snapshot of the history records, newest last.
func (s *MemoryStore) Archived() []domain.MediaRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MediaRecord, len(s.archived))
	copy(out, s.archived)
	return out
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Archive = (*MemoryStore)(nil)
)
