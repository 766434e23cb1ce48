// Package reconcile maintains the bidirectional index between client-local
// notification ids and remote provider task ids, so a webhook callback
// arriving on a separate channel can locate the right client-visible
// placeholder, and a cancellation can locate the right remote job.
package reconcile

import (
	"context"
	"sync"
)

// Entry ties one notification to one task, along with the retry metadata
// needed for the fuzzy fallback lookup and the billing-aware cancellation
// decision.
type Entry struct {
	NotificationID string
	TaskID         string
	Model          string
	Prompt         string
	CanCancel      bool
	InProgress     bool
}

// Map is the reconciliation index. Implementations must be safe for
// concurrent use from multiple request-handling contexts.
type Map interface {
	// Associate links a notification to a task id once the provider has
	// accepted the submission. Before this point the notification exists
	// with no remote correlation.
	Associate(ctx context.Context, entry Entry) error
	TaskID(ctx context.Context, notificationID string) (string, error)
	NotificationID(ctx context.Context, taskID string) (string, error)
	Get(ctx context.Context, taskID string) (*Entry, error)
	SetCanCancel(ctx context.Context, taskID string, canCancel bool) error
	Remove(ctx context.Context, taskID string) error
	// FindByPrompt is the best-effort secondary lookup: when a direct id
	// match fails, match by model and prompt similarity against in-progress
	// entries only. Returns ErrNoMatch when nothing clears the threshold.
	FindByPrompt(ctx context.Context, model, prompt string) (*Entry, error)
}

// MemoryMap is the in-process Map used when no Redis is configured.
type MemoryMap struct {
	mu        sync.RWMutex
	byTask    map[string]*Entry
	byNotif   map[string]string
	threshold float64
}

func NewMemoryMap() *MemoryMap {
	return &MemoryMap{
		byTask:    make(map[string]*Entry),
		byNotif:   make(map[string]string),
		threshold: DefaultSimilarityThreshold,
	}
}

func (m *MemoryMap) Associate(_ context.Context, entry Entry) error {
	if entry.TaskID == "" || entry.NotificationID == "" {
		return ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := entry
	stored.InProgress = true
	m.byTask[entry.TaskID] = &stored
	m.byNotif[entry.NotificationID] = entry.TaskID
	return nil
}

func (m *MemoryMap) TaskID(_ context.Context, notificationID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	taskID, ok := m.byNotif[notificationID]
	if !ok {
		return "", ErrNoMatch
	}
	return taskID, nil
}

func (m *MemoryMap) NotificationID(_ context.Context, taskID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byTask[taskID]
	if !ok {
		return "", ErrNoMatch
	}
	return entry.NotificationID, nil
}

func (m *MemoryMap) Get(_ context.Context, taskID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byTask[taskID]
	if !ok {
		return nil, ErrNoMatch
	}
	copied := *entry
	return &copied, nil
}

func (m *MemoryMap) SetCanCancel(_ context.Context, taskID string, canCancel bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.byTask[taskID]
	if !ok {
		return ErrNoMatch
	}
	entry.CanCancel = canCancel
	return nil
}

func (m *MemoryMap) Remove(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.byTask[taskID]
	if !ok {
		return nil
	}
	delete(m.byNotif, entry.NotificationID)
	delete(m.byTask, taskID)
	return nil
}

func (m *MemoryMap) FindByPrompt(_ context.Context, model, prompt string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Entry
	var bestScore float64
	for _, entry := range m.byTask {
		if !entry.InProgress {
			continue
		}
		if model != "" && entry.Model != "" && entry.Model != model {
			continue
		}
		score := TokenOverlap(entry.Prompt, prompt)
		if score >= m.threshold && score > bestScore {
			copied := *entry
			best = &copied
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoMatch
	}
	return best, nil
}

var _ Map = (*MemoryMap)(nil)
