package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix  = "recon:task:"
	notifKeyPrefix = "recon:notif:"
	activeSetKey   = "recon:active"
)

// RedisMap is the Map implementation backed by Redis, used when the service
// runs as multiple replicas or must keep associations across restarts.
type RedisMap struct {
	rdb       *redis.Client
	threshold float64
}

// NewRedisMap connects using a redis:// URL.
func NewRedisMap(redisURL string) (*RedisMap, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisMap{rdb: redis.NewClient(opts), threshold: DefaultSimilarityThreshold}, nil
}

func (m *RedisMap) Associate(ctx context.Context, entry Entry) error {
	if entry.TaskID == "" || entry.NotificationID == "" {
		return ErrInvalidEntry
	}
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, taskKeyPrefix+entry.TaskID, map[string]any{
		"notification_id": entry.NotificationID,
		"model":           entry.Model,
		"prompt":          entry.Prompt,
		"can_cancel":      strconv.FormatBool(entry.CanCancel),
		"in_progress":     "true",
	})
	pipe.Set(ctx, notifKeyPrefix+entry.NotificationID, entry.TaskID, 0)
	pipe.SAdd(ctx, activeSetKey, entry.TaskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("associate: %w", err)
	}
	return nil
}

func (m *RedisMap) TaskID(ctx context.Context, notificationID string) (string, error) {
	taskID, err := m.rdb.Get(ctx, notifKeyPrefix+notificationID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoMatch
	}
	if err != nil {
		return "", fmt.Errorf("lookup task id: %w", err)
	}
	return taskID, nil
}

func (m *RedisMap) NotificationID(ctx context.Context, taskID string) (string, error) {
	entry, err := m.Get(ctx, taskID)
	if err != nil {
		return "", err
	}
	return entry.NotificationID, nil
}

func (m *RedisMap) Get(ctx context.Context, taskID string) (*Entry, error) {
	fields, err := m.rdb.HGetAll(ctx, taskKeyPrefix+taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoMatch
	}
	return entryFromFields(taskID, fields), nil
}

func (m *RedisMap) SetCanCancel(ctx context.Context, taskID string, canCancel bool) error {
	key := taskKeyPrefix + taskID
	exists, err := m.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("set can_cancel: %w", err)
	}
	if exists == 0 {
		return ErrNoMatch
	}
	if err := m.rdb.HSet(ctx, key, "can_cancel", strconv.FormatBool(canCancel)).Err(); err != nil {
		return fmt.Errorf("set can_cancel: %w", err)
	}
	return nil
}

func (m *RedisMap) Remove(ctx context.Context, taskID string) error {
	entry, err := m.Get(ctx, taskID)
	if errors.Is(err, ErrNoMatch) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, taskKeyPrefix+taskID)
	pipe.Del(ctx, notifKeyPrefix+entry.NotificationID)
	pipe.SRem(ctx, activeSetKey, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (m *RedisMap) FindByPrompt(ctx context.Context, model, prompt string) (*Entry, error) {
	taskIDs, err := m.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}
	var best *Entry
	var bestScore float64
	for _, taskID := range taskIDs {
		fields, err := m.rdb.HGetAll(ctx, taskKeyPrefix+taskID).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		entry := entryFromFields(taskID, fields)
		if !entry.InProgress {
			continue
		}
		if model != "" && entry.Model != "" && entry.Model != model {
			continue
		}
		score := TokenOverlap(entry.Prompt, prompt)
		if score >= m.threshold && score > bestScore {
			best = entry
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoMatch
	}
	return best, nil
}

func entryFromFields(taskID string, fields map[string]string) *Entry {
	canCancel, _ := strconv.ParseBool(fields["can_cancel"])
	inProgress, _ := strconv.ParseBool(fields["in_progress"])
	return &Entry{
		NotificationID: fields["notification_id"],
		TaskID:         taskID,
		Model:          fields["model"],
		Prompt:         fields["prompt"],
		CanCancel:      canCancel,
		InProgress:     inProgress,
	}
}

var _ Map = (*RedisMap)(nil)
