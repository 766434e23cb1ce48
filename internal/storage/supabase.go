package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
)

const (
	uploadMaxAttempts = 4
	uploadBackoffBase = 2 * time.Second
)

// SupabaseStore uploads assets into a Supabase storage bucket through the
// object REST endpoint, retrying transient failures with bounded
// exponential backoff. Uploads are idempotent per key (upsert), which is
// what makes the retry loop safe.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	logger     *infra.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSupabaseStore builds a store for the given project URL and bucket.
func NewSupabaseStore(projectURL, serviceKey, bucket string, httpClient *http.Client, logger *infra.Logger) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" || serviceKey == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SupabaseStore{
		baseURL:    projectURL,
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

// Write uploads the asset and returns its public URL. Transient failures
// (network errors, 5xx, 429) are retried up to the attempt cap with delays
// growing as base^attempt; 4xx responses other than 429 fail immediately.
func (s *SupabaseStore) Write(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, cleanKey)

	var lastErr error
	for attempt := 1; attempt <= uploadMaxAttempts; attempt++ {
		lastErr = s.upload(ctx, endpoint, contentType, data)
		if lastErr == nil {
			return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, cleanKey), nil
		}
		if !retryable(lastErr) {
			return "", lastErr
		}
		if attempt < uploadMaxAttempts {
			delay := time.Duration(math.Pow(uploadBackoffBase.Seconds(), float64(attempt))) * time.Second
			if s.logger != nil {
				s.logger.Warn().
					Err(lastErr).
					Str("key", cleanKey).
					Int("attempt", attempt).
					Dur("retry_in", delay).
					Msg("storage upload failed, retrying")
			}
			if err := s.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("storage: upload failed after %d attempts: %w", uploadMaxAttempts, lastErr)
}

func (s *SupabaseStore) upload(ctx context.Context, endpoint, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("storage: build request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

// retryable reports whether an upload error is worth another attempt.
func retryable(err error) bool {
	var httpErr *domain.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
