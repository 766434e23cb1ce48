package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImage JobType = "image"
	JobTypeVideo JobType = "video"
)

// Provider enumerates the generation backends a job can be routed to. A job
// may be reassigned to a different provider when retried, so the field is
// mutable on PendingJob.
type Provider string

const (
	ProviderRunware   Provider = "runware"
	ProviderWaveSpeed Provider = "wavespeed"
	ProviderFalAI     Provider = "falai"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final outcome. Once a job reaches
// a terminal status its row becomes append-only: a later callback carrying a
// different outcome must not flip it.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PendingJob is the durable record of an in-flight generation request, keyed
// by the provider task identifier. It is the source of truth the webhook
// receiver, the polling fallback, and the reaper all reconcile against, and
// it survives client restarts.
type PendingJob struct {
	TaskID           string
	UserID           string
	JobType          JobType
	Provider         Provider
	Status           JobStatus
	ResultURL        string
	ErrorMessage     string
	Metadata         Metadata
	DeviceToken      string
	NotificationSent bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// Validate checks the invariants a stored row must hold: a task id is
// required, and result URL and error message are mutually exclusive.
func (j *PendingJob) Validate() error {
	if j.TaskID == "" {
		return ErrMissingTaskID
	}
	if j.ResultURL != "" && j.ErrorMessage != "" {
		return ErrConflictingOutcome
	}
	return nil
}
