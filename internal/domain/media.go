package domain

import "time"

// MediaRecord is a row in the append-only user_media history table. Jobs
// that time out or are cancelled after billable work started are archived
// here before their pending row is deleted, so that captured payments always
// leave an auditable trace.
type MediaRecord struct {
	ID           string
	UserID       string
	TaskID       string
	MediaType    JobType
	Status       JobStatus
	Model        string
	Prompt       string
	Cost         float64
	ErrorMessage string
	CreatedAt    time.Time
}

// ArchiveFromJob builds the history record for a job that ended in failure
// or cancellation, preserving cost, model and prompt for billing audit.
func ArchiveFromJob(job *PendingJob, errMsg string) MediaRecord {
	return MediaRecord{
		UserID:       job.UserID,
		TaskID:       job.TaskID,
		MediaType:    job.JobType,
		Status:       JobStatusFailed,
		Model:        job.Metadata.Model,
		Prompt:       job.Metadata.Prompt,
		Cost:         job.Metadata.Cost,
		ErrorMessage: errMsg,
	}
}
