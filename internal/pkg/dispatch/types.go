package dispatch

import (
	"encoding/json"
	"time"
)

// JobStatus defines the status of a dispatch job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is one outbound broadcast of a platform event to a single outgoing
// trigger. It carries the authorization that paid for it so a terminal
// failure can be refunded.
type Job struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	TriggerID       string          `json:"trigger_id"`
	AuthorizationID string          `json:"authorization_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	OccurredAt      time.Time       `json:"occurred_at"`
	Status          JobStatus       `json:"status"`
	Attempts        int             `json:"attempts"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ErrorMsg        string          `json:"error_msg,omitempty"`
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
	j.Attempts++
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed records a terminal delivery failure
func (j *Job) MarkAsFailed(errorMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = errorMsg
}

// MarkAsRetrying records a failed attempt that will be retried
func (j *Job) MarkAsRetrying(errorMsg string) {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsCancelled stops the sequence because the trigger went away
func (j *Job) MarkAsCancelled(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = reason
}
