package model

import "time"

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Done reports whether the job reached a final state.
func (s JobStatus) Done() bool { return s == JobSucceeded || s == JobFailed }

// ProcessResult reports what one processing run of a document produced.
type ProcessResult struct {
	DocumentID     int64  `json:"document_id"`
	Title          string `json:"title"`
	TextLength     int    `json:"text_length"`
	Generated      int    `json:"generated"`
	FallbackUsed   bool   `json:"fallback_used"`
	LowConfidence  bool   `json:"low_confidence,omitempty"`
	ReplacedItems  int64  `json:"replaced_items,omitempty"`
	FromCachedText bool   `json:"from_cached_text"`
}

// Job is a tracked background extraction and generation run.
type Job struct {
	ID         string         `json:"id"`
	OwnerID    int64          `json:"owner_id"`
	DocumentID int64          `json:"document_id"`
	Status     JobStatus      `json:"status"`
	Result     *ProcessResult `json:"result,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
