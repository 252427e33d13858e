// Package jobs defines the background job abstraction used to run batch
// categorization off the import request path. The queue keeps the batch
// reviewable before categorization finishes.
package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeCategorizeBatch categorizes the staged transactions of one
	// import batch.
	JobTypeCategorizeBatch JobType = "categorize_batch"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// CategorizeBatchJob asks the workers to categorize one import batch.
type CategorizeBatchJob struct {
	JobID   string `json:"job_id"`
	BatchID string `json:"batch_id"`
	OwnerID string `json:"owner_id"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *CategorizeBatchJob) GetID() string { return j.JobID }

// GetType implements the Job interface.
func (j *CategorizeBatchJob) GetType() JobType { return JobTypeCategorizeBatch }

// GetStatus implements the Job interface.
func (j *CategorizeBatchJob) GetStatus() JobStatus { return j.Status }

// Publisher defines the interface for publishing jobs to a queue.
// The abstraction allows swapping the in-memory queue for a real broker.
type Publisher interface {
	// PublishCategorizeBatch publishes a batch categorization job.
	PublishCategorizeBatch(ctx context.Context, job *CategorizeBatchJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue. The handler is called
	// for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job. It should return an error
// if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error
