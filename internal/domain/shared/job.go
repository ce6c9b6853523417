package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a queued job
type JobState string

const (
	JobStateCreated   JobState = "created"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateRetry     JobState = "retry"
)

// IsValid checks if the state is a known job state
func (s JobState) IsValid() bool {
	switch s {
	case JobStateCreated, JobStateActive, JobStateCompleted, JobStateFailed, JobStateRetry:
		return true
	}
	return false
}

// IsTerminal returns true for states a job never leaves
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Default enqueue options
const (
	DefaultJobRetryLimit = 3
	DefaultJobRetryDelay = 60 * time.Second
	DefaultJobPriority   = 0
)

// JobOptions controls how a job is scheduled and retried.
// Higher Priority values are claimed first.
type JobOptions struct {
	Priority     int
	RetryLimit   int
	RetryDelay   time.Duration
	RetryBackoff bool
	StartAfter   time.Time
}

// DefaultJobOptions returns options used when the caller does not specify any
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Priority:     DefaultJobPriority,
		RetryLimit:   DefaultJobRetryLimit,
		RetryDelay:   DefaultJobRetryDelay,
		RetryBackoff: true,
	}
}

// Job is a durable unit of asynchronous work
type Job struct {
	ID           uuid.UUID
	QueueName    string
	Payload      []byte
	Priority     int
	RetryLimit   int
	RetryDelay   time.Duration
	RetryBackoff bool
	RetryCount   int
	State        JobState
	StartAfter   time.Time
	LastError    string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob creates a job in the created state
func NewJob(queueName string, payload any, opts JobOptions, now time.Time) (*Job, error) {
	if queueName == "" {
		return nil, NewDomainError("INVALID_QUEUE", "queue name cannot be empty")
	}
	if opts.RetryLimit < 0 {
		return nil, NewDomainError("INVALID_RETRY_LIMIT", "retry limit cannot be negative")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	startAfter := opts.StartAfter
	if startAfter.IsZero() {
		startAfter = now
	}

	return &Job{
		ID:           uuid.New(),
		QueueName:    queueName,
		Payload:      raw,
		Priority:     opts.Priority,
		RetryLimit:   opts.RetryLimit,
		RetryDelay:   opts.RetryDelay,
		RetryBackoff: opts.RetryBackoff,
		State:        JobStateCreated,
		StartAfter:   startAfter,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// DecodePayload unmarshals the job payload into v
func (j *Job) DecodePayload(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode payload of job %s: %w", j.ID, err))
	}
	return nil
}

// MarkActive moves a claimable job into the active state
func (j *Job) MarkActive(now time.Time) error {
	if j.State != JobStateCreated && j.State != JobStateRetry {
		return errors.New("can only activate created or retry jobs")
	}
	j.State = JobStateActive
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkCompleted marks the job as successfully handled
func (j *Job) MarkCompleted(now time.Time) {
	j.State = JobStateCompleted
	j.CompletedAt = &now
	j.LastError = ""
	j.UpdatedAt = now
}

// NextRetryDelay returns the delay before the next attempt.
// With backoff the delay doubles on each attempt: retryDelay * 2^retryCount.
func (j *Job) NextRetryDelay() time.Duration {
	if !j.RetryBackoff {
		return j.RetryDelay
	}
	return j.RetryDelay * time.Duration(1<<uint(j.RetryCount))
}

// MarkFailed records a handler failure. It schedules a retry while attempts remain
// and returns true when the job has been parked as terminally failed.
func (j *Job) MarkFailed(cause error, now time.Time) bool {
	j.LastError = cause.Error()
	j.UpdatedAt = now
	j.StartedAt = nil

	if IsPermanent(cause) || j.RetryCount >= j.RetryLimit {
		j.State = JobStateFailed
		j.CompletedAt = &now
		return true
	}

	j.StartAfter = now.Add(j.NextRetryDelay())
	j.RetryCount++
	j.State = JobStateRetry
	return false
}

// ErrJobClaimLost is returned when a job outcome is persisted by a worker that no
// longer holds the claim, e.g. after the job was requeued as stale and claimed again.
var ErrJobClaimLost = NewDomainError("JOB_CLAIM_LOST", "Job is no longer claimed by this worker")

// ErrAbandoned is recorded on jobs that stayed active past the stale cutoff
const ErrAbandoned = "abandoned by worker"

// JobRepository defines persistence for the job queue
type JobRepository interface {
	// Save persists one or more new jobs
	Save(ctx context.Context, jobs ...*Job) error
	// Claim atomically activates up to limit due jobs of a queue and returns them
	Claim(ctx context.Context, queueName string, now time.Time, limit int) ([]*Job, error)
	// Update persists the state of a job after handling. It only applies while the
	// job is still active under the claim started at claimedAt; otherwise it fails
	// with ErrJobClaimLost.
	Update(ctx context.Context, job *Job, claimedAt time.Time) error
	// FindByID retrieves a job by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)
	// FindFailed retrieves terminally failed jobs with pagination
	FindFailed(ctx context.Context, queueName string, page, pageSize int) ([]*Job, int64, error)
	// RequeueStale releases jobs stuck in active since before the cutoff. Each release
	// counts as an attempt: jobs with attempts left go back to retry, the rest are
	// parked as failed.
	RequeueStale(ctx context.Context, activeBefore, now time.Time) (requeued, failed int64, err error)
	// DeleteCompletedBefore purges completed jobs older than the cutoff
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByState returns counts of jobs per state for a queue
	CountByState(ctx context.Context, queueName string) (map[JobState]int64, error)
}
