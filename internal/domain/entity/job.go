package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job tracks one analysis request through the worker. A COMPLETED job always
// carries a Result, which may itself be an error result (no person, unreadable
// video); FAILED means the worker could not produce a result at all.
type Job struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	ReportKey     string
	Scenario      string
	Duration      float64
	Status        JobStatus
	Result        *AnalysisResult
	FileSize      int64
	VideoDuration float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewJob(msg VideoAnalysisMessage, maxAttempts int) *Job {
	now := time.Now().UTC()
	id := msg.JobID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Job{
		ID:          id,
		UserID:      msg.UserID,
		VideoKey:    msg.VideoKey,
		Scenario:    msg.Scenario,
		Duration:    msg.Duration,
		FileSize:    msg.FileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(result AnalysisResult, reportKey string, videoDuration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Result = &result
	j.ReportKey = reportKey
	j.VideoDuration = videoDuration
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
