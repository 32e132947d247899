package entity

import "github.com/google/uuid"

// VideoAnalysisMessage is the inbound message from the video.analysis queue.
// Scenario and Duration are recorded on the job but do not influence scoring.
type VideoAnalysisMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	Scenario  string    `json:"scenario"`
	Duration  float64   `json:"duration_seconds"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// AnalysisStatusMessage is the outbound message published to the analysis.status queue.
type AnalysisStatusMessage struct {
	JobID         uuid.UUID       `json:"job_id"`
	UserID        string          `json:"user_id"`
	Status        JobStatus       `json:"status"`
	VideoKey      string          `json:"video_key"`
	Scenario      string          `json:"scenario,omitempty"`
	ReportKey     string          `json:"report_key,omitempty"`
	VideoDuration float64         `json:"video_duration_seconds,omitempty"`
	Result        *AnalysisResult `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Attempt       int             `json:"attempt"`
	MaxAttempts   int             `json:"max_attempts"`
}

func NewAnalysisStatusMessage(job *Job) AnalysisStatusMessage {
	return AnalysisStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		Scenario:      job.Scenario,
		ReportKey:     job.ReportKey,
		VideoDuration: job.VideoDuration,
		Result:        job.Result,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
}
