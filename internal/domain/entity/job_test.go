package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestJobLifecycle(t *testing.T) {
	id := uuid.New()
	job := NewJob(VideoAnalysisMessage{JobID: id, UserID: "u1", VideoKey: "u1/v.mp4", Scenario: "Client Pitch", Duration: 42}, 2)

	assert.Equal(t, id, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, "Client Pitch", job.Scenario)
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	assert.Equal(t, 1, job.Attempt)
	job.MarkFailed("download_video: boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	job.MarkCompleted(NewFailureResult("No person detected in the video."), "u1/analysis.json", 12.5)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)
	assert.False(t, job.Result.Succeeded())
	assert.False(t, job.CanRetry())
}

func TestNewJobAssignsIDWhenMissing(t *testing.T) {
	job := NewJob(VideoAnalysisMessage{UserID: "u"}, 1)
	assert.NotEqual(t, uuid.Nil, job.ID)
}

func TestStatusMessageFromJob(t *testing.T) {
	job := NewJob(VideoAnalysisMessage{JobID: uuid.New(), UserID: "u", VideoKey: "k"}, 3)
	job.MarkProcessing()
	res := NewSuccessResult(ScoreSet{Overall: 50}, []string{"a"}, 10)
	job.MarkCompleted(res, "r", 3)

	msg := NewAnalysisStatusMessage(job)
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, JobStatusCompleted, msg.Status)
	assert.Equal(t, "r", msg.ReportKey)
	assert.Equal(t, 50, msg.Result.Scores.Overall)
	assert.Equal(t, 1, msg.Attempt)
}
