package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO analysis_jobs (
			id, user_id, video_key, scenario, duration_seconds, report_key,
			status, result_status, result_message, overall_score, face_score,
			hand_score, pose_score, feedback, frames_analyzed, file_size,
			video_duration, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	res := toRow(job.Result)
	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.Scenario, job.Duration, job.ReportKey,
		string(job.Status), res.status, res.message, res.overall, res.face,
		res.hand, res.pose, res.feedback, res.frames, job.FileSize,
		job.VideoDuration, job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE analysis_jobs SET
			status=$2, report_key=$3, result_status=$4, result_message=$5,
			overall_score=$6, face_score=$7, hand_score=$8, pose_score=$9,
			feedback=$10, frames_analyzed=$11, video_duration=$12,
			attempt=$13, error_message=$14, updated_at=$15, completed_at=$16
		WHERE id=$1`

	res := toRow(job.Result)
	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ReportKey, res.status, res.message,
		res.overall, res.face, res.hand, res.pose,
		res.feedback, res.frames, job.VideoDuration,
		job.Attempt, job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, video_key, scenario, duration_seconds, report_key,
			status, result_status, result_message, overall_score, face_score,
			hand_score, pose_score, feedback, frames_analyzed, file_size,
			video_duration, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM analysis_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	var res resultRow
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.Scenario, &job.Duration, &job.ReportKey,
		&status, &res.status, &res.message, &res.overall, &res.face,
		&res.hand, &res.pose, &res.feedback, &res.frames, &job.FileSize,
		&job.VideoDuration, &job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, findErr(id, err)
	}
	job.Status = entity.JobStatus(status)
	job.Result = res.toResult()
	return job, nil
}

// Ping is used by the health endpoint.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// resultRow is the nullable column view of an AnalysisResult.
type resultRow struct {
	status   *string
	message  *string
	overall  *int
	face     *int
	hand     *int
	pose     *int
	feedback []string
	frames   *int
}

func toRow(res *entity.AnalysisResult) resultRow {
	if res == nil {
		return resultRow{}
	}
	status := string(res.Status)
	row := resultRow{status: &status, message: &res.Message}
	if res.Succeeded() {
		s := res.Scores
		frames := res.FramesAnalyzed
		row.overall, row.face, row.hand, row.pose = &s.Overall, &s.Face, &s.Hand, &s.Pose
		row.feedback = res.Feedback
		row.frames = &frames
	}
	return row
}

func (row resultRow) toResult() *entity.AnalysisResult {
	if row.status == nil {
		return nil
	}
	message := ""
	if row.message != nil {
		message = *row.message
	}
	if entity.AnalysisStatus(*row.status) != entity.AnalysisStatusSuccess {
		res := entity.NewFailureResult(message)
		return &res
	}
	scores := entity.ScoreSet{
		Overall: intOrZero(row.overall),
		Face:    intOrZero(row.face),
		Hand:    intOrZero(row.hand),
		Pose:    intOrZero(row.pose),
	}
	res := entity.NewSuccessResult(scores, row.feedback, intOrZero(row.frames))
	return &res
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// findErr maps a missing row to port.ErrJobNotFound so callers can create
// the job on first delivery.
func findErr(id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	return fmt.Errorf("find job by id: %w", err)
}
