package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/analysis"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Analyzer scores a local video file. *analysis.Pipeline implements it.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*analysis.Report, error)
}

// RetryableError asks the consumer to redeliver the message. Attempt is the
// job attempt that failed and drives the redelivery backoff.
type RetryableError struct {
	Attempt     int
	MaxAttempts int
	Reason      string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %s", e.Attempt, e.MaxAttempts, e.Reason)
}

// FailedAttempt satisfies the consumer's backoff hook.
func (e *RetryableError) FailedAttempt() int { return e.Attempt }

type AnalyzeVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	prober    port.DurationProber
	analyzer  Analyzer
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type AnalyzeVideoConfig struct {
	TempDir    string
	MaxRetries int
}

func NewAnalyzeVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	prober port.DurationProber,
	analyzer Analyzer,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeVideoConfig,
) *AnalyzeVideoUseCase {
	return &AnalyzeVideoUseCase{
		repo:      repo,
		storage:   storage,
		prober:    prober,
		analyzer:  analyzer,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one video.analysis delivery. A nil return acks the message.
// Analysis outcomes the user must act on (no person, unreadable video) are
// stored as completed jobs with an error result; only collaborator failures
// are returned for redelivery.
func (uc *AnalyzeVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "AnalyzeVideoUseCase.Execute")
	defer span.End()

	started := time.Now()

	var msg entity.VideoAnalysisMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if msg.VideoKey == "" || msg.UserID == "" {
		uc.logger.Error("message missing video_key or user_id", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: video_key and user_id are required")
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.String("job.scenario", msg.Scenario),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, port.ErrJobNotFound):
		job = entity.NewJob(msg, uc.maxRetry)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, republishing status")
		uc.publishStatus(ctx, job, log)
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.analyzeVideo(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
	return nil
}

func (uc *AnalyzeVideoUseCase) analyzeVideo(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoAnalysisMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+videoExt(msg.VideoKey))
	err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath)
	spanDl.End()

	var (
		result   entity.AnalysisResult
		duration float64
	)
	switch {
	case errors.Is(err, port.ErrEmptyVideo):
		log.Info("uploaded video is empty", zap.Error(err))
		result = entity.NewFailureResult(analysis.FailureMessage(analysis.ErrVideoUnreadable))
		metrics.JobsProcessedTotal.WithLabelValues("rejected").Inc()
	case err != nil:
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	default:
		metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

		duration, err = uc.prober.ProbeDuration(ctx, videoPath)
		if err != nil {
			log.Warn("could not probe video duration", zap.Error(err))
		}

		result, err = uc.analyze(ctx, videoPath, log)
		if err != nil {
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "analyze: "+err.Error(), log)
		}
	}

	upStart := time.Now()
	upCtx, spanUp := tracer.Start(ctx, "upload_report")
	reportKey := fmt.Sprintf("%s/analysis_%s.json", job.UserID, job.ID.String())
	body, err := json.Marshal(result)
	if err != nil {
		spanUp.End()
		return fmt.Errorf("marshal report: %w", err)
	}
	err = uc.storage.UploadReport(upCtx, reportKey, bytes.NewReader(body), int64(len(body)))
	spanUp.End()
	if err != nil {
		log.Error("report upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_report: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(result, reportKey, duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed",
		zap.String("result", string(result.Status)),
		zap.Int("overall", result.Scores.Overall),
		zap.Float64("duration_secs", duration),
		zap.String("report_key", reportKey),
	)
	return nil
}

// analyze scores the downloaded file. Terminal analysis errors become an
// error result; any other error is returned for retry.
func (uc *AnalyzeVideoUseCase) analyze(ctx context.Context, videoPath string, log *zap.Logger) (entity.AnalysisResult, error) {
	anStart := time.Now()
	report, err := uc.analyzer.AnalyzeFile(ctx, videoPath)
	metrics.JobProcessingDuration.WithLabelValues("analyze").Observe(time.Since(anStart).Seconds())

	switch {
	case err == nil:
		recordReport(report)
		metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
		return report.Result(), nil
	case analysis.IsTerminal(err):
		log.Info("video rejected by analysis", zap.Error(err))
		metrics.JobsProcessedTotal.WithLabelValues("rejected").Inc()
		return entity.NewFailureResult(analysis.FailureMessage(err)), nil
	default:
		log.Error("analysis failed", zap.Error(err))
		return entity.AnalysisResult{}, err
	}
}

func (uc *AnalyzeVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoAnalysisMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &RetryableError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: errMsg}
}

func (uc *AnalyzeVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoAnalysisMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err))
	}

	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *AnalyzeVideoUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	data, err := json.Marshal(entity.NewAnalysisStatusMessage(job))
	if err != nil {
		log.Error("failed to marshal status", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func recordReport(r *analysis.Report) {
	metrics.FramesTotal.WithLabelValues("analyzed").Add(float64(r.FramesAnalyzed))
	metrics.FramesTotal.WithLabelValues("skipped").Add(float64(r.FramesSkipped))
	metrics.Scores.WithLabelValues("overall").Observe(float64(r.Scores.Overall))
	metrics.Scores.WithLabelValues("face").Observe(float64(r.Scores.Face))
	metrics.Scores.WithLabelValues("hand").Observe(float64(r.Scores.Hand))
	metrics.Scores.WithLabelValues("pose").Observe(float64(r.Scores.Pose))
}

// videoExt keeps the uploaded container extension so ffmpeg can pick a
// demuxer; keys without one default to .mp4.
func videoExt(key string) string {
	if ext := filepath.Ext(key); ext != "" && len(ext) <= 6 {
		return ext
	}
	return ".mp4"
}
