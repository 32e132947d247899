package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/analysis"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/email"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/ffmpeg"
	miniostorage "github.com/fiapx/fiapx-nonverbal-service/internal/infra/minio"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-nonverbal-service/internal/usecase"
	"github.com/fiapx/fiapx-nonverbal-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const (
	exchange      = "fiapx.video"
	analysisQueue = "video.analysis"
	statusQueue   = "analysis.status"
	dlqQueue      = "video.analysis.dlq"
	uploadBucket  = "uploads"
	reportBucket  = "reports"
)

// stack is a running worker wired to real Postgres, RabbitMQ and MinIO.
type stack struct {
	pool    *pgxpool.Pool
	rmqConn *amqp.Connection
	minio   *miniogo.Client
}

// onePerson sees a single, fully visible person in every frame.
type onePerson struct{}

func (onePerson) NewSession(context.Context) (port.PerceptionSession, error) { return onePerson{}, nil }
func (onePerson) DetectPersons(context.Context, []byte) (int, error) { return 1, nil }
func (onePerson) DetectFace(context.Context, []byte) (int, error) { return 1, nil }
func (onePerson) DetectHands(context.Context, []byte) (int, error) { return 2, nil }
func (onePerson) DetectPose(context.Context, []byte) (bool, error) { return true, nil }
func (onePerson) Close() error { return nil }

func startStack(ctx context.Context, t *testing.T) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UploadBucket: uploadBucket,
		ReportBucket: reportBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	log, err := logger.New("debug")
	require.NoError(t, err)

	decoder := ffmpeg.NewDecoder("ffmpeg", "ffprobe", log)
	uc := usecase.NewAnalyzeVideoUseCase(
		postgres.NewJobRepository(pool),
		storage,
		decoder,
		analysis.NewPipeline(decoder, onePerson{}, log),
		rabbitmq.NewStatusPublisher(pub, statusQueue),
		rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.AnalyzeVideoConfig{TempDir: t.TempDir(), MaxRetries: 3},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       analysisQueue,
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(consumerCtx); err != nil {
			log.Error("consumer stopped", zap.Error(err))
		}
	}()
	t.Cleanup(func() {
		consumerCancel()
		<-done
		consumer.Close()
	})

	time.Sleep(500 * time.Millisecond)

	return &stack{pool: pool, rmqConn: rmqConn, minio: minioClient}
}

func (s *stack) publish(ctx context.Context, t *testing.T, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, analysisQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	require.NoError(t, err)
}

func (s *stack) awaitStatus(t *testing.T, jobID uuid.UUID, want entity.JobStatus) entity.AnalysisStatusMessage {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deliveries, err := ch.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	timeout := time.After(2 * time.Minute)
	for {
		select {
		case d := <-deliveries:
			var msg entity.AnalysisStatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &msg))
			if msg.JobID == jobID && msg.Status == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s status of job %s", want, jobID)
		}
	}
}

func (s *stack) upload(ctx context.Context, t *testing.T, key string, data []byte) {
	t.Helper()
	_, err := s.minio.PutObject(ctx, uploadBucket, key, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: "video/mp4"})
	require.NoError(t, err)
}

func (s *stack) report(ctx context.Context, t *testing.T, key string) entity.AnalysisResult {
	t.Helper()
	obj, err := s.minio.GetObject(ctx, reportBucket, key, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)

	var res entity.AnalysisResult
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

func analysisMessage(t *testing.T, jobID uuid.UUID, key string) []byte {
	t.Helper()
	body, err := json.Marshal(entity.VideoAnalysisMessage{
		JobID:    jobID,
		UserID:   "testuser",
		VideoKey: key,
		Scenario: "presentation",
		Duration: 4,
	})
	require.NoError(t, err)
	return body
}

func generateVideo(t *testing.T) []byte {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command("ffmpeg", "-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=4:size=160x120:rate=10",
		"-c:v", "mpeg4", path,
	).CombinedOutput()
	require.NoError(t, err, string(out))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestAnalyzeVideoEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	video := generateVideo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(ctx, t)

	jobID := uuid.New()
	s.upload(ctx, t, "testuser/clip.mp4", video)
	s.publish(ctx, t, analysisMessage(t, jobID, "testuser/clip.mp4"))

	status := s.awaitStatus(t, jobID, entity.JobStatusCompleted)
	require.NotNil(t, status.Result)
	assert.True(t, status.Result.Succeeded())
	assert.Equal(t, fmt.Sprintf("testuser/analysis_%s.json", jobID), status.ReportKey)
	assert.Equal(t, "presentation", status.Scenario)
	assert.InDelta(t, 4.0, status.VideoDuration, 0.5)

	// 40 frames -> 10 samples, every one with a single visible person.
	want := entity.ScoreSet{Overall: 100, Face: 100, Hand: 100, Pose: 100}
	assert.Equal(t, want, status.Result.Scores)
	assert.Equal(t, 10, status.Result.FramesAnalyzed)

	stored := s.report(ctx, t, status.ReportKey)
	assert.Equal(t, want, stored.Scores)
	assert.Equal(t, status.Result.Feedback, stored.Feedback)

	var dbStatus, resultStatus string
	var overall, frames int
	err := s.pool.QueryRow(ctx,
		"SELECT status, result_status, overall_score, frames_analyzed FROM analysis_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &resultStatus, &overall, &frames)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, "success", resultStatus)
	assert.Equal(t, 100, overall)
	assert.Equal(t, 10, frames)
}

func TestAnalyzeVideoUnreadableCompletesWithErrorResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(ctx, t)

	jobID := uuid.New()
	s.upload(ctx, t, "testuser/garbage.mp4", []byte("this is not a video container"))
	s.publish(ctx, t, analysisMessage(t, jobID, "testuser/garbage.mp4"))

	status := s.awaitStatus(t, jobID, entity.JobStatusCompleted)
	require.NotNil(t, status.Result)
	assert.False(t, status.Result.Succeeded())
	assert.Equal(t, "Could not open video file.", status.Result.Message)
	assert.Equal(t, 1, status.Attempt)

	stored := s.report(ctx, t, status.ReportKey)
	assert.Equal(t, entity.AnalysisStatusError, stored.Status)
}

func TestAnalyzeVideoMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	s := startStack(ctx, t)
	s.publish(ctx, t, []byte(`{invalid json`))

	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var msg amqp.Delivery
	require.Eventually(t, func() bool {
		d, ok, err := ch.Get(dlqQueue, true)
		if err != nil || !ok {
			return false
		}
		msg = d
		return true
	}, 30*time.Second, 200*time.Millisecond, "malformed message should be in DLQ")

	assert.Equal(t, `{invalid json`, string(msg.Body))
	assert.Contains(t, msg.Headers["x-dlq-reason"], "unmarshal_error")
}
