package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Report is the outcome of a successful run.
type Report struct {
	Scores   entity.ScoreSet
	Feedback []string
	// FramesSampled is the size of the sample set; FramesSkipped of those
	// failed to decode and FramesAnalyzed produced a record.
	FramesSampled  int
	FramesSkipped  int
	FramesAnalyzed int
	// PersonFrames counts analyzed frames with exactly one person.
	PersonFrames int
}

// Result converts a report into the caller-facing success value.
func (r *Report) Result() entity.AnalysisResult {
	return entity.NewSuccessResult(r.Scores, r.Feedback, r.FramesAnalyzed)
}

// ProgressFunc is called after each sampled frame has been handled.
type ProgressFunc func(done, total int)

type Option func(*Pipeline)

func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline samples a video, runs perception on each sampled frame and scores
// the result. It keeps no state between runs and is safe for concurrent use
// as long as its collaborators are.
type Pipeline struct {
	opener     port.VideoOpener
	perception port.Perception
	logger     *zap.Logger
	progress   ProgressFunc
}

func NewPipeline(opener port.VideoOpener, perception port.Perception, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:     opener,
		perception: perception,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run analyzes the video at path. It never fails: errors become a failure
// result carrying a user-facing message.
func (p *Pipeline) Run(ctx context.Context, path string) entity.AnalysisResult {
	report, err := p.AnalyzeFile(ctx, path)
	return ResultOf(report, err)
}

// ResultOf folds an Analyze outcome into an AnalysisResult.
func ResultOf(report *Report, err error) entity.AnalysisResult {
	if err != nil {
		return entity.NewFailureResult(FailureMessage(err))
	}
	return report.Result()
}

// AnalyzeFile opens the video at path and analyzes it.
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	video, err := p.opener.Open(ctx, path)
	if err != nil {
		p.logger.Warn("could not open video", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVideoUnreadable, err)
	}
	defer video.Close()

	return p.Analyze(ctx, video)
}

// Analyze scores an opened video. Frames are handled one at a time in index
// order; a fresh perception session is used for the run and closed after it.
func (p *Pipeline) Analyze(ctx context.Context, video port.Video) (*Report, error) {
	ctx, span := otel.Tracer("analysis").Start(ctx, "Pipeline.Analyze")
	defer span.End()

	total := video.TotalFrames()
	indices := SampleIndices(total)
	span.SetAttributes(
		attribute.Int("video.total_frames", total),
		attribute.Int("analysis.samples", len(indices)),
	)
	if len(indices) == 0 {
		span.SetStatus(codes.Error, "empty video")
		return nil, fmt.Errorf("%w: video has no frames", ErrVideoUnreadable)
	}

	session, err := p.perception.NewSession(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("start perception session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Warn("perception session close failed", zap.Error(cerr))
		}
	}()

	report := &Report{FramesSampled: len(indices)}
	records := make([]entity.FrameRecord, 0, len(indices))

	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := video.Frame(ctx, idx)
		if err != nil {
			if !errors.Is(err, port.ErrFrameUnavailable) {
				span.RecordError(err)
				return nil, fmt.Errorf("decode frame %d: %w", idx, err)
			}
			p.logger.Debug("skipping undecodable frame", zap.Int("frame", idx))
			report.FramesSkipped++
			p.reportProgress(i+1, len(indices))
			continue
		}

		d, err := detect(ctx, session, frame)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
		if d.PersonCount == 1 {
			report.PersonFrames++
		}
		records = append(records, Classify(d))
		p.reportProgress(i+1, len(indices))
	}

	report.FramesAnalyzed = len(records)

	scores, err := Aggregate(records, report.PersonFrames > 0)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.logger.Info("analysis produced no scores",
			zap.Int("sampled", report.FramesSampled),
			zap.Int("skipped", report.FramesSkipped),
			zap.Error(err),
		)
		return nil, err
	}
	report.Scores = scores
	report.Feedback = Feedback(scores)

	span.SetAttributes(
		attribute.Int("analysis.frames_analyzed", report.FramesAnalyzed),
		attribute.Int("analysis.overall_score", scores.Overall),
	)
	p.logger.Info("analysis completed",
		zap.Int("sampled", report.FramesSampled),
		zap.Int("analyzed", report.FramesAnalyzed),
		zap.Int("person_frames", report.PersonFrames),
		zap.Int("overall", scores.Overall),
		zap.Int("face", scores.Face),
		zap.Int("hand", scores.Hand),
		zap.Int("pose", scores.Pose),
	)
	return report, nil
}

func (p *Pipeline) reportProgress(done, total int) {
	if p.progress != nil {
		p.progress(done, total)
	}
}
