package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"go.uber.org/zap"
)

// defaultFrameTimeout bounds a single frame decode.
const defaultFrameTimeout = 30 * time.Second

// Decoder opens videos through ffprobe and pulls single frames out of them
// with ffmpeg, one process per frame. Each decode seeks to the frame's
// timestamp so a run costs roughly one GOP per sample, not the whole prefix.
type Decoder struct {
	ffmpegPath   string
	ffprobePath  string
	frameTimeout time.Duration
	logger       *zap.Logger
}

type DecoderOption func(*Decoder)

// WithFrameTimeout overrides the per-frame decode budget; zero disables it.
func WithFrameTimeout(d time.Duration) DecoderOption {
	return func(dec *Decoder) { dec.frameTimeout = d }
}

func NewDecoder(ffmpegPath, ffprobePath string, logger *zap.Logger, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		frameTimeout: defaultFrameTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Open(ctx context.Context, path string) (port.Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}

	total, fps, err := d.probeStream(ctx, path)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("video opened",
		zap.String("path", path),
		zap.Int("total_frames", total),
		zap.Float64("fps", fps),
	)
	return &video{decoder: d, path: path, total: total, fps: fps}, nil
}

// ProbeDuration returns the container duration in seconds.
func (d *Decoder) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// probeStream reads nb_frames and r_frame_rate from the first video stream.
// When the container does not carry nb_frames the packets are counted. A
// missing frame rate is not an error: frames are then selected by index.
func (d *Decoder) probeStream(ctx context.Context, path string) (int, float64, error) {
	out, err := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,r_frame_rate",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}

	fps, err := parseStreamRate(out, "r_frame_rate")
	if err != nil {
		d.logger.Debug("frame rate unavailable, decoding without seek", zap.String("path", path), zap.Error(err))
		fps = 0
	}

	if count, err := parseStreamCount(out, "nb_frames"); err == nil {
		return count, fps, nil
	}

	d.logger.Debug("nb_frames missing, counting packets", zap.String("path", path))
	out, err = exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe count packets: %w", err)
	}
	count, err := parseStreamCount(out, "nb_read_packets")
	return count, fps, err
}

type ffprobeStreams struct {
	Streams []map[string]any `json:"streams"`
}

// parseStreamCount extracts a non-negative integer field from the first
// stream of ffprobe's JSON output. ffprobe prints counts as strings.
func parseStreamCount(out []byte, field string) (int, error) {
	var res ffprobeStreams
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, errors.New("no video stream")
	}

	raw, ok := res.Streams[0][field]
	if !ok {
		return 0, fmt.Errorf("%s not reported", field)
	}
	var count int
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", field, v, err)
		}
		count = n
	case float64:
		count = int(v)
	default:
		return 0, fmt.Errorf("unexpected %s type %T", field, raw)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative %s", field)
	}
	return count, nil
}

// parseStreamRate parses a rational rate such as "30000/1001".
func parseStreamRate(out []byte, field string) (float64, error) {
	var res ffprobeStreams
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, errors.New("no video stream")
	}
	raw, ok := res.Streams[0][field].(string)
	if !ok {
		return 0, fmt.Errorf("%s not reported", field)
	}

	num, den, found := strings.Cut(raw, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", field, raw)
	}
	return n / d, nil
}

type video struct {
	decoder *Decoder
	path    string
	total   int
	fps     float64
}

func (v *video) TotalFrames() int { return v.total }

// Frame decodes the frame at index into a JPEG. Any decode failure,
// including a decode that overruns the frame budget, is reported as
// port.ErrFrameUnavailable; only caller cancellation is passed through.
func (v *video) Frame(ctx context.Context, index int) ([]byte, error) {
	runCtx := ctx
	if v.decoder.frameTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, v.decoder.frameTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, v.decoder.ffmpegPath, frameArgs(v.path, index, v.fps)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if runCtx.Err() != nil {
		return nil, fmt.Errorf("%w: frame %d: decode exceeded %s", port.ErrFrameUnavailable, index, v.decoder.frameTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v: %s", port.ErrFrameUnavailable, index, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: frame %d: empty output", port.ErrFrameUnavailable, index)
	}
	return stdout.Bytes(), nil
}

func (v *video) Close() error { return nil }

// frameArgs builds the ffmpeg invocation for one frame. With a known frame
// rate the input is seeked to half a frame before the target, so the first
// frame ffmpeg keeps is the target itself. Without one the frame is picked
// by index from the start of the stream.
func frameArgs(path string, index int, fps float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if fps > 0 {
		ts := max(0, (float64(index)-0.5)/fps)
		args = append(args, "-ss", strconv.FormatFloat(ts, 'f', 6, 64), "-i", path)
	} else {
		args = append(args, "-i", path, "-vf", fmt.Sprintf(`select=eq(n\,%d)`, index), "-vsync", "0")
	}
	return append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
}
